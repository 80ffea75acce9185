package handler

import (
	"context"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/config"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/render"
	"github.com/jengzang/trackmap/internal/service"
	"github.com/jengzang/trackmap/pkg/response"
)

// RenderParams represents query parameters for map rendering. Without a
// box the extent of the matching points is drawn.
type RenderParams struct {
	models.PointsQueryParams
	Zoom   *int   `form:"zoom"`
	Width  int    `form:"width"`
	Height int    `form:"height"`
	Layers string `form:"layers"` // comma separated, empty for all
	Color  string `form:"color"`
}

// RenderHandler handles HTTP requests for rendered map images
type RenderHandler struct {
	pipeline     *render.Pipeline
	pointService *service.PointService
	cfg          config.RenderConfig
	logger       *zap.Logger
}

// NewRenderHandler creates a new render handler
func NewRenderHandler(pipeline *render.Pipeline, pointService *service.PointService, cfg config.RenderConfig, logger *zap.Logger) *RenderHandler {
	return &RenderHandler{
		pipeline:     pipeline,
		pointService: pointService,
		cfg:          cfg,
		logger:       logger.Named("render"),
	}
}

// exceedsPixels reports whether a width x height canvas holds more than
// limit pixels without overflowing; a non-positive limit allows any size.
// Both sides must be positive.
func exceedsPixels(width, height, limit int) bool {
	if limit <= 0 {
		return false
	}
	return width > limit || height > limit || width > limit/height
}

// GetLayers handles GET /api/v1/render/layers
func (h *RenderHandler) GetLayers(c *gin.Context) {
	response.Success(c, h.pipeline.Layers())
}

// RenderPNG handles GET /api/v1/render.png
func (h *RenderHandler) RenderPNG(c *gin.Context) {
	var params RenderParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	width, height := params.Width, params.Height
	if width <= 0 {
		width = h.cfg.Width
	}
	if height <= 0 {
		height = h.cfg.Height
	}
	if exceedsPixels(width, height, h.cfg.MaxPixels) {
		response.BadRequest(c, "Image too large")
		return
	}

	var (
		mode render.ColorMode
		err  error
	)
	if params.Color != "" {
		if mode, err = render.ParseColorMode(params.Color); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	var layers []string
	if params.Layers != "" {
		layers = strings.Split(params.Layers, ",")
	}

	ctx := c.Request.Context()
	q := params.ToQuery()
	box := models.WorldBBox
	if q.BBox != nil {
		box = *q.BBox
	} else if box, err = h.pointService.CoordsRange(ctx, q); err != nil {
		writeError(c, err)
		return
	}

	zoom := -1
	if params.Zoom != nil {
		zoom = *params.Zoom
	}
	view, err := render.NewView(box, zoom, width, height, q)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	coordinator, err := h.pipeline.Coordinator(layers, mode)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer coordinator.Close()

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}
	img, err := coordinator.Render(ctx, view)
	if err != nil {
		h.logger.Warn("render failed", zap.Stringer("bbox", box), zap.Error(err))
		response.Unavailable(c, err.Error())
		return
	}

	c.Header("Content-Type", "image/png")
	c.Header("X-Render-Zoom", strconv.Itoa(view.Zoom))
	c.Status(http.StatusOK)
	if err := png.Encode(c.Writer, img); err != nil {
		h.logger.Warn("failed to encode image", zap.Error(err))
	}
}
