package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/service"
	"github.com/jengzang/trackmap/pkg/response"
)

const (
	defaultCellLimit = 10_000
	maxCellLimit     = 200_000
)

// DensityCellsParams represents query parameters for density cell reads
type DensityCellsParams struct {
	Zoom   *int     `form:"zoom" binding:"required"`
	MinLat *float64 `form:"minLat"`
	MaxLat *float64 `form:"maxLat"`
	MinLon *float64 `form:"minLon"`
	MaxLon *float64 `form:"maxLon"`
	Limit  int      `form:"limit"`
}

// BBox returns the requested box, the world when none is given
func (p DensityCellsParams) BBox() models.BBox {
	if p.MinLat == nil || p.MaxLat == nil || p.MinLon == nil || p.MaxLon == nil {
		return models.WorldBBox
	}
	return models.BBox{MinLat: *p.MinLat, MaxLat: *p.MaxLat, MinLon: *p.MinLon, MaxLon: *p.MaxLon}
}

// DensityHandler handles HTTP requests for density cells
type DensityHandler struct {
	densityService *service.DensityService
}

// NewDensityHandler creates a new density handler
func NewDensityHandler(densityService *service.DensityService) *DensityHandler {
	return &DensityHandler{
		densityService: densityService,
	}
}

// GetCells handles GET /api/v1/density/cells
func (h *DensityHandler) GetCells(c *gin.Context) {
	var params DensityCellsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	if *params.Zoom < 0 {
		response.BadRequest(c, "Invalid zoom level")
		return
	}
	box := params.BBox()
	if !box.IsValid() {
		response.BadRequest(c, "Invalid bounding box")
		return
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultCellLimit
	}
	limit = min(limit, maxCellLimit)

	zoom := *params.Zoom
	store := h.densityService.StoreForZoom(zoom)
	result := models.DensityCellsResponse{
		Tier:         store.Name(),
		Subdivisions: store.Subdivisions(),
		Cells:        []models.DensityCell{},
	}
	for cell, err := range h.densityService.Cells(c.Request.Context(), zoom, box) {
		if err != nil {
			writeError(c, err)
			return
		}
		if len(result.Cells) == limit {
			break
		}
		result.Cells = append(result.Cells, cell)
	}

	response.Success(c, result)
}
