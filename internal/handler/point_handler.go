package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/service"
	"github.com/jengzang/trackmap/pkg/response"
)

const (
	defaultPointLimit = 10_000
	maxPointLimit     = 100_000
)

// PointsListParams adds paging to the point query parameters
type PointsListParams struct {
	models.PointsQueryParams
	Limit int `form:"limit"`
}

// PointHandler handles HTTP requests for stored points
type PointHandler struct {
	pointService *service.PointService
}

// NewPointHandler creates a new point handler
func NewPointHandler(pointService *service.PointService) *PointHandler {
	return &PointHandler{
		pointService: pointService,
	}
}

// writeError maps service errors onto response envelopes
func writeError(c *gin.Context, err error) {
	var parseErr *models.ParseError
	switch {
	case errors.As(err, &parseErr), errors.Is(err, models.ErrInvalidCoordinates):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}

// IngestPoints handles POST /api/v1/points
func (h *PointHandler) IngestPoints(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if len(req.Points) == 0 {
		response.BadRequest(c, "No points in request")
		return
	}

	result, err := h.pointService.Ingest(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// TrackPoint handles POST /api/v1/points/track
func (h *PointHandler) TrackPoint(c *gin.Context) {
	var raw models.RawPoint
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	source := c.DefaultQuery("source", "live")

	id, err := h.pointService.Track(c.Request.Context(), raw, source)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"id": id, "source": source})
}

// GetPoints handles GET /api/v1/points
func (h *PointHandler) GetPoints(c *gin.Context) {
	var params PointsListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPointLimit
	}
	limit = min(limit, maxPointLimit)

	ctx := c.Request.Context()
	q := params.ToQuery()
	total, err := h.pointService.Count(ctx, q)
	if err != nil {
		writeError(c, err)
		return
	}

	result := models.PointsResponse{Total: total, Points: make([]models.PointSample, 0, min(int64(limit), total))}
	for p, err := range h.pointService.QueryPoints(ctx, q) {
		if err != nil {
			writeError(c, err)
			return
		}
		if len(result.Points) == limit {
			result.Truncated = true
			break
		}
		result.Points = append(result.Points, p)
	}

	response.Success(c, result)
}

// GetTimeRange handles GET /api/v1/points/time-range
func (h *PointHandler) GetTimeRange(c *gin.Context) {
	var params models.PointsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	start, end, err := h.pointService.TimeRange(c.Request.Context(), params.ToQuery())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, models.TimeRangeResponse{Start: start, End: end})
}

// GetCoordsRange handles GET /api/v1/points/coords-range
func (h *PointHandler) GetCoordsRange(c *gin.Context) {
	var params models.PointsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	box, err := h.pointService.CoordsRange(c.Request.Context(), params.ToQuery())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, box)
}

// GetSources handles GET /api/v1/sources
func (h *PointHandler) GetSources(c *gin.Context) {
	sources, err := h.pointService.Sources(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, sources)
}

// DeleteSource handles DELETE /api/v1/sources/:source
func (h *PointHandler) DeleteSource(c *gin.Context) {
	source := c.Param("source")
	if source == "" || source == models.AllSources {
		response.BadRequest(c, "Invalid source")
		return
	}

	n, err := h.pointService.DeleteBySource(c.Request.Context(), source)
	if err != nil {
		writeError(c, err)
		return
	}
	if n == 0 {
		response.NotFound(c, "Source not found")
		return
	}

	response.Success(c, models.DeleteResponse{Deleted: n})
}

// DeletePoints handles DELETE /api/v1/points
func (h *PointHandler) DeletePoints(c *gin.Context) {
	var params models.PointsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	q := params.ToQuery()
	// an unfiltered delete has to be asked for explicitly
	if !q.FiltersSource() && q.BBox == nil && params.Start == 0 && params.End == 0 && c.Query("all") != "true" {
		response.UnprocessableEntity(c, "Refusing to delete without a filter, pass all=true")
		return
	}

	n, err := h.pointService.DeleteByQuery(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, models.DeleteResponse{Deleted: n})
}
