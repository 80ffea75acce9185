package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trackmap/internal/analysis"
	"github.com/jengzang/trackmap/internal/analysis/foundation"
	"github.com/jengzang/trackmap/internal/service"
	"github.com/jengzang/trackmap/pkg/response"
)

// MaintenanceHandler handles HTTP requests for background jobs
type MaintenanceHandler struct {
	engine *analysis.Engine
	// jobs outlive the request that started them
	ctx context.Context
}

// NewMaintenanceHandler creates a new maintenance handler. Jobs started
// through it are cancelled with ctx.
func NewMaintenanceHandler(ctx context.Context, engine *analysis.Engine) *MaintenanceHandler {
	return &MaintenanceHandler{
		engine: engine,
		ctx:    ctx,
	}
}

func (h *MaintenanceHandler) start(c *gin.Context, name string) {
	run, err := h.engine.Start(h.ctx, name)
	switch {
	case errors.Is(err, analysis.ErrUnknownAnalyzer):
		response.NotFound(c, "Job not found")
		return
	case errors.Is(err, analysis.ErrAlreadyRunning):
		response.Conflict(c, "Job already running", run.Snapshot())
		return
	case err != nil:
		response.InternalError(c, err.Error())
		return
	}

	response.Accepted(c, run.Snapshot())
}

// StartBackfill handles POST /api/v1/maintenance/backfill
func (h *MaintenanceHandler) StartBackfill(c *gin.Context) {
	h.start(c, foundation.NeighborBackfillName)
}

// RecomputeDensity handles POST /api/v1/density/recompute
func (h *MaintenanceHandler) RecomputeDensity(c *gin.Context) {
	h.start(c, service.DensityRecomputeName)
}

// ListJobs handles GET /api/v1/maintenance
func (h *MaintenanceHandler) ListJobs(c *gin.Context) {
	jobs := make(map[string]*analysis.ProgressSnapshot)
	for _, name := range h.engine.Names() {
		var snapshot *analysis.ProgressSnapshot
		if run := h.engine.Status(name); run != nil {
			s := run.Snapshot()
			snapshot = &s
		}
		jobs[name] = snapshot
	}

	response.Success(c, jobs)
}

// GetJob handles GET /api/v1/maintenance/:name
func (h *MaintenanceHandler) GetJob(c *gin.Context) {
	run := h.engine.Status(c.Param("name"))
	if run == nil {
		response.NotFound(c, "Job has not run")
		return
	}

	response.Success(c, run.Snapshot())
}

// CancelJob handles DELETE /api/v1/maintenance/:name
func (h *MaintenanceHandler) CancelJob(c *gin.Context) {
	run := h.engine.Status(c.Param("name"))
	if run == nil {
		response.NotFound(c, "Job has not run")
		return
	}
	run.Cancel()

	response.Success(c, run.Snapshot())
}
