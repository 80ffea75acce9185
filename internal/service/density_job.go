package service

import (
	"context"

	"github.com/jengzang/trackmap/internal/analysis"
	"github.com/jengzang/trackmap/internal/models"
)

// DensityRecomputeName is the registry name of the density rebuild job
const DensityRecomputeName = "density_recompute"

// DensityRecomputeJob rebuilds every density tier as a background job
type DensityRecomputeJob struct {
	points *PointService
}

// NewDensityRecomputeJob creates the density rebuild job
func NewDensityRecomputeJob(points *PointService) *DensityRecomputeJob {
	return &DensityRecomputeJob{points: points}
}

// Name returns the job name
func (j *DensityRecomputeJob) Name() string {
	return DensityRecomputeName
}

// Analyze drops and refills the density tiers
func (j *DensityRecomputeJob) Analyze(ctx context.Context, progress *analysis.Progress) error {
	total, err := j.points.Count(ctx, models.AllPoints())
	if err != nil {
		return err
	}
	progress.SetTotal(total)

	n, err := j.points.RecomputeDensity(ctx)
	progress.Add(n)
	return err
}
