package service

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/trackmap/internal/metrics"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/repository"
)

// recomputeBatchSize is the number of points streamed into the tiers per transaction
const recomputeBatchSize = 1000

// PointSource streams stored points
type PointSource interface {
	QueryPoints(ctx context.Context, q models.PointsQuery) iter.Seq2[models.PointSample, error]
}

// DensityService routes density reads to the tier matching a zoom level
// and fans writes out to every tier
type DensityService struct {
	tiers  map[models.Tier]*repository.DensityRepository
	logger *zap.Logger
}

// NewDensityService creates a density service over one store per tier
func NewDensityService(tiers map[models.Tier]*repository.DensityRepository, logger *zap.Logger) (*DensityService, error) {
	for _, t := range models.Tiers {
		if tiers[t] == nil {
			return nil, fmt.Errorf("missing density store for tier %s", t)
		}
	}
	return &DensityService{tiers: tiers, logger: logger.Named("density")}, nil
}

// TierForZoom selects the tier whose resolution suits a map zoom level
func TierForZoom(zoom int) models.Tier {
	switch {
	case zoom < 5:
		return models.TierWorld
	case zoom < 8:
		return models.TierContinent
	case zoom < 11:
		return models.TierCountry
	case zoom < 14:
		return models.TierCity
	default:
		return models.TierStreet
	}
}

// Tier returns the store of a tier
func (s *DensityService) Tier(t models.Tier) *repository.DensityRepository {
	return s.tiers[t]
}

// StoreForZoom returns the store read at a zoom level
func (s *DensityService) StoreForZoom(zoom int) *repository.DensityRepository {
	return s.tiers[TierForZoom(zoom)]
}

// AddPoint counts a point into all tiers
func (s *DensityService) AddPoint(ctx context.Context, lat, lon float64, timestampMillis int64) error {
	return s.eachTier(ctx, func(ctx context.Context, t models.Tier, store *repository.DensityRepository) error {
		if err := store.AddPoint(ctx, lat, lon, timestampMillis); err != nil {
			return err
		}
		metrics.DensityUpdates.WithLabelValues(t.String()).Inc()
		return nil
	})
}

// AddLocation counts a stored point into all tiers
func (s *DensityService) AddLocation(ctx context.Context, p models.LocationPoint) error {
	var ts int64
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}
	return s.AddPoint(ctx, p.Latitude, p.Longitude, ts)
}

// AddPoints counts a batch of points into all tiers
func (s *DensityService) AddPoints(ctx context.Context, samples []models.PointSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.eachTier(ctx, func(ctx context.Context, t models.Tier, store *repository.DensityRepository) error {
		if err := store.AddPoints(ctx, samples); err != nil {
			return err
		}
		metrics.DensityUpdates.WithLabelValues(t.String()).Add(float64(len(samples)))
		return nil
	})
}

// eachTier runs fn against every tier concurrently; tiers are independent stores
func (s *DensityService) eachTier(ctx context.Context, fn func(context.Context, models.Tier, *repository.DensityRepository) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range models.Tiers {
		store := s.tiers[t]
		g.Go(func() error {
			return fn(gctx, t, store)
		})
	}
	return g.Wait()
}

// Cells returns the cells inside the box from the tier matching zoom
func (s *DensityService) Cells(ctx context.Context, zoom int, b models.BBox) iter.Seq2[models.DensityCell, error] {
	return s.StoreForZoom(zoom).GetCells(ctx, b)
}

// CountCells counts the cells Cells would return
func (s *DensityService) CountCells(ctx context.Context, zoom int, b models.BBox) (int64, error) {
	return s.StoreForZoom(zoom).CountCells(ctx, b)
}

// Drop clears every tier
func (s *DensityService) Drop(ctx context.Context) error {
	return s.eachTier(ctx, func(ctx context.Context, _ models.Tier, store *repository.DensityRepository) error {
		return store.Drop(ctx)
	})
}

// RecomputeAll drops all tiers and rebuilds them from every stored point.
// It stops between batches when ctx is cancelled, leaving the tiers
// partially filled. Returns the number of points counted.
func (s *DensityService) RecomputeAll(ctx context.Context, src PointSource) (int64, error) {
	if err := s.Drop(ctx); err != nil {
		return 0, fmt.Errorf("failed to drop density tiers: %w", err)
	}
	s.logger.Info("recomputing density")

	var processed int64
	batch := make([]models.PointSample, 0, recomputeBatchSize)
	flush := func() error {
		if err := s.AddPoints(ctx, batch); err != nil {
			return err
		}
		processed += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for p, err := range src.QueryPoints(ctx, models.AllPoints()) {
		if err != nil {
			return processed, err
		}
		batch = append(batch, p)
		if len(batch) < recomputeBatchSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := flush(); err != nil {
			return processed, err
		}
	}
	if err := flush(); err != nil {
		return processed, err
	}

	s.logger.Info("density recomputed", zap.Int64("points", processed))
	return processed, nil
}
