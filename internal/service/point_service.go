package service

import (
	"context"
	"fmt"
	"iter"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/metrics"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/repository"
)

// PointService handles ingestion and queries of location points
type PointService struct {
	points  *repository.PointRepository
	density *DensityService
	logger  *zap.Logger
}

// NewPointService creates a new point service
func NewPointService(points *repository.PointRepository, density *DensityService, logger *zap.Logger) *PointService {
	return &PointService{
		points:  points,
		density: density,
		logger:  logger.Named("points"),
	}
}

// validateRaw checks a record before it reaches the store
func validateRaw(p models.RawPoint) string {
	if err := repository.ValidateCoordinates(p.Latitude, p.Longitude); err != nil {
		return fmt.Sprintf("invalid coordinates (%v, %v)", p.Latitude, p.Longitude)
	}
	for name, v := range map[string]*float64{"speed": p.Speed, "speedAccuracy": p.SpeedAccuracy, "accuracy": p.Accuracy} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return "invalid " + name
		}
	}
	if p.Accuracy != nil && *p.Accuracy < 0 {
		return "negative accuracy"
	}
	return ""
}

func toLocationPoint(p models.RawPoint) models.LocationPoint {
	return models.LocationPoint{
		Timestamp:     p.Timestamp,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		Speed:         p.Speed,
		SpeedAccuracy: p.SpeedAccuracy,
		Accuracy:      p.Accuracy,
	}
}

// Ingest stores a batch of records and counts them into the density tiers.
// Malformed records are skipped and reported; the rest of the batch continues.
func (s *PointService) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	source := req.Source
	if source == "" {
		source = "import-" + uuid.NewString()
	}

	result := &models.IngestResult{Source: source}
	valid := make([]models.LocationPoint, 0, len(req.Points))
	samples := make([]models.PointSample, 0, len(req.Points))
	for i, raw := range req.Points {
		if reason := validateRaw(raw); reason != "" {
			result.Errors = append(result.Errors, models.ParseError{Index: i, Reason: reason})
			continue
		}
		lp := toLocationPoint(raw)
		valid = append(valid, lp)

		sample := models.PointSample{Latitude: raw.Latitude, Longitude: raw.Longitude}
		if raw.Timestamp != nil {
			sample.Timestamp, sample.HasTimestamp = *raw.Timestamp, true
		}
		samples = append(samples, sample)
	}
	result.Skipped = len(result.Errors)

	saved, _, err := s.points.SaveBatch(ctx, valid, source)
	if err != nil {
		return nil, err
	}
	result.Saved = saved

	if err := s.density.AddPoints(ctx, samples); err != nil {
		return nil, fmt.Errorf("failed to update density: %w", err)
	}

	metrics.PointsIngested.WithLabelValues("saved").Add(float64(result.Saved))
	metrics.PointsIngested.WithLabelValues("skipped").Add(float64(result.Skipped))
	s.logger.Info("ingested points",
		zap.String("source", source),
		zap.Int("saved", result.Saved),
		zap.Int("skipped", result.Skipped))

	return result, nil
}

// Track stores a single live fix and counts it into the density tiers
func (s *PointService) Track(ctx context.Context, raw models.RawPoint, source string) (int64, error) {
	if reason := validateRaw(raw); reason != "" {
		return 0, &models.ParseError{Reason: reason}
	}

	lp := toLocationPoint(raw)
	id, err := s.points.Save(ctx, lp, source)
	if err != nil {
		return 0, err
	}
	if err := s.density.AddLocation(ctx, lp); err != nil {
		return id, fmt.Errorf("failed to update density: %w", err)
	}
	metrics.PointsIngested.WithLabelValues("saved").Inc()
	return id, nil
}

// QueryPoints streams points matching the query
func (s *PointService) QueryPoints(ctx context.Context, q models.PointsQuery) iter.Seq2[models.PointSample, error] {
	return s.points.QueryPoints(ctx, q)
}

// Count counts points matching the query
func (s *PointService) Count(ctx context.Context, q models.PointsQuery) (int64, error) {
	return s.points.Count(ctx, q)
}

// TimeRange returns the time extent of the query
func (s *PointService) TimeRange(ctx context.Context, q models.PointsQuery) (int64, int64, error) {
	return s.points.TimeRange(ctx, q)
}

// CoordsRange returns the spatial extent of the query
func (s *PointService) CoordsRange(ctx context.Context, q models.PointsQuery) (models.BBox, error) {
	return s.points.CoordsRange(ctx, q)
}

// Sources lists the stored sources
func (s *PointService) Sources(ctx context.Context) ([]models.SourceSummary, error) {
	return s.points.Sources(ctx)
}

// DeleteBySource removes a whole dataset
func (s *PointService) DeleteBySource(ctx context.Context, source string) (int64, error) {
	n, err := s.points.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted source", zap.String("source", source), zap.Int64("points", n))
	return n, nil
}

// DeleteByQuery removes the points matching the query
func (s *PointService) DeleteByQuery(ctx context.Context, q models.PointsQuery) (int64, error) {
	n, err := s.points.DeleteByQuery(ctx, q)
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted points", zap.Int64("points", n))
	return n, nil
}

// RecomputeDensity rebuilds all density tiers from the stored points
func (s *PointService) RecomputeDensity(ctx context.Context) (int64, error) {
	return s.density.RecomputeAll(ctx, s.points)
}
