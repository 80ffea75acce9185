package foundation

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/analysis"
	"github.com/jengzang/trackmap/internal/metrics"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/spatial"
)

// NeighborBackfillName is the registry name of the neighbor backfill
const NeighborBackfillName = "neighbor_backfill"

// DefaultBackfillBatchSize is the number of rows scanned per batch
const DefaultBackfillBatchSize = 5000

// NeighborStore is the slice of the point store the backfill needs
type NeighborStore interface {
	PointsMissingNeighborDistance(ctx context.Context, afterID int64, limit int) ([]models.NeighborRow, error)
	Neighbors(ctx context.Context, id int64, source string) ([]models.NeighborRow, error)
	MaxID(ctx context.Context) (int64, error)
	UpdateNeighborMetrics(ctx context.Context, metrics []models.NeighborMetric) error
}

// NeighborBackfillAnalyzer fills neighborDistance and neighborAngle of
// every point from its predecessor and successor within the same source
type NeighborBackfillAnalyzer struct {
	store     NeighborStore
	batchSize int
	logger    *zap.Logger
}

// NewNeighborBackfillAnalyzer creates the backfill analyzer
func NewNeighborBackfillAnalyzer(store NeighborStore, batchSize int, logger *zap.Logger) *NeighborBackfillAnalyzer {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	return &NeighborBackfillAnalyzer{
		store:     store,
		batchSize: batchSize,
		logger:    logger.Named(NeighborBackfillName),
	}
}

// Name returns the analyzer name
func (a *NeighborBackfillAnalyzer) Name() string {
	return NeighborBackfillName
}

// Analyze scans every row missing a neighbor distance, computes its metric
// and writes each batch in one transaction. Rows that may still be the live
// tail of the table are left for a later run.
func (a *NeighborBackfillAnalyzer) Analyze(ctx context.Context, progress *analysis.Progress) error {
	var written, deferred int64

	walker := analysis.BatchProcessor[models.NeighborRow]{
		BatchSize: a.batchSize,
		Fetch:     a.store.PointsMissingNeighborDistance,
		ID:        func(r models.NeighborRow) int64 { return r.ID },
		Process: func(ctx context.Context, batch []models.NeighborRow) error {
			results, skipped, err := a.computeBatch(ctx, batch)
			if err != nil {
				return err
			}
			if err := a.store.UpdateNeighborMetrics(ctx, results); err != nil {
				metrics.BackfillRows.WithLabelValues("failed").Add(float64(len(results)))
				return fmt.Errorf("failed to write neighbor metrics: %w", err)
			}
			written += int64(len(results))
			deferred += skipped
			metrics.BackfillRows.WithLabelValues("written").Add(float64(len(results)))
			metrics.BackfillRows.WithLabelValues("deferred").Add(float64(skipped))
			a.logger.Debug("batch written",
				zap.Int("rows", len(batch)),
				zap.Int("written", len(results)),
				zap.Int64("deferred", skipped))
			return nil
		},
	}

	if _, err := walker.Walk(ctx, progress); err != nil {
		return err
	}

	a.logger.Info("neighbor backfill finished",
		zap.Int64("written", written),
		zap.Int64("deferred", deferred))
	return nil
}

func (a *NeighborBackfillAnalyzer) computeBatch(ctx context.Context, batch []models.NeighborRow) ([]models.NeighborMetric, int64, error) {
	maxID, err := a.store.MaxID(ctx)
	if err != nil {
		return nil, 0, err
	}

	results := make([]models.NeighborMetric, 0, len(batch))
	var skipped int64
	for _, row := range batch {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		rows, err := a.store.Neighbors(ctx, row.ID, row.Source)
		if err != nil {
			return nil, 0, err
		}
		// Fewer than three rows means the row has no successor or no
		// predecessor yet; only finalize it once the table moved past it.
		if len(rows) < 3 && maxID <= row.ID {
			skipped++
			continue
		}

		m, ok := ComputeNeighborMetric(row.ID, rows)
		if !ok {
			skipped++
			continue
		}
		results = append(results, m)
	}
	return results, skipped, nil
}

// ComputeNeighborMetric derives the metric of the row with the given id
// from up to three rows ordered by id. The distance is the sum of the legs
// touching the row. The angle is only defined with both neighbors; it is
// measured between the directions towards the predecessor and towards the
// successor, so 180 means straight ahead and values near 0 a reversal.
func ComputeNeighborMetric(id int64, rows []models.NeighborRow) (models.NeighborMetric, bool) {
	m := models.NeighborMetric{ID: id}
	switch len(rows) {
	case 1:
		if rows[0].ID != id {
			return m, false
		}
		m.Distance = 0
	case 2:
		if rows[0].ID != id && rows[1].ID != id {
			return m, false
		}
		m.Distance = spatial.HaversineDistance(rows[0].Latitude, rows[0].Longitude, rows[1].Latitude, rows[1].Longitude)
	case 3:
		prev, mid, next := rows[0], rows[1], rows[2]
		if mid.ID != id {
			return m, false
		}
		m.Distance = spatial.HaversineDistance(prev.Latitude, prev.Longitude, mid.Latitude, mid.Longitude) +
			spatial.HaversineDistance(mid.Latitude, mid.Longitude, next.Latitude, next.Longitude)
		if angle, ok := spatial.TurnAngle(prev.Latitude, prev.Longitude, mid.Latitude, mid.Longitude, next.Latitude, next.Longitude); ok {
			m.Angle = &angle
		}
	default:
		return m, false
	}
	if math.IsNaN(m.Distance) {
		return m, false
	}
	return m, true
}
