package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"math"

	"github.com/jengzang/trackmap/internal/database"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/spatial"
)

// DebounceWindowMillis is the minimum gap between two points before a
// cell's visit counter is incremented again
const DebounceWindowMillis = 15 * 60 * 1000

const (
	bumpCellSQL = `UPDATE density_cells
		SET amount = amount + 1, lastPointTime = ?
		WHERE xIndex = ? AND yIndex = ? AND (? - lastPointTime) > ?`
	seedCellSQL = `INSERT OR IGNORE INTO density_cells (xIndex, yIndex, lastPointTime, amount)
		VALUES (?, ?, ?, 1)`
)

// DensityRepository stores the visit counters of one density tier. The
// globe is divided into subdivisions x subdivisions Web-Mercator cells.
type DensityRepository struct {
	db           *sql.DB
	name         string
	subdivisions int64
}

// NewDensityRepository creates a density tier store
func NewDensityRepository(db *sql.DB, name string, subdivisions int64) *DensityRepository {
	return &DensityRepository{db: db, name: name, subdivisions: subdivisions}
}

// Name returns the tier name
func (r *DensityRepository) Name() string {
	return r.name
}

// Subdivisions returns the number of cells per axis
func (r *DensityRepository) Subdivisions() int64 {
	return r.subdivisions
}

// CellIndex maps a coordinate to its cell
func (r *DensityRepository) CellIndex(lat, lon float64) (x, y int64) {
	fx, fy := r.fractionalIndex(lat, lon)
	return r.clampIndex(math.Floor(fx)), r.clampIndex(math.Floor(fy))
}

func (r *DensityRepository) fractionalIndex(lat, lon float64) (float64, float64) {
	lat = math.Max(-spatial.MaxMercatorLat, math.Min(spatial.MaxMercatorLat, lat))
	n := float64(r.subdivisions)
	return (lon + 180) / 360 * n, spatial.MercatorY(lat) * n
}

func (r *DensityRepository) clampIndex(v float64) int64 {
	if v < 0 {
		return 0
	}
	if v > float64(r.subdivisions-1) {
		return r.subdivisions - 1
	}
	return int64(v)
}

// AddPoint counts a point into its cell. The counter of an existing cell
// only grows when the point is more than the debounce window newer than
// the last counted one.
func (r *DensityRepository) AddPoint(ctx context.Context, lat, lon float64, timestampMillis int64) error {
	x, y := r.CellIndex(lat, lon)
	err := database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		return addCell(ctx, tx, x, y, timestampMillis)
	})
	return models.NewStorageError("add density point "+r.name, err)
}

// AddPoints counts a batch of points in a single transaction
func (r *DensityRepository) AddPoints(ctx context.Context, samples []models.PointSample) error {
	if len(samples) == 0 {
		return nil
	}
	err := database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		for _, s := range samples {
			x, y := r.CellIndex(s.Latitude, s.Longitude)
			if err := addCell(ctx, tx, x, y, s.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
	return models.NewStorageError("add density batch "+r.name, err)
}

func addCell(ctx context.Context, tx *sql.Tx, x, y, ts int64) error {
	if _, err := tx.ExecContext(ctx, bumpCellSQL, ts, x, y, ts, DebounceWindowMillis); err != nil {
		return fmt.Errorf("failed to update cell (%d, %d): %w", x, y, err)
	}
	if _, err := tx.ExecContext(ctx, seedCellSQL, x, y, ts); err != nil {
		return fmt.Errorf("failed to insert cell (%d, %d): %w", x, y, err)
	}
	return nil
}

// IndexRange converts a bounding box into inclusive cell index ranges
func (r *DensityRepository) IndexRange(b models.BBox) (minX, maxX, minY, maxY int64) {
	minX, minY = r.CellIndex(b.MaxLat, b.MinLon)
	maxX, maxY = r.CellIndex(b.MinLat, b.MaxLon)
	return minX, maxX, minY, maxY
}

// GetCell returns a single cell, nil when it does not exist
func (r *DensityRepository) GetCell(ctx context.Context, x, y int64) (*models.DensityCell, error) {
	query := "SELECT xIndex, yIndex, lastPointTime, amount FROM density_cells WHERE xIndex = ? AND yIndex = ?"

	var c models.DensityCell
	err := r.db.QueryRowContext(ctx, query, x, y).Scan(&c.XIndex, &c.YIndex, &c.LastPointTime, &c.Amount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError("get cell "+r.name, err)
	}
	return &c, nil
}

// GetCells returns a lazily evaluated sequence of the cells inside the box
func (r *DensityRepository) GetCells(ctx context.Context, b models.BBox) iter.Seq2[models.DensityCell, error] {
	minX, maxX, minY, maxY := r.IndexRange(b)
	query := `SELECT xIndex, yIndex, lastPointTime, amount FROM density_cells
		WHERE xIndex BETWEEN ? AND ? AND yIndex BETWEEN ? AND ?`

	return func(yield func(models.DensityCell, error) bool) {
		rows, err := r.db.QueryContext(ctx, query, minX, maxX, minY, maxY)
		if err != nil {
			yield(models.DensityCell{}, models.NewStorageError("query cells "+r.name, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var c models.DensityCell
			if err := rows.Scan(&c.XIndex, &c.YIndex, &c.LastPointTime, &c.Amount); err != nil {
				yield(models.DensityCell{}, models.NewStorageError("scan cell "+r.name, err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.DensityCell{}, models.NewStorageError("query cells "+r.name, err))
		}
	}
}

// CountCells returns the number of cells inside the box
func (r *DensityRepository) CountCells(ctx context.Context, b models.BBox) (int64, error) {
	minX, maxX, minY, maxY := r.IndexRange(b)
	query := "SELECT COUNT(*) FROM density_cells WHERE xIndex BETWEEN ? AND ? AND yIndex BETWEEN ? AND ?"

	var total int64
	if err := r.db.QueryRowContext(ctx, query, minX, maxX, minY, maxY).Scan(&total); err != nil {
		return 0, models.NewStorageError("count cells "+r.name, err)
	}
	return total, nil
}

// Drop clears the tier
func (r *DensityRepository) Drop(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM density_cells")
	return models.NewStorageError("drop "+r.name, err)
}
