package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/jengzang/trackmap/internal/database"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/spatial"
)

// groupingSpan is the latitude span (degrees) from which point queries
// thin results to one row per coarse hash
const groupingSpan = 2.0

// PointRepository handles database operations for location points
type PointRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPointRepository creates a new point repository
func NewPointRepository(db *sql.DB) *PointRepository {
	return &PointRepository{db: db, now: time.Now}
}

const upsertPointSQL = `INSERT OR REPLACE INTO points
	(timestamp, latitude, longitude, speed, speedAccuracy, accuracy, source, createdOn, coarseHash, fineHash)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ValidateCoordinates rejects NaN, infinite and out of range coordinates
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return models.ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return models.ErrInvalidCoordinates
	}
	return nil
}

// Save stores a point under source. A row with the same (timestamp, source)
// is replaced. Returns the id of the stored row.
func (r *PointRepository) Save(ctx context.Context, p models.LocationPoint, source string) (int64, error) {
	if err := ValidateCoordinates(p.Latitude, p.Longitude); err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, upsertPointSQL, r.pointArgs(p, source)...)
	if err != nil {
		return 0, models.NewStorageError("save point", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, models.NewStorageError("save point", err)
	}
	return id, nil
}

// SaveBatch stores all points under source in a single transaction.
// Points with invalid coordinates are reported by index and skipped.
func (r *PointRepository) SaveBatch(ctx context.Context, points []models.LocationPoint, source string) (saved int, rejected []int, err error) {
	err = database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertPointSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, p := range points {
			if ValidateCoordinates(p.Latitude, p.Longitude) != nil {
				rejected = append(rejected, i)
				continue
			}
			if _, err := stmt.ExecContext(ctx, r.pointArgs(p, source)...); err != nil {
				return fmt.Errorf("failed to save point %d: %w", i, err)
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, nil, models.NewStorageError("save batch", err)
	}
	return saved, rejected, nil
}

func (r *PointRepository) pointArgs(p models.LocationPoint, source string) []interface{} {
	var ts int64
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}
	coarse, fine := spatial.Hash(p.Latitude, p.Longitude, ts)

	createdOn := p.CreatedOn
	if createdOn == 0 {
		createdOn = r.now().UnixMilli()
	}

	return []interface{}{
		nullInt64(p.Timestamp), p.Latitude, p.Longitude,
		nullFloat64(p.Speed), nullFloat64(p.SpeedAccuracy), nullFloat64(p.Accuracy),
		source, createdOn, coarse, fine,
	}
}

// GetPointByID retrieves a single point by id
func (r *PointRepository) GetPointByID(ctx context.Context, id int64) (*models.LocationPoint, error) {
	query := `SELECT id, timestamp, latitude, longitude, speed, speedAccuracy, accuracy, source,
		createdOn, coarseHash, fineHash, neighborDistance, neighborAngle
		FROM points WHERE id = ?`

	var p models.LocationPoint
	var ts sql.NullInt64
	var speed, speedAcc, acc, dist, angle sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &ts, &p.Latitude, &p.Longitude, &speed, &speedAcc, &acc, &p.Source,
		&p.CreatedOn, &p.CoarseHash, &p.FineHash, &dist, &angle,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError("get point", err)
	}

	p.Timestamp = int64Ptr(ts)
	p.Speed = float64Ptr(speed)
	p.SpeedAccuracy = float64Ptr(speedAcc)
	p.Accuracy = float64Ptr(acc)
	p.NeighborDistance = float64Ptr(dist)
	p.NeighborAngle = float64Ptr(angle)
	return &p, nil
}

// buildConditions turns a query into a conjunctive WHERE clause
func buildConditions(q models.PointsQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.BBox != nil {
		conditions = append(conditions, "latitude BETWEEN ? AND ?", "longitude BETWEEN ? AND ?")
		args = append(args, q.BBox.MinLat, q.BBox.MaxLat, q.BBox.MinLon, q.BBox.MaxLon)
	}
	if q.MinAccuracy != nil {
		conditions = append(conditions, "(accuracy IS NULL OR accuracy <= ?)")
		args = append(args, *q.MinAccuracy)
	}
	if q.MinAngle > 0 {
		conditions = append(conditions, "(neighborAngle IS NULL OR neighborAngle >= ?)")
		args = append(args, q.MinAngle)
	}
	conditions = append(conditions, "(timestamp IS NULL OR timestamp BETWEEN ? AND ?)")
	args = append(args, q.StartMillis, q.EndMillis)
	if q.FiltersSource() {
		conditions = append(conditions, "source = ?")
		args = append(args, q.DataSource)
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// groupColumn picks the hash column used to thin results for the query's
// latitude span, or "" when every row should be returned
func groupColumn(q models.PointsQuery) string {
	if q.BBox == nil {
		return ""
	}
	if q.BBox.LatRange() < groupingSpan {
		return ""
	}
	return "coarseHash"
}

// QueryPoints returns a lazily evaluated sequence of matching points in
// ascending timestamp order. Each iteration runs the query anew and the
// underlying cursor is closed when the loop ends, however it ends.
func (r *PointRepository) QueryPoints(ctx context.Context, q models.PointsQuery) iter.Seq2[models.PointSample, error] {
	where, args := buildConditions(q)
	query := "SELECT timestamp, latitude, longitude FROM points" + where + " ORDER BY timestamp ASC"
	if col := groupColumn(q); col != "" {
		// SQLite takes the bare columns from the row holding MIN(timestamp)
		query = "SELECT MIN(timestamp), latitude, longitude FROM points" + where +
			" GROUP BY " + col + " ORDER BY MIN(timestamp) ASC"
	}

	return func(yield func(models.PointSample, error) bool) {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.PointSample{}, models.NewStorageError("query points", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var s models.PointSample
			var ts sql.NullInt64
			if err := rows.Scan(&ts, &s.Latitude, &s.Longitude); err != nil {
				yield(models.PointSample{}, models.NewStorageError("scan point", err))
				return
			}
			s.Timestamp, s.HasTimestamp = ts.Int64, ts.Valid
			if !yield(s, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.PointSample{}, models.NewStorageError("query points", err))
		}
	}
}

// Count returns the number of rows QueryPoints would yield
func (r *PointRepository) Count(ctx context.Context, q models.PointsQuery) (int64, error) {
	where, args := buildConditions(q)
	query := "SELECT COUNT(*) FROM points" + where
	if col := groupColumn(q); col != "" {
		query = "SELECT COUNT(DISTINCT " + col + ") FROM points" + where
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, models.NewStorageError("count points", err)
	}
	return total, nil
}

// TimeRange returns the smallest and largest timestamp matching the query,
// or (0, now) when nothing matches
func (r *PointRepository) TimeRange(ctx context.Context, q models.PointsQuery) (int64, int64, error) {
	where, args := buildConditions(q)
	query := "SELECT MIN(timestamp), MAX(timestamp) FROM points" + where

	var minTs, maxTs sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&minTs, &maxTs); err != nil {
		return 0, 0, models.NewStorageError("time range", err)
	}
	if !minTs.Valid || !maxTs.Valid {
		return 0, r.now().UnixMilli(), nil
	}
	return minTs.Int64, maxTs.Int64, nil
}

// CoordsRange returns the extent of the matching points. When the extent
// has zero height or width the canonical world box is returned instead.
func (r *PointRepository) CoordsRange(ctx context.Context, q models.PointsQuery) (models.BBox, error) {
	where, args := buildConditions(q)
	query := "SELECT MIN(latitude), MAX(latitude), MIN(longitude), MAX(longitude) FROM points" + where

	var minLat, maxLat, minLon, maxLon sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&minLat, &maxLat, &minLon, &maxLon); err != nil {
		return models.BBox{}, models.NewStorageError("coords range", err)
	}
	if !minLat.Valid || minLat.Float64 == maxLat.Float64 || minLon.Float64 == maxLon.Float64 {
		return models.WorldBBox, nil
	}

	return models.BBox{
		MinLat: minLat.Float64,
		MaxLat: maxLat.Float64,
		MinLon: minLon.Float64,
		MaxLon: maxLon.Float64,
	}, nil
}

// DeleteBySource removes every point of a source
func (r *PointRepository) DeleteBySource(ctx context.Context, source string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM points WHERE source = ?", source)
	if err != nil {
		return 0, models.NewStorageError("delete source", err)
	}
	n, err := res.RowsAffected()
	return n, models.NewStorageError("delete source", err)
}

// DeleteByQuery removes every point matching the query filter
func (r *PointRepository) DeleteByQuery(ctx context.Context, q models.PointsQuery) (int64, error) {
	where, args := buildConditions(q)
	res, err := r.db.ExecContext(ctx, "DELETE FROM points"+where, args...)
	if err != nil {
		return 0, models.NewStorageError("delete points", err)
	}
	n, err := res.RowsAffected()
	return n, models.NewStorageError("delete points", err)
}

// Sources lists the distinct source tags with their point counts
func (r *PointRepository) Sources(ctx context.Context) ([]models.SourceSummary, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM points GROUP BY source ORDER BY source")
	if err != nil {
		return nil, models.NewStorageError("list sources", err)
	}
	defer rows.Close()

	var sources []models.SourceSummary
	for rows.Next() {
		var s models.SourceSummary
		if err := rows.Scan(&s.Source, &s.Points); err != nil {
			return nil, models.NewStorageError("scan source", err)
		}
		sources = append(sources, s)
	}
	return sources, models.NewStorageError("list sources", rows.Err())
}

// PointsMissingNeighborDistance returns up to limit rows with id > afterID
// whose neighbor distance has not been computed, ordered by id
func (r *PointRepository) PointsMissingNeighborDistance(ctx context.Context, afterID int64, limit int) ([]models.NeighborRow, error) {
	query := `SELECT id, source, latitude, longitude FROM points
		WHERE neighborDistance IS NULL AND id > ?
		ORDER BY id ASC
		LIMIT ?`

	return r.queryNeighborRows(ctx, "scan missing neighbors", query, afterID, limit)
}

// Neighbors returns the row with the given id together with its immediate
// predecessor and successor within the same source, ordered by id
func (r *PointRepository) Neighbors(ctx context.Context, id int64, source string) ([]models.NeighborRow, error) {
	query := `SELECT id, source, latitude, longitude FROM points
		WHERE source = ? AND id IN (
			(SELECT MAX(id) FROM points WHERE source = ? AND id < ?),
			?,
			(SELECT MIN(id) FROM points WHERE source = ? AND id > ?)
		)
		ORDER BY id ASC`

	return r.queryNeighborRows(ctx, "query neighbors", query, source, source, id, id, source, id)
}

func (r *PointRepository) queryNeighborRows(ctx context.Context, op, query string, args ...interface{}) ([]models.NeighborRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewStorageError(op, err)
	}
	defer rows.Close()

	var result []models.NeighborRow
	for rows.Next() {
		var n models.NeighborRow
		if err := rows.Scan(&n.ID, &n.Source, &n.Latitude, &n.Longitude); err != nil {
			return nil, models.NewStorageError(op, err)
		}
		result = append(result, n)
	}
	return result, models.NewStorageError(op, rows.Err())
}

// MaxID returns the highest row id in the table, 0 when it is empty
func (r *PointRepository) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(id) FROM points").Scan(&id); err != nil {
		return 0, models.NewStorageError("max id", err)
	}
	return id.Int64, nil
}

// UpdateNeighborMetrics writes backfill results in a single transaction
func (r *PointRepository) UpdateNeighborMetrics(ctx context.Context, metrics []models.NeighborMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	err := database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "UPDATE points SET neighborDistance = ?, neighborAngle = ? WHERE id = ?")
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx, m.Distance, nullFloat64(m.Angle), m.ID); err != nil {
				return fmt.Errorf("failed to update point %d: %w", m.ID, err)
			}
		}
		return nil
	})
	return models.NewStorageError("update neighbor metrics", err)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func float64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
