package models

// LocationPoint represents a stored GPS fix
type LocationPoint struct {
	ID            int64    `json:"id" db:"id"`
	Timestamp     *int64   `json:"timestamp,omitempty" db:"timestamp"` // Unix milliseconds
	Latitude      float64  `json:"latitude" db:"latitude"`
	Longitude     float64  `json:"longitude" db:"longitude"`
	Speed         *float64 `json:"speed,omitempty" db:"speed"`
	SpeedAccuracy *float64 `json:"speedAccuracy,omitempty" db:"speedAccuracy"`
	Accuracy      *float64 `json:"accuracy,omitempty" db:"accuracy"`
	Source        string   `json:"source" db:"source"`
	CreatedOn     int64    `json:"createdOn" db:"createdOn"` // Unix milliseconds

	// Grouping keys, see spatial.Hash
	CoarseHash int64 `json:"coarseHash" db:"coarseHash"`
	FineHash   int64 `json:"fineHash" db:"fineHash"`

	// Filled once by the neighbor backfill
	NeighborDistance *float64 `json:"neighborDistance,omitempty" db:"neighborDistance"` // meters
	NeighborAngle    *float64 `json:"neighborAngle,omitempty" db:"neighborAngle"`       // degrees
}

// PointSample is the projection produced by point queries
type PointSample struct {
	Timestamp    int64   `json:"timestamp"`
	HasTimestamp bool    `json:"hasTimestamp"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

// RawPoint is a point as delivered by an ingestion producer
type RawPoint struct {
	Timestamp     *int64   `json:"timestamp"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Speed         *float64 `json:"speed,omitempty"`
	SpeedAccuracy *float64 `json:"speedAccuracy,omitempty"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
}

// IngestRequest is the body of a point ingestion call
type IngestRequest struct {
	Source string     `json:"source"`
	Points []RawPoint `json:"points"`
}

// IngestResult summarizes an ingestion batch
type IngestResult struct {
	Source  string       `json:"source"`
	Saved   int          `json:"saved"`
	Skipped int          `json:"skipped"`
	Errors  []ParseError `json:"errors,omitempty"`
}

// SourceSummary describes one source tag in the point table
type SourceSummary struct {
	Source string `json:"source"`
	Points int64  `json:"points"`
}

// NeighborRow is the slice of a point the neighbor backfill works on
type NeighborRow struct {
	ID        int64
	Source    string
	Latitude  float64
	Longitude float64
}

// NeighborMetric is the backfill result for a single point
type NeighborMetric struct {
	ID       int64
	Distance float64
	Angle    *float64
}
