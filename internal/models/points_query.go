package models

import "math"

// AllSources disables the source filter
const AllSources = "All"

// PointsQuery describes a filtered view of the point table
type PointsQuery struct {
	DataSource  string   // AllSources or "" for no filter
	StartMillis int64    // inclusive
	EndMillis   int64    // inclusive
	BBox        *BBox    // nil for no spatial filter
	MinAccuracy *float64 // keep rows with accuracy <= threshold or unknown
	MinAngle    float64  // keep rows with neighborAngle >= threshold or unknown, 0 disables
}

// AllPoints returns a query matching every row
func AllPoints() PointsQuery {
	return PointsQuery{
		DataSource:  AllSources,
		StartMillis: 0,
		EndMillis:   math.MaxInt64,
	}
}

// FiltersSource reports whether the query restricts the source tag
func (q PointsQuery) FiltersSource() bool {
	return q.DataSource != "" && q.DataSource != AllSources
}

// PointsQueryParams represents query string parameters for point queries
type PointsQueryParams struct {
	Source      string   `form:"source"`
	Start       int64    `form:"start"` // Unix milliseconds
	End         int64    `form:"end"`   // Unix milliseconds, 0 = open
	MinLat      *float64 `form:"minLat"`
	MaxLat      *float64 `form:"maxLat"`
	MinLon      *float64 `form:"minLon"`
	MaxLon      *float64 `form:"maxLon"`
	MinAccuracy *float64 `form:"minAccuracy"`
	MinAngle    float64  `form:"minAngle"`
}

// ToQuery converts the parameters into a PointsQuery
func (p PointsQueryParams) ToQuery() PointsQuery {
	q := PointsQuery{
		DataSource:  p.Source,
		StartMillis: p.Start,
		EndMillis:   p.End,
		MinAccuracy: p.MinAccuracy,
		MinAngle:    p.MinAngle,
	}
	if q.DataSource == "" {
		q.DataSource = AllSources
	}
	if q.EndMillis <= 0 {
		q.EndMillis = math.MaxInt64
	}
	if p.MinLat != nil && p.MaxLat != nil && p.MinLon != nil && p.MaxLon != nil {
		q.BBox = &BBox{MinLat: *p.MinLat, MaxLat: *p.MaxLat, MinLon: *p.MinLon, MaxLon: *p.MaxLon}
	}
	return q
}

// PointsResponse is returned by the point query endpoint
type PointsResponse struct {
	Total     int64         `json:"total"`
	Points    []PointSample `json:"points"`
	Truncated bool          `json:"truncated"`
}

// TimeRangeResponse is returned by the time range endpoint
type TimeRangeResponse struct {
	Start int64 `json:"start"` // Unix milliseconds
	End   int64 `json:"end"`
}

// DeleteResponse reports the number of removed points
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}
