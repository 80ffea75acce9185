package spatial

import (
	"math"

	"github.com/golang/geo/s2"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// TurnAngle returns the angle in degrees at (lat, lon) between the legs
// towards the previous and the next point. A straight pass-through yields
// 180, a full reversal 0. Lat/lon deltas are treated as planar vectors.
// ok is false when either leg has zero length.
func TurnAngle(prevLat, prevLon, lat, lon, nextLat, nextLon float64) (angle float64, ok bool) {
	v1Lat, v1Lon := prevLat-lat, prevLon-lon
	v2Lat, v2Lon := nextLat-lat, nextLon-lon

	dot := v1Lat*v2Lat + v1Lon*v2Lon
	norm := math.Hypot(v1Lat, v1Lon) * math.Hypot(v2Lat, v2Lon)
	ratio := dot / norm
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, false
	}

	// rounding can push collinear legs just past +-1
	ratio = math.Max(-1, math.Min(1, ratio))
	return math.Acos(ratio) * 180 / math.Pi, true
}
