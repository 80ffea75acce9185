package models

import (
	"fmt"
	"math"
)

// Clamp limits used when expanding boxes
const (
	MaxLatitude  = 85.0
	MaxLongitude = 179.99
)

// BBox represents a geographic bounding box in degrees
type BBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// WorldBBox is the canonical whole-world box. It stands in for extents
// that would otherwise have zero width or height.
var WorldBBox = BBox{
	MinLat: -MaxLatitude,
	MaxLat: MaxLatitude,
	MinLon: -MaxLongitude,
	MaxLon: MaxLongitude,
}

// LatRange returns the height of the box in degrees
func (b BBox) LatRange() float64 {
	return b.MaxLat - b.MinLat
}

// LonRange returns the width of the box in degrees
func (b BBox) LonRange() float64 {
	return b.MaxLon - b.MinLon
}

// Center returns the center point of the box
func (b BBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// IsValid reports whether the box is finite and has positive area
func (b BBox) IsValid() bool {
	for _, v := range []float64{b.MinLat, b.MaxLat, b.MinLon, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinLat < b.MaxLat && b.MinLon < b.MaxLon
}

// Contains reports whether the point lies inside the box (edges inclusive)
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Expand grows the box by fraction of its range on every side
func (b BBox) Expand(fraction float64) BBox {
	dLat := b.LatRange() * fraction
	dLon := b.LonRange() * fraction
	return BBox{
		MinLat: math.Max(b.MinLat-dLat, -MaxLatitude),
		MaxLat: math.Min(b.MaxLat+dLat, MaxLatitude),
		MinLon: math.Max(b.MinLon-dLon, -MaxLongitude),
		MaxLon: math.Min(b.MaxLon+dLon, MaxLongitude),
	}
}

func (b BBox) String() string {
	return fmt.Sprintf("bbox(%.6f,%.6f,%.6f,%.6f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}
