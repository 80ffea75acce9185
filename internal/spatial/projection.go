package spatial

import (
	"math"

	"github.com/jengzang/trackmap/internal/models"
)

// Zoom limits used by ZoomForBBox
const (
	MinAutoZoom = 4
	MaxAutoZoom = 16
	TileSize    = 256

	// MaxMercatorLat is the latitude of the projection's square edge
	MaxMercatorLat = 85.0511287798066
)

// LonToTileX converts a longitude into a fractional Web-Mercator tile column
func LonToTileX(lon float64, zoom int) float64 {
	return (lon + 180) / 360 * tilesPerAxis(zoom)
}

// LatToTileY converts a latitude into a fractional Web-Mercator tile row
func LatToTileY(lat float64, zoom int) float64 {
	return MercatorY(lat) * tilesPerAxis(zoom)
}

// TileXToLon is the inverse of LonToTileX
func TileXToLon(x float64, zoom int) float64 {
	return x/tilesPerAxis(zoom)*360 - 180
}

// TileYToLat is the inverse of LatToTileY
func TileYToLat(y float64, zoom int) float64 {
	n := math.Pi * (1 - 2*y/tilesPerAxis(zoom))
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}

// MercatorY returns the normalized Web-Mercator Y of a latitude, 0 at the
// northern and 1 at the southern edge of the projection
func MercatorY(lat float64) float64 {
	latRad := lat * math.Pi / 180
	return (1 - math.Log(math.Tan(math.Pi/4+latRad/2))/math.Pi) / 2
}

// ZoomForBBox picks a zoom level that fits the box: wider boxes get lower zoom
func ZoomForBBox(b models.BBox) int {
	span := math.Max(b.LatRange(), b.LonRange())
	if span < 0 || math.IsNaN(span) {
		span = 0
	}
	zoom := 16 - math.Log2(2*span+1)*1.5
	return int(math.Max(MinAutoZoom, math.Min(MaxAutoZoom, zoom)))
}

func tilesPerAxis(zoom int) float64 {
	return math.Exp2(float64(zoom))
}
