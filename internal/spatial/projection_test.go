package spatial

import (
	"math"
	"testing"

	"github.com/jengzang/trackmap/internal/models"
)

func closeTo(a, b, tol float64) bool {
	diff := math.Abs(a - b)
	return diff <= tol || diff <= tol*math.Max(math.Abs(a), math.Abs(b))
}

func TestTileLonRoundTrip(t *testing.T) {
	for zoom := 0; zoom <= 20; zoom++ {
		for lon := -180.0; lon <= 180.0; lon += 7.25 {
			got := TileXToLon(LonToTileX(lon, zoom), zoom)
			if !closeTo(got, lon, 1e-9) {
				t.Errorf("zoom %d: lon %f round-tripped to %f", zoom, lon, got)
			}
		}
	}
}

func TestTileLatRoundTrip(t *testing.T) {
	for zoom := 0; zoom <= 20; zoom++ {
		for lat := -85.0; lat <= 85.0; lat += 4.25 {
			got := TileYToLat(LatToTileY(lat, zoom), zoom)
			if !closeTo(got, lat, 1e-9) {
				t.Errorf("zoom %d: lat %f round-tripped to %f", zoom, lat, got)
			}
		}
	}
}

func TestTileKnownValues(t *testing.T) {
	if x := LonToTileX(0, 1); x != 1 {
		t.Errorf("expected greenwich at tile x 1 on zoom 1, got %f", x)
	}
	if y := LatToTileY(0, 3); !closeTo(y, 4, 1e-12) {
		t.Errorf("expected equator at tile y 4 on zoom 3, got %f", y)
	}
	if y := MercatorY(85.0511287798); !closeTo(y, 0, 1e-9) {
		t.Errorf("expected mercator top edge near 0, got %f", y)
	}
}

func TestZoomForBBox(t *testing.T) {
	tests := []struct {
		name string
		box  models.BBox
		want int
	}{
		{"degenerate", models.BBox{MinLat: 50, MaxLat: 50, MinLon: 8, MaxLon: 8}, 16},
		{"city", models.BBox{MinLat: 50, MaxLat: 50.1, MinLon: 8, MaxLon: 8.1}, 15},
		{"country", models.BBox{MinLat: 47, MaxLat: 55, MinLon: 6, MaxLon: 15}, 9},
		{"world", models.WorldBBox, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ZoomForBBox(tt.box); got != tt.want {
				t.Errorf("ZoomForBBox(%v) = %d, want %d", tt.box, got, tt.want)
			}
		})
	}
}

func TestZoomForBBoxMonotonic(t *testing.T) {
	prev := ZoomForBBox(models.BBox{})
	for span := 0.01; span < 360; span *= 2 {
		z := ZoomForBBox(models.BBox{MinLat: 0, MaxLat: span / 2, MinLon: 0, MaxLon: span})
		if z > prev {
			t.Fatalf("zoom increased from %d to %d at span %f", prev, z, span)
		}
		prev = z
	}
}
