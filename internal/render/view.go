package render

import (
	"fmt"
	"math"

	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/spatial"
)

// MaxZoom is the highest zoom a view may use
const MaxZoom = 19

// View describes what is drawn: a box at a zoom level onto a canvas of
// Width x Height pixels, filtered by Query
type View struct {
	BBox   models.BBox
	Zoom   int
	Width  int
	Height int
	Query  models.PointsQuery
}

// NewView creates a view. A negative zoom is derived from the box.
func NewView(b models.BBox, zoom, width, height int, q models.PointsQuery) (View, error) {
	if !b.IsValid() {
		return View{}, fmt.Errorf("invalid view box %s", b)
	}
	if width <= 0 || height <= 0 {
		return View{}, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	if zoom < 0 {
		zoom = spatial.ZoomForBBox(b)
	}
	if zoom > MaxZoom {
		zoom = MaxZoom
	}
	return View{BBox: b, Zoom: zoom, Width: width, Height: height, Query: q}, nil
}

// TileRange returns the fractional tile coordinates of the view edges
func (v View) TileRange() (x0, x1, y0, y1 float64) {
	x0 = spatial.LonToTileX(v.BBox.MinLon, v.Zoom)
	x1 = spatial.LonToTileX(v.BBox.MaxLon, v.Zoom)
	y0 = spatial.LatToTileY(v.BBox.MaxLat, v.Zoom)
	y1 = spatial.LatToTileY(v.BBox.MinLat, v.Zoom)
	return x0, x1, y0, y1
}

// Mapper returns a function mapping coordinates to canvas pixels
func (v View) Mapper() func(lat, lon float64) (float64, float64) {
	x0, x1, y0, y1 := v.TileRange()
	sx := float64(v.Width) / (x1 - x0)
	sy := float64(v.Height) / (y1 - y0)
	return func(lat, lon float64) (float64, float64) {
		return (spatial.LonToTileX(lon, v.Zoom) - x0) * sx, (spatial.LatToTileY(lat, v.Zoom) - y0) * sy
	}
}

// ToPixel maps a coordinate to canvas pixels
func (v View) ToPixel(lat, lon float64) (float64, float64) {
	return v.Mapper()(lat, lon)
}

// FromPixel maps canvas pixels back to a coordinate
func (v View) FromPixel(px, py float64) (lat, lon float64) {
	x0, x1, y0, y1 := v.TileRange()
	tx := x0 + px/float64(v.Width)*(x1-x0)
	ty := y0 + py/float64(v.Height)*(y1-y0)
	return spatial.TileYToLat(ty, v.Zoom), spatial.TileXToLon(tx, v.Zoom)
}

// Transformed returns the view shown after applying a screen transform
func (v View) Transformed(t Transform) View {
	if t.IsIdentity() {
		return v
	}
	ax, ay := t.Invert(0, 0)
	bx, by := t.Invert(float64(v.Width), float64(v.Height))
	maxLat, minLon := v.FromPixel(ax, ay)
	minLat, maxLon := v.FromPixel(bx, by)

	out := v
	out.BBox = models.BBox{
		MinLat: math.Max(minLat, -spatial.MaxMercatorLat),
		MaxLat: math.Min(maxLat, spatial.MaxMercatorLat),
		MinLon: math.Max(minLon, -180),
		MaxLon: math.Min(maxLon, 180),
	}
	out.Zoom = v.Zoom + int(math.Round(math.Log2(t.Scale)))
	out.Zoom = max(0, min(MaxZoom, out.Zoom))
	return out
}

// SameGeometry reports whether both views cover the same area on the same canvas
func (v View) SameGeometry(o View) bool {
	return v.BBox == o.BBox && v.Zoom == o.Zoom && v.Width == o.Width && v.Height == o.Height
}

// SameQuery reports whether both views filter points identically
func (v View) SameQuery(o View) bool {
	a, b := v.Query, o.Query
	return a.DataSource == b.DataSource &&
		a.StartMillis == b.StartMillis &&
		a.EndMillis == b.EndMillis &&
		a.MinAngle == b.MinAngle &&
		equalPtr(a.BBox, b.BBox) &&
		equalPtr(a.MinAccuracy, b.MinAccuracy)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
