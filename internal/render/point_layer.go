package render

import (
	"context"
	"image"
	"image/color"
	"iter"
	"math"

	"github.com/jengzang/trackmap/internal/models"
)

const (
	// PointLayerName is the name of the point scatter layer
	PointLayerName = "points"

	// pointRefreshInterval is the number of points drawn between progress reports
	pointRefreshInterval = 10_000

	// maxLineFraction bounds the pixel span of a connecting line per axis
	maxLineFraction = 0.25
)

// PointSource provides the points drawn by the point layer
type PointSource interface {
	QueryPoints(ctx context.Context, q models.PointsQuery) iter.Seq2[models.PointSample, error]
	Count(ctx context.Context, q models.PointsQuery) (int64, error)
}

// PointLayerConfig configures the point layer
type PointLayerConfig struct {
	ColorMode ColorMode
	ColorSeed uint64
	// LineThresholdMillis connects consecutive points closer in time; 0 disables lines
	LineThresholdMillis int64
	// DotSize is the side of a point in pixels
	DotSize int
}

// PointLayer draws the stored points of the view query
type PointLayer struct {
	points PointSource
	cfg    PointLayerConfig
}

// NewPointLayer creates the point layer
func NewPointLayer(points PointSource, cfg PointLayerConfig) *PointLayer {
	if cfg.ColorMode == "" {
		cfg.ColorMode = ColorSingle
	}
	if cfg.DotSize <= 0 {
		cfg.DotSize = 2
	}
	return &PointLayer{points: points, cfg: cfg}
}

func (l *PointLayer) Name() string { return PointLayerName }

func (l *PointLayer) Capabilities() Capabilities {
	return Capabilities{RedrawOnTranslation: true}
}

// Query returns the query run for a view: the view filter restricted to
// the view box
func (l *PointLayer) Query(v View) models.PointsQuery {
	q := v.Query
	b := v.BBox
	q.BBox = &b
	return q
}

// Render draws every point of the view in ascending time order
func (l *PointLayer) Render(ctx context.Context, v View, dst *image.RGBA, rep Reporter) error {
	q := l.Query(v)
	total, err := l.points.Count(ctx, q)
	if err != nil {
		return err
	}
	rep.ProgressMax(total)

	toPixel := v.Mapper()
	colors := NewColorScheme(l.cfg.ColorMode, l.cfg.ColorSeed)
	maxDX := float64(v.Width) * maxLineFraction
	maxDY := float64(v.Height) * maxLineFraction

	var prev models.PointSample
	var prevX, prevY float64
	var n int64
	for p, err := range l.points.QueryPoints(ctx, q) {
		if err != nil {
			return err
		}
		x, y := toPixel(p.Latitude, p.Longitude)
		c := colors.Color(p.Timestamp, p.HasTimestamp)

		if n > 0 && l.connects(prev, p) && math.Abs(x-prevX) < maxDX && math.Abs(y-prevY) < maxDY {
			drawLine(dst, prevX, prevY, x, y, c)
		}
		drawDot(dst, x, y, l.cfg.DotSize, c)

		prev, prevX, prevY = p, x, y
		n++
		if n%pointRefreshInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			rep.Progress(n)
			rep.Refresh()
		}
	}
	rep.Progress(n)
	return ctx.Err()
}

func (l *PointLayer) connects(a, b models.PointSample) bool {
	if l.cfg.LineThresholdMillis <= 0 || !a.HasTimestamp || !b.HasTimestamp {
		return false
	}
	dt := b.Timestamp - a.Timestamp
	return dt >= 0 && dt < l.cfg.LineThresholdMillis
}

func drawDot(dst *image.RGBA, x, y float64, size int, c color.RGBA) {
	x0 := int(math.Floor(x)) - size/2
	y0 := int(math.Floor(y)) - size/2
	r := image.Rect(x0, y0, x0+size, y0+size).Intersect(dst.Rect)
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			dst.SetRGBA(px, py, c)
		}
	}
}

// drawLine rasterizes a one pixel line with Bresenham's algorithm
func drawLine(dst *image.RGBA, fx0, fy0, fx1, fy1 float64, c color.RGBA) {
	x0, y0 := int(math.Floor(fx0)), int(math.Floor(fy0))
	x1, y1 := int(math.Floor(fx1)), int(math.Floor(fy1))

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if (image.Point{X: x0, Y: y0}).In(dst.Rect) {
			dst.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
