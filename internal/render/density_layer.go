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
	// DensityLayerName is the name of the heatmap layer
	DensityLayerName = "density"

	// DefaultDensityRefreshBatch is the number of cells read between re-projections
	DefaultDensityRefreshBatch = 50_000

	// maxGridCells caps the in-memory accumulation grid
	maxGridCells = 4_000_000
)

// DensityGrid is one density tier as read by the heatmap
type DensityGrid interface {
	Subdivisions() int64
	IndexRange(b models.BBox) (minX, maxX, minY, maxY int64)
	GetCells(ctx context.Context, b models.BBox) iter.Seq2[models.DensityCell, error]
	CountCells(ctx context.Context, b models.BBox) (int64, error)
}

// DensityLayer draws the density tier matching the view zoom as a heatmap
type DensityLayer struct {
	grid         func(zoom int) DensityGrid
	refreshBatch int64
}

// NewDensityLayer creates the heatmap layer. grid selects the tier for a zoom.
func NewDensityLayer(grid func(zoom int) DensityGrid, refreshBatch int) *DensityLayer {
	if refreshBatch <= 0 {
		refreshBatch = DefaultDensityRefreshBatch
	}
	return &DensityLayer{grid: grid, refreshBatch: int64(refreshBatch)}
}

func (l *DensityLayer) Name() string { return DensityLayerName }

func (l *DensityLayer) Capabilities() Capabilities {
	return Capabilities{RedrawOnTranslation: true, QueryIndependent: true}
}

// accumulator is a dense, possibly downsampled copy of the cells in view
type accumulator struct {
	minX, minY int64
	stride     int64
	w, h       int
	values     []float64
	max        float64
}

func newAccumulator(minX, maxX, minY, maxY int64) *accumulator {
	spanX, spanY := maxX-minX+1, maxY-minY+1
	stride := int64(1)
	if cells := float64(spanX) * float64(spanY); cells > maxGridCells {
		stride = int64(math.Ceil(math.Sqrt(cells / maxGridCells)))
	}
	w := int((spanX + stride - 1) / stride)
	h := int((spanY + stride - 1) / stride)
	return &accumulator{minX: minX, minY: minY, stride: stride, w: w, h: h, values: make([]float64, w*h)}
}

func (a *accumulator) add(c models.DensityCell) {
	gx := int((c.XIndex - a.minX) / a.stride)
	gy := int((c.YIndex - a.minY) / a.stride)
	if gx < 0 || gy < 0 || gx >= a.w || gy >= a.h {
		return
	}
	i := gy*a.w + gx
	a.values[i] += float64(c.Amount)
	a.max = math.Max(a.max, a.values[i])
}

func (a *accumulator) at(gx, gy int) float64 {
	if gx < 0 || gy < 0 || gx >= a.w || gy >= a.h {
		return 0
	}
	return a.values[gy*a.w+gx]
}

// sample interpolates bilinearly between the four grid cells nearest to
// the fractional cell index (fx, fy)
func (a *accumulator) sample(fx, fy float64) float64 {
	gx := (fx-float64(a.minX))/float64(a.stride) - 0.5
	gy := (fy-float64(a.minY))/float64(a.stride) - 0.5
	x0, y0 := math.Floor(gx), math.Floor(gy)
	tx, ty := gx-x0, gy-y0
	ix, iy := int(x0), int(y0)

	top := a.at(ix, iy)*(1-tx) + a.at(ix+1, iy)*tx
	bottom := a.at(ix, iy+1)*(1-tx) + a.at(ix+1, iy+1)*tx
	return top*(1-ty) + bottom*ty
}

// Render reads the cells of the view and re-projects them periodically
func (l *DensityLayer) Render(ctx context.Context, v View, dst *image.RGBA, rep Reporter) error {
	grid := l.grid(v.Zoom)
	total, err := grid.CountCells(ctx, v.BBox)
	if err != nil {
		return err
	}
	rep.ProgressMax(total)

	minX, maxX, minY, maxY := grid.IndexRange(v.BBox)
	acc := newAccumulator(minX, maxX, minY, maxY)

	var n int64
	for c, err := range grid.GetCells(ctx, v.BBox) {
		if err != nil {
			return err
		}
		acc.add(c)
		n++
		if n%l.refreshBatch == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			project(v, grid.Subdivisions(), acc, dst)
			rep.Progress(n)
			rep.Refresh()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	project(v, grid.Subdivisions(), acc, dst)
	rep.Progress(n)
	return nil
}

// project redraws dst from the accumulated grid. Pixel and cell
// coordinates are both linear in Mercator space, so each axis maps with a
// single scale and offset.
func project(v View, subdivisions int64, acc *accumulator, dst *image.RGBA) {
	clear(dst.Pix)
	if acc.max <= 0 {
		return
	}

	x0, x1, y0, y1 := v.TileRange()
	perTile := float64(subdivisions) / math.Exp2(float64(v.Zoom))
	cellX0, cellXStep := x0*perTile, (x1-x0)*perTile/float64(v.Width)
	cellY0, cellYStep := y0*perTile, (y1-y0)*perTile/float64(v.Height)

	for py := 0; py < v.Height; py++ {
		fy := cellY0 + (float64(py)+0.5)*cellYStep
		for px := 0; px < v.Width; px++ {
			fx := cellX0 + (float64(px)+0.5)*cellXStep
			if value := acc.sample(fx, fy); value > 0 {
				dst.SetRGBA(px, py, heatColor(value, acc.max))
			}
		}
	}
}

// lnln1 is ln(ln(1+1)), the log-log value of a single visit
var lnln1 = math.Log(math.Log(2))

// HeatLevel maps an amount onto [0, 1] with ln(ln(amount+1)) normalized
// against the maximum, so single visits stay distinct from hot spots
func HeatLevel(amount, maxAmount float64) float64 {
	if amount <= 0 {
		return 0
	}
	top := math.Log(math.Log(maxAmount + 1))
	if maxAmount <= 1 || top <= lnln1 {
		return 1
	}
	level := (math.Log(math.Log(amount+1)) - lnln1) / (top - lnln1)
	if math.IsNaN(level) || level < 0 {
		return 0
	}
	return math.Min(level, 1)
}

// heatColor runs from translucent blue over yellow to opaque red. Values
// below one visit, produced by interpolation at cell edges, fade out.
func heatColor(amount, maxAmount float64) color.RGBA {
	t := HeatLevel(math.Max(amount, 1), maxAmount)
	fade := math.Min(amount, 1)

	var r, g, b float64
	if t < 0.5 {
		k := t * 2
		r, g, b = k, k, 1-k
	} else {
		k := (t - 0.5) * 2
		r, g, b = 1, 1-k, 0
	}
	a := (0.35 + 0.6*t) * fade
	// premultiplied alpha
	return color.RGBA{
		R: uint8(r * a * 255),
		G: uint8(g * a * 255),
		B: uint8(b * a * 255),
		A: uint8(a * 255),
	}
}
