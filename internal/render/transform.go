package render

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Transform is a screen-space scale followed by a translation:
// p' = p*Scale + (TX, TY)
type Transform struct {
	Scale  float64
	TX, TY float64
}

// Identity returns the transform that changes nothing
func Identity() Transform {
	return Transform{Scale: 1}
}

// IsIdentity reports whether the transform changes nothing
func (t Transform) IsIdentity() bool {
	return t.Scale == 1 && t.TX == 0 && t.TY == 0
}

// IsTranslation reports whether the transform keeps the scale
func (t Transform) IsTranslation() bool {
	return t.Scale == 1
}

// Translated appends a pan by (dx, dy) pixels
func (t Transform) Translated(dx, dy float64) Transform {
	t.TX += dx
	t.TY += dy
	return t
}

// Zoomed appends a scale by factor around the screen pivot (px, py)
func (t Transform) Zoomed(factor, px, py float64) Transform {
	if factor <= 0 {
		return t
	}
	return Transform{
		Scale: t.Scale * factor,
		TX:    (t.TX-px)*factor + px,
		TY:    (t.TY-py)*factor + py,
	}
}

// Apply maps a point through the transform
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.Scale + t.TX, y*t.Scale + t.TY
}

// Invert maps a transformed point back
func (t Transform) Invert(x, y float64) (float64, float64) {
	return (x - t.TX) / t.Scale, (y - t.TY) / t.Scale
}

// Aff3 returns the source-to-destination matrix used by x/image/draw
func (t Transform) Aff3() f64.Aff3 {
	return f64.Aff3{
		t.Scale, 0, t.TX,
		0, t.Scale, t.TY,
	}
}

// Resample bakes the transform into a new raster of the given size
func Resample(src *image.RGBA, t Transform, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if t.IsIdentity() {
		draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Transform(dst, t.Aff3(), src, src.Bounds(), draw.Src, nil)
	return dst
}
