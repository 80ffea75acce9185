package render

import (
	"context"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CopyrightLayerName is the name of the attribution overlay
const CopyrightLayerName = "copyright"

const copyrightPadding = 4

// CopyrightLayer draws the map attribution in the bottom right corner
type CopyrightLayer struct {
	text string
}

// NewCopyrightLayer creates the attribution overlay
func NewCopyrightLayer(text string) *CopyrightLayer {
	return &CopyrightLayer{text: text}
}

func (l *CopyrightLayer) Name() string { return CopyrightLayerName }

func (l *CopyrightLayer) Capabilities() Capabilities {
	return Capabilities{ScreenFixed: true, QueryIndependent: true}
}

func (l *CopyrightLayer) Render(ctx context.Context, v View, dst *image.RGBA, rep Reporter) error {
	rep.ProgressMax(1)
	if l.text == "" {
		rep.Progress(1)
		return nil
	}

	face := basicfont.Face7x13
	width := font.MeasureString(face, l.text).Ceil()
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	box := image.Rect(
		v.Width-width-2*copyrightPadding,
		v.Height-height-2*copyrightPadding,
		v.Width,
		v.Height,
	)
	draw.Draw(dst, box, image.NewUniform(color.RGBA{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xc0}), image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(box.Min.X + copyrightPadding),
			Y: fixed.I(box.Min.Y+copyrightPadding) + metrics.Ascent,
		},
	}
	d.DrawString(l.text)

	rep.Progress(1)
	return ctx.Err()
}
