package render

import (
	"fmt"
	"image/color"
	"math"
	"math/rand/v2"
	"time"
)

// ColorMode selects how points are bucketed into colors
type ColorMode string

const (
	ColorSingle ColorMode = "single"
	ColorYear   ColorMode = "year"
	ColorMonth  ColorMode = "month"
	ColorDay    ColorMode = "day"
	ColorHour   ColorMode = "hour"
)

// ParseColorMode validates a color mode name
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(s); m {
	case ColorSingle, ColorYear, ColorMonth, ColorDay, ColorHour:
		return m, nil
	}
	return "", fmt.Errorf("unknown color mode %q", s)
}

// DefaultPointColor is used in single color mode
var DefaultPointColor = color.RGBA{R: 0xd0, G: 0x20, B: 0x20, A: 0xff}

// ColorScheme assigns colors to points by time bucket. Colors are
// pseudo-random per bucket and reproducible for a given seed. A scheme
// caches the last bucket and is not safe for concurrent use.
type ColorScheme struct {
	mode ColorMode
	seed uint64
	base color.RGBA

	last    int64
	lastSet bool
	current color.RGBA
}

// NewColorScheme creates a color scheme
func NewColorScheme(mode ColorMode, seed uint64) *ColorScheme {
	return &ColorScheme{mode: mode, seed: seed, base: DefaultPointColor}
}

// Bucket returns the time bucket of a timestamp in milliseconds
func (c *ColorScheme) Bucket(ts int64) int64 {
	switch c.mode {
	case ColorYear:
		return int64(time.UnixMilli(ts).UTC().Year())
	case ColorMonth:
		t := time.UnixMilli(ts).UTC()
		return int64(t.Year())*12 + int64(t.Month()) - 1
	case ColorDay:
		return floorDiv(ts, 86_400_000)
	case ColorHour:
		return floorDiv(ts, 3_600_000)
	}
	return 0
}

// Color returns the color of a point. Points without a timestamp use the
// base color.
func (c *ColorScheme) Color(ts int64, hasTimestamp bool) color.RGBA {
	if c.mode == ColorSingle || !hasTimestamp {
		return c.base
	}
	b := c.Bucket(ts)
	if c.lastSet && b == c.last {
		return c.current
	}
	c.last, c.lastSet = b, true
	c.current = bucketColor(c.seed, b)
	return c.current
}

func bucketColor(seed uint64, bucket int64) color.RGBA {
	r := rand.New(rand.NewPCG(seed, uint64(bucket)))
	h := r.Float64() * 360
	s := 0.6 + 0.4*r.Float64()
	v := 0.7 + 0.3*r.Float64()
	return hsv(h, s, v)
}

// hsv converts hue in degrees and saturation/value in [0, 1] to opaque RGBA
func hsv(h, s, v float64) color.RGBA {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 0xff,
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
