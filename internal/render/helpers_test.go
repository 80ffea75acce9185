package render

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/draw"

	"github.com/jengzang/trackmap/internal/models"
)

type fakeLayer struct {
	name  string
	caps  Capabilities
	fill  color.RGBA
	calls atomic.Int32
	// optional override, call numbers start at 1
	render func(ctx context.Context, call int32, v View, dst *image.RGBA, rep Reporter) error
}

func (l *fakeLayer) Name() string               { return l.name }
func (l *fakeLayer) Capabilities() Capabilities { return l.caps }

func (l *fakeLayer) Render(ctx context.Context, v View, dst *image.RGBA, rep Reporter) error {
	call := l.calls.Add(1)
	if l.render != nil {
		return l.render(ctx, call, v, dst, rep)
	}
	fill(dst, l.fill)
	return nil
}

func fill(dst *image.RGBA, c color.RGBA) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

type nopReporter struct {
	max, done atomic.Int64
	refreshes atomic.Int32
}

func (r *nopReporter) ProgressMax(total int64) { r.max.Store(total) }
func (r *nopReporter) Progress(done int64)     { r.done.Store(done) }
func (r *nopReporter) Refresh()                { r.refreshes.Add(1) }

func testView(t *testing.T, b models.BBox, zoom, w, h int) View {
	t.Helper()
	v, err := NewView(b, zoom, w, h, models.AllPoints())
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	return v
}

func waitSettled(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// waitEvent drains events until one of the wanted kind for the layer arrives
func waitEvent(t *testing.T, c *Coordinator, layer string, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-c.Events():
			if e.Layer == layer && e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("no %v event for layer %q", kind, layer)
		}
	}
}

func rgbaAt(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}
