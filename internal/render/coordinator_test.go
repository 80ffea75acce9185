package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/models"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

var testBox = models.BBox{MinLat: 0, MaxLat: 10, MinLon: 0, MaxLon: 10}

func TestCoordinatorRendersLayersInOrder(t *testing.T) {
	bottom := &fakeLayer{name: "bottom", fill: red}
	top := &fakeLayer{name: "top", render: func(ctx context.Context, call int32, v View, dst *image.RGBA, rep Reporter) error {
		// only the left half
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width/2; x++ {
				dst.SetRGBA(x, y, blue)
			}
		}
		return nil
	}}

	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: bottom}, LayerConfig{Layer: top})
	defer c.Close()

	img, err := c.Render(context.Background(), testView(t, testBox, 6, 40, 20))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := rgbaAt(img, 5, 5); got != blue {
		t.Errorf("left pixel = %v, want blue", got)
	}
	if got := rgbaAt(img, 35, 5); got != red {
		t.Errorf("right pixel = %v, want red", got)
	}
	if c.State("bottom") != StateReady || c.State("top") != StateReady {
		t.Errorf("states = %v, %v", c.State("bottom"), c.State("top"))
	}
}

func TestCoordinatorCancelDiscardsPartialRaster(t *testing.T) {
	started := make(chan struct{})
	layer := &fakeLayer{name: "slow", render: func(ctx context.Context, call int32, v View, dst *image.RGBA, rep Reporter) error {
		if call == 1 {
			fill(dst, red)
			rep.Refresh()
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		fill(dst, blue)
		return nil
	}}

	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: layer})
	defer c.Close()

	c.SetView(testView(t, testBox, 6, 20, 20))
	<-started
	if got := rgbaAt(c.Composite(), 1, 1); got != red {
		t.Errorf("partial pixel = %v, want red", got)
	}

	other := testBox
	other.MaxLon = 12
	c.SetView(testView(t, other, 6, 20, 20))
	waitEvent(t, c, "slow", EventCancelled)
	waitSettled(t, c)

	if got := rgbaAt(c.Composite(), 1, 1); got != blue {
		t.Errorf("final pixel = %v, want blue", got)
	}
	if layer.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", layer.calls.Load())
	}
}

func TestCoordinatorCancelledTaskPublishesNothing(t *testing.T) {
	layer := &fakeLayer{name: "cancelled", render: func(ctx context.Context, call int32, v View, dst *image.RGBA, rep Reporter) error {
		fill(dst, red)
		rep.Refresh()
		<-ctx.Done()
		return ctx.Err()
	}}

	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: layer})
	c.SetView(testView(t, testBox, 6, 20, 20))
	waitEvent(t, c, "cancelled", EventRefresh)
	c.Close()

	if got := rgbaAt(c.Composite(), 1, 1); got != Background {
		t.Errorf("pixel = %v, want background", got)
	}
	if s := c.State("cancelled"); s != StateIdle {
		t.Errorf("state = %v, want idle", s)
	}
}

func TestCoordinatorLockTimeoutSkipsCycle(t *testing.T) {
	release := make(chan struct{})
	layer := &fakeLayer{name: "stuck", render: func(ctx context.Context, call int32, v View, dst *image.RGBA, rep Reporter) error {
		if call == 1 {
			// ignores cancellation until released
			<-release
			return ctx.Err()
		}
		fill(dst, blue)
		return nil
	}}

	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: layer, LockTimeout: 50 * time.Millisecond})
	defer c.Close()

	c.SetView(testView(t, testBox, 6, 20, 20))
	other := testBox
	other.MinLat = 1
	c.SetView(testView(t, other, 6, 20, 20))

	e := waitEvent(t, c, "stuck", EventSkipped)
	if !errors.Is(e.Err, models.ErrLockTimeout) {
		t.Errorf("skip error = %v, want ErrLockTimeout", e.Err)
	}

	close(release)
	waitSettled(t, c)
	if layer.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", layer.calls.Load())
	}

	c.RequestRedraw()
	waitSettled(t, c)
	if got := rgbaAt(c.Composite(), 1, 1); got != blue {
		t.Errorf("pixel after redraw = %v, want blue", got)
	}
}

func TestCoordinatorQueryChangeRestartsOnlyAffectedLayers(t *testing.T) {
	base := &fakeLayer{name: "base", caps: Capabilities{QueryIndependent: true}, fill: red}
	points := &fakeLayer{name: "points", fill: blue}
	overlay := &fakeLayer{name: "overlay", caps: Capabilities{ScreenFixed: true, QueryIndependent: true}}

	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: base}, LayerConfig{Layer: points}, LayerConfig{Layer: overlay})
	defer c.Close()

	v := testView(t, testBox, 6, 20, 20)
	c.SetView(v)
	waitSettled(t, c)

	v.Query.MinAngle = 170
	c.SetView(v)
	waitSettled(t, c)
	if base.calls.Load() != 1 || points.calls.Load() != 2 || overlay.calls.Load() != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/2/1", base.calls.Load(), points.calls.Load(), overlay.calls.Load())
	}

	v.BBox.MaxLon = 11
	c.SetView(v)
	waitSettled(t, c)
	if base.calls.Load() != 2 || overlay.calls.Load() != 1 {
		t.Errorf("after pan calls = %d/%d, want 2/1", base.calls.Load(), overlay.calls.Load())
	}

	v.Width = 30
	c.SetView(v)
	waitSettled(t, c)
	if overlay.calls.Load() != 2 {
		t.Errorf("overlay calls = %d, want 2", overlay.calls.Load())
	}
}

func TestCoordinatorCommitTranslationReusesRaster(t *testing.T) {
	layer := &fakeLayer{name: "reuse", fill: red}
	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: layer})
	defer c.Close()

	c.SetView(testView(t, testBox, 6, 40, 40))
	waitSettled(t, c)

	c.Pan(20, 0)
	// visual transform only, nothing fetched
	if got := rgbaAt(c.Composite(), 5, 5); got != Background {
		t.Errorf("panned pixel = %v, want background", got)
	}

	v := c.Commit()
	waitSettled(t, c)
	if layer.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", layer.calls.Load())
	}
	if v.BBox.MinLon >= 0 {
		t.Errorf("committed view min lon = %v, want negative", v.BBox.MinLon)
	}
	img := c.Composite()
	if got := rgbaAt(img, 5, 5); got != Background {
		t.Errorf("uncovered pixel = %v, want background", got)
	}
	if got := rgbaAt(img, 30, 5); got != red {
		t.Errorf("covered pixel = %v, want red", got)
	}
	if !c.Visual().IsIdentity() {
		t.Error("visual transform not reset")
	}
}

func TestCoordinatorCommitZoomRefetches(t *testing.T) {
	layer := &fakeLayer{name: "refetch", caps: Capabilities{RedrawOnTranslation: false}, fill: red}
	fixed := &fakeLayer{name: "fixed", caps: Capabilities{ScreenFixed: true}, fill: color.RGBA{}}
	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: layer}, LayerConfig{Layer: fixed})
	defer c.Close()

	c.SetView(testView(t, testBox, 6, 40, 40))
	waitSettled(t, c)

	c.Zoom(2, 20, 20)
	v := c.Commit()
	waitSettled(t, c)

	if layer.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", layer.calls.Load())
	}
	if fixed.calls.Load() != 1 {
		t.Errorf("screen fixed calls = %d, want 1", fixed.calls.Load())
	}
	if v.Zoom != 7 {
		t.Errorf("zoom = %d, want 7", v.Zoom)
	}
	if zoom, ok := c.RenderedZoom("refetch"); !ok || zoom != 7 {
		t.Errorf("rendered zoom = %d, %v", zoom, ok)
	}
}

func TestCoordinatorReportsFailure(t *testing.T) {
	boom := errors.New("boom")
	layer := &fakeLayer{name: "broken", render: func(ctx context.Context, call int32, v View, dst *image.RGBA, rep Reporter) error {
		return boom
	}}
	c := NewCoordinator(zap.NewNop(), LayerConfig{Layer: layer})
	defer c.Close()

	c.SetView(testView(t, testBox, 6, 10, 10))
	e := waitEvent(t, c, "broken", EventFailed)
	if !errors.Is(e.Err, boom) {
		t.Errorf("err = %v, want boom", e.Err)
	}
	waitSettled(t, c)
	if s := c.State("broken"); s != StateIdle {
		t.Errorf("state = %v, want idle", s)
	}
}
