package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"

	"github.com/jengzang/trackmap/internal/metrics"
	"github.com/jengzang/trackmap/internal/models"
)

const (
	// DefaultLockTimeout bounds the wait for a layer lock
	DefaultLockTimeout = 20 * time.Second

	eventBuffer = 256
)

// Background is the canvas color below all layers
var Background = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}

// LayerConfig registers a layer with the coordinator
type LayerConfig struct {
	Layer       Layer
	LockTimeout time.Duration
}

type slot struct {
	layer   Layer
	caps    Capabilities
	timeout time.Duration
	// held by the task producing the layer raster
	lock *semaphore.Weighted

	mu      sync.Mutex
	state   State
	bitmap  *image.RGBA // last complete raster, aligned with the coordinator view
	partial *image.RGBA // progressive raster of the running task
	zoom    int         // zoom the bitmap was rendered at
	gen     uint64
	cancel  context.CancelFunc
}

// Coordinator owns the layer tasks of one map canvas. Parameter changes
// cancel running tasks and start new ones; each layer is produced by at
// most one task at a time and only complete rasters replace the previous
// one.
type Coordinator struct {
	logger *zap.Logger
	slots  []*slot
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	view    View
	hasView bool
	visual  Transform
	running int
	settled chan struct{}
	closed  bool
}

// NewCoordinator creates a coordinator drawing the layers bottom to top
func NewCoordinator(logger *zap.Logger, layers ...LayerConfig) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		logger:  logger.Named("render"),
		events:  make(chan Event, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		visual:  Identity(),
		settled: make(chan struct{}),
	}
	for _, l := range layers {
		timeout := l.LockTimeout
		if timeout <= 0 {
			timeout = DefaultLockTimeout
		}
		c.slots = append(c.slots, &slot{
			layer:   l.Layer,
			caps:    l.Layer.Capabilities(),
			timeout: timeout,
			lock:    semaphore.NewWeighted(1),
		})
	}
	return c
}

// Events returns the event channel. Events are dropped when the channel
// is full.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

func (c *Coordinator) emit(e Event) {
	select {
	case c.events <- e:
	default:
	}
}

// View returns the current committed view
func (c *Coordinator) View() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.hasView
}

// SetView switches to a new view. Layers affected by the change are
// cancelled and started again.
func (c *Coordinator) SetView(v View) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	old, had := c.view, c.hasView
	c.view, c.hasView = v, true
	c.visual = Identity()
	c.mu.Unlock()

	for _, s := range c.slots {
		if !had || affected(s.caps, old, v) {
			c.start(s, v)
		}
	}
}

func affected(caps Capabilities, old, v View) bool {
	if caps.ScreenFixed {
		return old.Width != v.Width || old.Height != v.Height
	}
	if !old.SameGeometry(v) {
		return true
	}
	return !caps.QueryIndependent && !old.SameQuery(v)
}

// RequestRedraw drops nothing but starts every layer again with the
// current view
func (c *Coordinator) RequestRedraw() {
	c.emit(Event{Kind: EventRedrawRequested})
	v, ok := c.View()
	if !ok {
		return
	}
	for _, s := range c.slots {
		c.start(s, v)
	}
}

// Pan moves the canvas content by (dx, dy) pixels without fetching
func (c *Coordinator) Pan(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visual = c.visual.Translated(dx, dy)
}

// Zoom scales the canvas content around the pixel (px, py) without fetching
func (c *Coordinator) Zoom(factor, px, py float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visual = c.visual.Zoomed(factor, px, py)
}

// Visual returns the uncommitted gesture transform
func (c *Coordinator) Visual() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visual
}

// Commit ends a gesture. The gesture transform is baked into every
// transformable raster and the view moves accordingly. Layers are fetched
// again unless they tolerate reuse of the resampled raster.
func (c *Coordinator) Commit() View {
	c.mu.Lock()
	t, old := c.visual, c.view
	c.visual = Identity()
	if !c.hasView || t.IsIdentity() || c.closed {
		c.mu.Unlock()
		return old
	}
	v := old.Transformed(t)
	c.view = v
	c.mu.Unlock()

	for _, s := range c.slots {
		if s.caps.ScreenFixed {
			continue
		}
		s.mu.Lock()
		if s.bitmap != nil {
			s.bitmap = Resample(s.bitmap, t, v.Width, v.Height)
		}
		fetching := s.state == StateFetching
		s.mu.Unlock()

		if fetching || !t.IsTranslation() || s.caps.RedrawOnTranslation {
			c.start(s, v)
		}
	}
	return v
}

// RenderedZoom returns the zoom the named layer's raster was rendered at
func (c *Coordinator) RenderedZoom(name string) (int, bool) {
	for _, s := range c.slots {
		if s.layer.Name() == name {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.zoom, s.bitmap != nil
		}
	}
	return 0, false
}

// State returns the state of the named layer
func (c *Coordinator) State(name string) State {
	for _, s := range c.slots {
		if s.layer.Name() == name {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.state
		}
	}
	return StateIdle
}

// start cancels the running task of a slot and launches a new one
func (c *Coordinator) start(s *slot, v View) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.running++
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(c.ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.state = StateFetching
	s.partial = nil
	s.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx, cancel, s, v, gen)
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, s *slot, v View, gen uint64) {
	defer c.wg.Done()
	defer c.taskDone()
	defer cancel()

	name := s.layer.Name()
	began := time.Now()
	outcome := "ready"
	defer func() {
		metrics.RenderDuration.WithLabelValues(name, outcome).Observe(time.Since(began).Seconds())
	}()

	lockCtx, cancelLock := context.WithTimeout(ctx, s.timeout)
	err := s.lock.Acquire(lockCtx, 1)
	cancelLock()
	if err != nil {
		if ctx.Err() != nil {
			outcome = "cancelled"
			c.finish(s, gen, nil, v)
			c.emit(Event{Layer: name, Kind: EventCancelled})
			return
		}
		// a stuck producer only costs this refresh cycle
		outcome = "skipped"
		c.logger.Warn("layer lock timeout", zap.String("layer", name), zap.Duration("timeout", s.timeout))
		c.finish(s, gen, nil, v)
		c.emit(Event{Layer: name, Kind: EventSkipped, Err: models.ErrLockTimeout})
		return
	}
	defer s.lock.Release(1)

	dst := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	rep := &slotReporter{c: c, s: s, gen: gen, dst: dst, name: name}
	err = s.layer.Render(ctx, v, dst, rep)

	switch {
	case ctx.Err() != nil:
		outcome = "cancelled"
		c.finish(s, gen, nil, v)
		c.emit(Event{Layer: name, Kind: EventCancelled})
	case err != nil:
		outcome = "failed"
		c.logger.Error("layer failed", zap.String("layer", name), zap.Error(err))
		c.finish(s, gen, nil, v)
		c.emit(Event{Layer: name, Kind: EventFailed, Err: err})
	default:
		if c.finish(s, gen, dst, v) {
			c.emit(Event{Layer: name, Kind: EventReady})
		}
	}
}

// finish ends task gen of a slot, publishing bitmap when it is complete.
// Reports whether gen was still the current task.
func (c *Coordinator) finish(s *slot, gen uint64, bitmap *image.RGBA, v View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.partial = nil
	s.cancel = nil
	if bitmap == nil {
		s.state = StateIdle
		return true
	}
	s.bitmap = bitmap
	s.zoom = v.Zoom
	s.state = StateReady
	return true
}

func (c *Coordinator) taskDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running--
	if c.running == 0 {
		close(c.settled)
		c.settled = make(chan struct{})
	}
}

// Wait blocks until no layer task is running
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		running, settled := c.running, c.settled
		c.mu.Unlock()
		if running == 0 {
			return nil
		}
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Composite draws all layers onto a new canvas, applying the pending
// gesture transform to every transformable layer
func (c *Coordinator) Composite() *image.RGBA {
	c.mu.Lock()
	v, t := c.view, c.visual
	c.mu.Unlock()

	out := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	draw.Draw(out, out.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	for _, s := range c.slots {
		s.mu.Lock()
		raster := s.bitmap
		if s.partial != nil {
			raster = s.partial
		}
		s.mu.Unlock()
		if raster == nil {
			continue
		}

		if s.caps.ScreenFixed || t.IsIdentity() {
			draw.Draw(out, out.Bounds(), raster, image.Point{}, draw.Over)
			continue
		}
		draw.ApproxBiLinear.Transform(out, t.Aff3(), raster, raster.Bounds(), draw.Over, nil)
	}
	return out
}

// Render sets the view, waits for every layer and returns the composite
func (c *Coordinator) Render(ctx context.Context, v View) (*image.RGBA, error) {
	c.SetView(v)
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("render interrupted: %w", err)
	}
	return c.Composite(), nil
}

// Close cancels all tasks and waits for them to return
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

type slotReporter struct {
	c    *Coordinator
	s    *slot
	gen  uint64
	dst  *image.RGBA
	name string
}

func (r *slotReporter) ProgressMax(total int64) {
	r.c.emit(Event{Layer: r.name, Kind: EventProgressMax, Value: total})
}

func (r *slotReporter) Progress(done int64) {
	r.c.emit(Event{Layer: r.name, Kind: EventProgress, Value: done})
}

func (r *slotReporter) Refresh() {
	snapshot := image.NewRGBA(r.dst.Rect)
	copy(snapshot.Pix, r.dst.Pix)

	r.s.mu.Lock()
	current := r.s.gen == r.gen
	if current {
		r.s.partial = snapshot
	}
	r.s.mu.Unlock()
	if current {
		r.c.emit(Event{Layer: r.name, Kind: EventRefresh})
	}
}
