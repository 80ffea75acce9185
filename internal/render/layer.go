package render

import (
	"context"
	"image"
)

// Capabilities describe how a layer reacts to view changes
type Capabilities struct {
	// ScreenFixed layers are drawn in screen space and never transformed;
	// they are redrawn only when the canvas size changes
	ScreenFixed bool
	// RedrawOnTranslation layers are fetched again after a committed pan;
	// otherwise the resampled raster is kept
	RedrawOnTranslation bool
	// QueryIndependent layers ignore point filter changes
	QueryIndependent bool
}

// Reporter receives progress from a rendering layer. It is safe for
// concurrent use.
type Reporter interface {
	ProgressMax(total int64)
	Progress(done int64)
	// Refresh publishes the current content of the destination raster as a
	// partial result. Callers must not write to the raster concurrently.
	Refresh()
}

// Layer draws one raster of the map. Render writes into dst, which covers
// the view canvas, and returns ctx.Err() when cancelled.
type Layer interface {
	Name() string
	Capabilities() Capabilities
	Render(ctx context.Context, v View, dst *image.RGBA, rep Reporter) error
}

// State of a layer raster
type State int

const (
	StateIdle State = iota
	StateFetching
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// EventKind identifies a coordinator event
type EventKind int

const (
	EventProgressMax EventKind = iota
	EventProgress
	EventRefresh
	EventReady
	EventCancelled
	EventSkipped
	EventFailed
	EventRedrawRequested
)

func (k EventKind) String() string {
	switch k {
	case EventProgressMax:
		return "progress_max"
	case EventProgress:
		return "progress"
	case EventRefresh:
		return "refresh"
	case EventReady:
		return "ready"
	case EventCancelled:
		return "cancelled"
	case EventSkipped:
		return "skipped"
	case EventFailed:
		return "failed"
	case EventRedrawRequested:
		return "redraw_requested"
	}
	return "unknown"
}

// Event is delivered on the coordinator event channel
type Event struct {
	Layer string
	Kind  EventKind
	Value int64
	Err   error
}
