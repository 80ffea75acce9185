package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnknownAnalyzer is returned when no analyzer is registered under a name
	ErrUnknownAnalyzer = errors.New("unknown analyzer")
	// ErrAlreadyRunning is returned when an analyzer is started twice
	ErrAlreadyRunning = errors.New("analyzer already running")
)

// Analyzer is the interface that all background maintenance jobs implement
type Analyzer interface {
	// Name returns the name the analyzer is registered under
	Name() string

	// Analyze runs the job to completion or until ctx is cancelled
	Analyze(ctx context.Context, progress *Progress) error
}

// Run states
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Progress is updated by a running analyzer and read concurrently by status queries
type Progress struct {
	processed atomic.Int64
	total     atomic.Int64
	failed    atomic.Int64
	started   time.Time
}

// NewProgress creates progress starting now
func NewProgress() *Progress {
	return &Progress{started: time.Now()}
}

// SetTotal records the expected number of records
func (p *Progress) SetTotal(n int64) { p.total.Store(n) }

// Add records processed records
func (p *Progress) Add(n int64) { p.processed.Add(n) }

// Fail records failed records
func (p *Progress) Fail(n int64) { p.failed.Add(n) }

// Processed returns the number of processed records
func (p *Progress) Processed() int64 { return p.processed.Load() }

// ProgressSnapshot is a point-in-time copy of a run's progress
type ProgressSnapshot struct {
	ID         string  `json:"id"`
	Analyzer   string  `json:"analyzer"`
	Status     string  `json:"status"`
	Processed  int64   `json:"processed"`
	Total      int64   `json:"total"`
	Failed     int64   `json:"failed"`
	Percent    float64 `json:"percent"`
	ETASeconds int     `json:"etaSeconds"`
	Error      string  `json:"error,omitempty"`
}

func (p *Progress) snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		Processed: p.processed.Load(),
		Total:     p.total.Load(),
		Failed:    p.failed.Load(),
	}
	if s.Total > 0 {
		s.Percent = float64(s.Processed) / float64(s.Total) * 100.0
		if s.Processed > 0 && s.Processed < s.Total {
			elapsed := time.Since(p.started).Seconds()
			s.ETASeconds = int(elapsed / float64(s.Processed) * float64(s.Total-s.Processed))
		}
	}
	return s
}

// Run is one execution of an analyzer
type Run struct {
	ID       string
	Analyzer string

	progress *Progress
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	status string
	err    error
}

// Done is closed when the run finishes
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the run error once Done is closed
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Cancel stops the run
func (r *Run) Cancel() { r.cancel() }

// Snapshot returns the current state of the run
func (r *Run) Snapshot() ProgressSnapshot {
	s := r.progress.snapshot()
	s.ID, s.Analyzer = r.ID, r.Analyzer

	r.mu.Lock()
	defer r.mu.Unlock()
	s.Status = r.status
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

func (r *Run) finish(err error) {
	r.mu.Lock()
	switch {
	case err == nil:
		r.status = StatusCompleted
	case errors.Is(err, context.Canceled):
		r.status = StatusCancelled
	default:
		r.status = StatusFailed
	}
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// Engine owns the registered analyzers and their latest runs
type Engine struct {
	logger *zap.Logger

	mu        sync.Mutex
	analyzers map[string]Analyzer
	runs      map[string]*Run
}

// NewEngine creates an engine with the given analyzers registered
func NewEngine(logger *zap.Logger, analyzers ...Analyzer) *Engine {
	e := &Engine{
		logger:    logger.Named("analysis"),
		analyzers: make(map[string]Analyzer),
		runs:      make(map[string]*Run),
	}
	for _, a := range analyzers {
		e.Register(a)
	}
	return e
}

// Register adds an analyzer, replacing one with the same name
func (e *Engine) Register(a Analyzer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.analyzers[a.Name()] = a
}

// Names returns the registered analyzer names
func (e *Engine) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.analyzers))
	for name := range e.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches an analyzer in the background. The run is detached from
// the caller once started and stops when ctx is cancelled.
func (e *Engine) Start(ctx context.Context, name string) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.analyzers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalyzer, name)
	}
	if prev := e.runs[name]; prev != nil {
		select {
		case <-prev.done:
		default:
			return prev, ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:       uuid.NewString(),
		Analyzer: name,
		progress: NewProgress(),
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   StatusRunning,
	}
	e.runs[name] = run

	logger := e.logger.With(zap.String("analyzer", name), zap.String("run", run.ID))
	logger.Info("analysis started")
	go func() {
		defer cancel()
		err := a.Analyze(runCtx, run.progress)
		run.finish(err)
		if err != nil {
			logger.Warn("analysis stopped", zap.Error(err))
			return
		}
		logger.Info("analysis completed", zap.Int64("processed", run.progress.Processed()))
	}()
	return run, nil
}

// Run starts an analyzer and waits for it to finish
func (e *Engine) Run(ctx context.Context, name string) error {
	run, err := e.Start(ctx, name)
	if err != nil {
		return err
	}
	select {
	case <-run.Done():
		return run.Err()
	case <-ctx.Done():
		<-run.Done()
		return ctx.Err()
	}
}

// Status returns the latest run of an analyzer, nil if it never ran
func (e *Engine) Status(name string) *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[name]
}
