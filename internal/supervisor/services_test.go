package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/analysis"
	"github.com/jengzang/trackmap/internal/logging"
)

type fakeServer struct {
	stop     chan struct{}
	listen   error
	shutdown atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{})}
}

func (s *fakeServer) ListenAndServe() error {
	if s.listen != nil {
		return s.listen
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	close(s.stop)
	return nil
}

func TestHTTPServiceShutdown(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if !srv.shutdown.Load() {
		t.Error("server was not shut down")
	}
}

func TestHTTPServiceListenError(t *testing.T) {
	srv := newFakeServer()
	srv.listen = errors.New("address in use")

	err := NewHTTPService(srv, time.Second).Serve(context.Background())
	if err == nil || srv.shutdown.Load() {
		t.Errorf("Serve() = %v, shutdown = %v", err, srv.shutdown.Load())
	}
}

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "count" }

func (j *countingJob) Analyze(ctx context.Context, p *analysis.Progress) error {
	j.runs.Add(1)
	return j.err
}

func TestJobServiceRunsOnce(t *testing.T) {
	job := &countingJob{}
	engine := analysis.NewEngine(zap.NewNop(), job)

	err := NewJobService(engine, "count", 0, zap.NewNop()).Serve(context.Background())
	if !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve() = %v, want ErrDoNotRestart", err)
	}
	if job.runs.Load() != 1 {
		t.Errorf("runs = %d", job.runs.Load())
	}
}

func TestJobServiceRepeats(t *testing.T) {
	job := &countingJob{}
	engine := analysis.NewEngine(zap.NewNop(), job)
	svc := NewJobService(engine, "count", 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for job.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("runs = %d", job.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v", err)
	}
}

func TestJobServiceFailure(t *testing.T) {
	job := &countingJob{err: errors.New("boom")}
	engine := analysis.NewEngine(zap.NewNop(), job)

	err := NewJobService(engine, "count", 0, zap.NewNop()).Serve(context.Background())
	if err == nil || errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve() = %v, want job error", err)
	}
}

func TestTreeStopsServices(t *testing.T) {
	tree := NewTree(logging.Slog(zap.NewNop()), TreeConfig{ShutdownTimeout: time.Second})
	srv := newFakeServer()
	tree.AddAPIService(NewHTTPService(srv, time.Second))
	tree.AddMaintenanceService(NewJobService(analysis.NewEngine(zap.NewNop(), &countingJob{}), "count", 0, zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
	if !srv.shutdown.Load() {
		t.Error("server was not shut down")
	}
}
