package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/analysis"
	"github.com/jengzang/trackmap/internal/middleware"
)

// HTTPServer is the lifecycle of *http.Server
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server until the supervisor stops it
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an HTTP server
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// ctx is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }

// JobService runs an analysis job once at start and then every interval.
// A zero interval runs the job once.
type JobService struct {
	engine   *analysis.Engine
	name     string
	interval time.Duration
	logger   *zap.Logger
}

// NewJobService creates a scheduled job
func NewJobService(engine *analysis.Engine, name string, interval time.Duration, logger *zap.Logger) *JobService {
	return &JobService{engine: engine, name: name, interval: interval, logger: logger.Named("jobs")}
}

// Serve implements suture.Service
func (s *JobService) Serve(ctx context.Context) error {
	for {
		err := s.engine.Run(ctx, s.name)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, analysis.ErrAlreadyRunning):
			s.logger.Info("job already running", zap.String("job", s.name))
		case err != nil:
			return fmt.Errorf("job %s: %w", s.name, err)
		}

		if s.interval <= 0 {
			return suture.ErrDoNotRestart
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

func (s *JobService) String() string { return "job-" + s.name }

// RateLimiterService evicts idle clients from an API rate limiter
type RateLimiterService struct {
	limiter *middleware.RateLimiter
}

// NewRateLimiterService wraps a rate limiter
func NewRateLimiterService(limiter *middleware.RateLimiter) *RateLimiterService {
	return &RateLimiterService{limiter: limiter}
}

// Serve implements suture.Service
func (s *RateLimiterService) Serve(ctx context.Context) error {
	s.limiter.Run(ctx.Done())
	return ctx.Err()
}

func (s *RateLimiterService) String() string { return "rate-limiter" }
