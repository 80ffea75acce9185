package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"github.com/jengzang/trackmap/internal/metrics"
	"github.com/jengzang/trackmap/internal/models"
)

// MaxZoom is the highest zoom level tiles are requested for
const MaxZoom = 19

// maxTileBytes bounds a single tile download
const maxTileBytes = 4 << 20

// Source provides raster map tiles
type Source interface {
	Fetch(ctx context.Context, z, x, y int) (image.Image, error)
}

// Config configures an HTTP tile source
type Config struct {
	URLTemplate       string
	CacheDir          string // empty disables the disk cache
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	FailureThreshold  uint32
	OpenTimeout       time.Duration
}

// HTTPSource fetches tiles from a tile server, politely and through a
// disk cache
type HTTPSource struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

// NewHTTPSource creates a tile source for the configured server
func NewHTTPSource(cfg Config, logger *zap.Logger) (*HTTPSource, error) {
	if cfg.URLTemplate == "" {
		return nil, fmt.Errorf("tile url template is empty")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "trackmap"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	logger = logger.Named("tiles")
	s := &HTTPSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "tile-server",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// cancellation says nothing about the server
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("tile breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s, nil
}

// URL expands the template for a tile. Both {z}/{x}/{y} placeholders and
// positional %d verbs in z, x, y order are understood.
func URL(template string, z, x, y int) string {
	if strings.Contains(template, "{z}") {
		r := strings.NewReplacer(
			"${z}", strconv.Itoa(z), "${x}", strconv.Itoa(x), "${y}", strconv.Itoa(y),
			"{z}", strconv.Itoa(z), "{x}", strconv.Itoa(x), "{y}", strconv.Itoa(y),
		)
		return r.Replace(template)
	}
	if strings.Count(template, "%d") == 3 {
		return fmt.Sprintf(template, z, x, y)
	}
	return template
}

// ValidTile reports whether the tile index exists at zoom z
func ValidTile(z, x, y int) bool {
	if z < 0 || z > MaxZoom {
		return false
	}
	n := 1 << z
	return x >= 0 && x < n && y >= 0 && y < n
}

func (s *HTTPSource) cachePath(z, x, y int) string {
	return filepath.Join(s.cfg.CacheDir, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".img")
}

// Fetch returns the decoded tile, from the cache when present
func (s *HTTPSource) Fetch(ctx context.Context, z, x, y int) (image.Image, error) {
	if !ValidTile(z, x, y) {
		return nil, fmt.Errorf("tile (%d, %d) out of range at zoom %d", x, y, z)
	}

	if s.cfg.CacheDir != "" {
		if data, err := os.ReadFile(s.cachePath(z, x, y)); err == nil {
			if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
				metrics.TileFetches.WithLabelValues("cache").Inc()
				return img, nil
			}
			s.logger.Debug("discarding corrupt cached tile", zap.Int("z", z), zap.Int("x", x), zap.Int("y", y))
		}
	}

	url := URL(s.cfg.URLTemplate, z, x, y)
	data, err := s.breaker.Execute(func() ([]byte, error) {
		return s.download(ctx, url)
	})
	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, &models.NetworkError{URL: url, Err: err}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, &models.NetworkError{URL: url, Err: fmt.Errorf("failed to decode tile: %w", err)}
	}
	metrics.TileFetches.WithLabelValues("network").Inc()

	if s.cfg.CacheDir != "" {
		if err := s.store(z, x, y, data); err != nil {
			s.logger.Warn("failed to cache tile", zap.String("url", url), zap.Error(err))
		}
	}
	return img, nil
}

func (s *HTTPSource) download(ctx context.Context, url string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile: %w", err)
	}
	return data, nil
}

func (s *HTTPSource) store(z, x, y int, data []byte) error {
	path := s.cachePath(z, x, y)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
