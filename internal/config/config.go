package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override, TRACKMAP_SERVER_PORT -> server.port
	EnvPrefix = "TRACKMAP_"
	// ConfigPathEnvVar names an explicit config file
	ConfigPathEnvVar = "TRACKMAP_CONFIG"
)

// DefaultConfigPaths are searched when no config file is named
var DefaultConfigPaths = []string{"./config.yaml", "./config.yml"}

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Tiles    TilesConfig    `koanf:"tiles"`
	Render   RenderConfig   `koanf:"render"`
	Backfill BackfillConfig `koanf:"backfill"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port               string        `koanf:"port"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
	JWTSecret          string        `koanf:"jwt_secret"` // empty disables auth
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig locates the SQLite files
type DatabaseConfig struct {
	PointsPath   string `koanf:"points_path"`
	DensityDir   string `koanf:"density_dir"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// TilesConfig configures the basemap tile server
type TilesConfig struct {
	URLTemplate         string        `koanf:"url_template"`
	CacheDir            string        `koanf:"cache_dir"`
	UserAgent           string        `koanf:"user_agent"`
	RequestsPerSecond   float64       `koanf:"requests_per_second"`
	Burst               int           `koanf:"burst"`
	FetchConcurrency    int           `koanf:"fetch_concurrency"`
	Timeout             time.Duration `koanf:"timeout"`
	Attribution         string        `koanf:"attribution"`
	RedrawOnTranslation bool          `koanf:"redraw_on_translation"`
}

// RenderConfig configures the map renderer
type RenderConfig struct {
	Width               int           `koanf:"width"`
	Height              int           `koanf:"height"`
	MaxPixels           int           `koanf:"max_pixels"`
	LineThreshold       time.Duration `koanf:"line_threshold"`
	ColorMode           string        `koanf:"color_mode"`
	ColorSeed           uint64        `koanf:"color_seed"`
	PointLockTimeout    time.Duration `koanf:"point_lock_timeout"`
	TileLockTimeout     time.Duration `koanf:"tile_lock_timeout"`
	DensityLockTimeout  time.Duration `koanf:"density_lock_timeout"`
	DensityRefreshBatch int           `koanf:"density_refresh_batch"`
	Timeout             time.Duration `koanf:"timeout"`
}

// BackfillConfig configures the neighbor metric backfill
type BackfillConfig struct {
	BatchSize  int           `koanf:"batch_size"`
	RunAtStart bool          `koanf:"run_at_start"`
	Interval   time.Duration `koanf:"interval"` // 0 runs only at start
}

// LogConfig configures logging
type LogConfig struct {
	Level string `koanf:"level"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:               ":8080",
			RateLimitPerMinute: 600,
			ShutdownTimeout:    10 * time.Second,
		},
		Database: DatabaseConfig{
			PointsPath:   "./data/points.db",
			DensityDir:   "./data/density",
			MaxOpenConns: 10,
		},
		Tiles: TilesConfig{
			URLTemplate:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			CacheDir:            "./data/tiles",
			UserAgent:           "trackmap",
			RequestsPerSecond:   2,
			Burst:               4,
			FetchConcurrency:    4,
			Timeout:             15 * time.Second,
			Attribution:         "© OpenStreetMap contributors",
			RedrawOnTranslation: true,
		},
		Render: RenderConfig{
			Width:               1024,
			Height:              768,
			MaxPixels:           4096 * 4096,
			LineThreshold:       5 * time.Minute,
			ColorMode:           "single",
			ColorSeed:           1,
			PointLockTimeout:    30 * time.Second,
			TileLockTimeout:     10 * time.Second,
			DensityLockTimeout:  20 * time.Second,
			DensityRefreshBatch: 50_000,
			Timeout:             2 * time.Minute,
		},
		Backfill: BackfillConfig{
			BatchSize:  5000,
			RunAtStart: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// TRACKMAP_ environment variables, in increasing priority
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps TRACKMAP_TILES_URL_TEMPLATE to tiles.url_template
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var colorModes = map[string]bool{"single": true, "year": true, "month": true, "day": true, "hour": true}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is empty")
	}
	if c.Database.PointsPath == "" {
		return fmt.Errorf("database.points_path is empty")
	}
	if c.Database.DensityDir == "" {
		return fmt.Errorf("database.density_dir is empty")
	}
	if c.Tiles.URLTemplate == "" {
		return fmt.Errorf("tiles.url_template is empty")
	}
	if c.Tiles.FetchConcurrency <= 0 {
		return fmt.Errorf("tiles.fetch_concurrency must be positive")
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.MaxPixels < c.Render.Width*c.Render.Height {
		return fmt.Errorf("render.max_pixels is smaller than the default canvas")
	}
	if !colorModes[c.Render.ColorMode] {
		return fmt.Errorf("unknown render.color_mode %q", c.Render.ColorMode)
	}
	if c.Render.DensityRefreshBatch <= 0 {
		return fmt.Errorf("render.density_refresh_batch must be positive")
	}
	if c.Backfill.BatchSize <= 0 {
		return fmt.Errorf("backfill.batch_size must be positive")
	}
	if c.Backfill.Interval < 0 {
		return fmt.Errorf("backfill.interval must not be negative")
	}
	return nil
}
