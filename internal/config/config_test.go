package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != ":8080" || cfg.Backfill.BatchSize != 5000 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Render.PointLockTimeout != 30*time.Second {
		t.Errorf("point lock timeout = %v", cfg.Render.PointLockTimeout)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: ":9000"
tiles:
  url_template: "https://tiles.example.org/%d/%d/%d.png"
render:
  color_mode: month
  line_threshold: 90s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("TRACKMAP_SERVER_PORT", ":9100")
	t.Setenv("TRACKMAP_BACKFILL_BATCH_SIZE", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != ":9100" {
		t.Errorf("port = %q, want env override", cfg.Server.Port)
	}
	if cfg.Tiles.URLTemplate != "https://tiles.example.org/%d/%d/%d.png" {
		t.Errorf("template = %q", cfg.Tiles.URLTemplate)
	}
	if cfg.Render.ColorMode != "month" || cfg.Render.LineThreshold != 90*time.Second {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Backfill.BatchSize != 250 {
		t.Errorf("batch size = %d", cfg.Backfill.BatchSize)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"TRACKMAP_SERVER_PORT":        "server.port",
		"TRACKMAP_TILES_URL_TEMPLATE": "tiles.url_template",
		"TRACKMAP_LOG_LEVEL":          "log.level",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	bad := defaultConfig()
	bad.Render.ColorMode = "week"
	if err := bad.Validate(); err == nil {
		t.Error("unknown color mode accepted")
	}

	bad = defaultConfig()
	bad.Database.PointsPath = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty points path accepted")
	}
}
