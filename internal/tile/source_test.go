package tile

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/models"
)

func pngTile(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestURL(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"https://tile.example.org/{z}/{x}/{y}.png", "https://tile.example.org/3/4/5.png"},
		{"https://tile.example.org/${z}/${x}/${y}.png", "https://tile.example.org/3/4/5.png"},
		{"https://tile.example.org/%d/%d/%d.png", "https://tile.example.org/3/4/5.png"},
	}
	for _, tt := range tests {
		if got := URL(tt.template, 3, 4, 5); got != tt.want {
			t.Errorf("URL(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestValidTile(t *testing.T) {
	if !ValidTile(0, 0, 0) || !ValidTile(2, 3, 3) {
		t.Error("valid tile rejected")
	}
	if ValidTile(2, 4, 0) || ValidTile(-1, 0, 0) || ValidTile(20, 0, 0) || ValidTile(1, 0, -1) {
		t.Error("invalid tile accepted")
	}
}

func TestFetchUsesCache(t *testing.T) {
	body := pngTile(t, color.RGBA{R: 200, A: 255})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.Header.Get("User-Agent"); got != "trackmap-test" {
			t.Errorf("user agent = %q", got)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(Config{
		URLTemplate: srv.URL + "/{z}/{x}/{y}.png",
		CacheDir:    t.TempDir(),
		UserAgent:   "trackmap-test",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	for i := 0; i < 2; i++ {
		img, err := src.Fetch(context.Background(), 1, 1, 0)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if r, _, _, _ := img.At(10, 10).RGBA(); r>>8 != 200 {
			t.Errorf("red = %d, want 200", r>>8)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestFetchFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(Config{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", FailureThreshold: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := src.Fetch(context.Background(), 0, 0, 0)
		var nerr *models.NetworkError
		if !errors.As(err, &nerr) {
			t.Fatalf("attempt %d: err = %v, want NetworkError", i, err)
		}
	}
}

func TestFetchRejectsUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(Config{URLTemplate: srv.URL + "/%d/%d/%d"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	if _, err := src.Fetch(context.Background(), 0, 0, 0); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFetchRejectsOutOfRangeTile(t *testing.T) {
	src, err := NewHTTPSource(Config{URLTemplate: "http://127.0.0.1:1/{z}/{x}/{y}"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	if _, err := src.Fetch(context.Background(), 1, 2, 0); err == nil {
		t.Fatal("expected range error")
	}
}
