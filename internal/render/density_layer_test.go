package render

import (
	"context"
	"image"
	"math"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/database"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/repository"
	"github.com/jengzang/trackmap/internal/spatial"
)

func TestHeatLevel(t *testing.T) {
	if got := HeatLevel(0, 100); got != 0 {
		t.Errorf("HeatLevel(0) = %v", got)
	}
	if got := HeatLevel(1, 100); got != 0 {
		t.Errorf("HeatLevel(1) = %v, want 0", got)
	}
	if got := HeatLevel(100, 100); math.Abs(got-1) > 1e-12 {
		t.Errorf("HeatLevel(max) = %v, want 1", got)
	}
	if got := HeatLevel(1, 1); got != 1 {
		t.Errorf("HeatLevel with max 1 = %v, want 1", got)
	}
	prev := 0.0
	for _, a := range []float64{2, 5, 10, 50, 99} {
		got := HeatLevel(a, 100)
		if got <= prev || got > 1 {
			t.Errorf("HeatLevel(%v) = %v, not increasing", a, got)
		}
		prev = got
	}
}

func openDensityStore(t *testing.T) *repository.DensityRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "density.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := database.NewMigrationManager(db, database.DensityMigrations, zap.NewNop()).RunMigrations(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewDensityRepository(db, "world", models.TierWorld.Subdivisions())
}

// cellCenter returns the coordinate at the center of the cell holding (lat, lon)
func cellCenter(store *repository.DensityRepository, lat, lon float64) (float64, float64) {
	x, y := store.CellIndex(lat, lon)
	n := float64(store.Subdivisions())
	return spatial.TileYToLat((float64(y)+0.5)/n, 0), spatial.TileXToLon((float64(x)+0.5)/n, 0)
}

func TestDensityLayerDrawsVisitedCells(t *testing.T) {
	ctx := context.Background()
	store := openDensityStore(t)
	for i := int64(0); i < 5; i++ {
		if err := store.AddPoint(ctx, 5, 5, i*3_600_000); err != nil {
			t.Fatalf("AddPoint: %v", err)
		}
	}
	if err := store.AddPoint(ctx, 4.5, 5.5, 0); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}

	layer := NewDensityLayer(func(int) DensityGrid { return store }, 1)
	// world cells are about 6 px wide here
	v := testView(t, models.BBox{MinLat: 4, MaxLat: 6, MinLon: 4, MaxLon: 6}, 9, 100, 100)
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	rep := &nopReporter{}

	if err := layer.Render(ctx, v, dst, rep); err != nil {
		t.Fatalf("Render: %v", err)
	}

	x, y := v.ToPixel(cellCenter(store, 5, 5))
	hot := dst.RGBAAt(int(x), int(y))
	x, y = v.ToPixel(cellCenter(store, 4.5, 5.5))
	cold := dst.RGBAAt(int(x), int(y))
	if hot.A == 0 || cold.A == 0 {
		t.Fatalf("visited cells not drawn: hot %v, cold %v", hot, cold)
	}
	if hot.A <= cold.A {
		t.Errorf("hot alpha %d not above cold alpha %d", hot.A, cold.A)
	}
	if got := dst.RGBAAt(95, 5); got.A != 0 {
		t.Errorf("empty area = %v, want transparent", got)
	}
	if rep.max.Load() != 2 || rep.refreshes.Load() != 2 {
		t.Errorf("max = %d, refreshes = %d", rep.max.Load(), rep.refreshes.Load())
	}
}

func TestAccumulatorDownsamples(t *testing.T) {
	acc := newAccumulator(0, 9_999, 0, 9_999)
	if acc.stride != 5 || acc.w != 2_000 || acc.h != 2_000 {
		t.Errorf("stride = %d, grid = %dx%d", acc.stride, acc.w, acc.h)
	}
	acc.add(models.DensityCell{XIndex: 3, YIndex: 4, Amount: 2})
	acc.add(models.DensityCell{XIndex: 1, YIndex: 0, Amount: 3})
	if acc.values[0] != 5 || acc.max != 5 {
		t.Errorf("merged value = %v, max = %v", acc.values[0], acc.max)
	}
}
