package render

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/trackmap/internal/tile"
)

// TileLayerName is the name of the basemap layer
const TileLayerName = "tiles"

// MissingTile fills tiles that could not be fetched
var MissingTile = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

// TileLayer draws the basemap from a tile source
type TileLayer struct {
	source      tile.Source
	concurrency int
	redraw      bool
	logger      *zap.Logger
}

// NewTileLayer creates the basemap layer. concurrency bounds parallel fetches.
func NewTileLayer(source tile.Source, concurrency int, redrawOnTranslation bool, logger *zap.Logger) *TileLayer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &TileLayer{
		source:      source,
		concurrency: concurrency,
		redraw:      redrawOnTranslation,
		logger:      logger.Named("tile-layer"),
	}
}

func (l *TileLayer) Name() string { return TileLayerName }

func (l *TileLayer) Capabilities() Capabilities {
	return Capabilities{RedrawOnTranslation: l.redraw, QueryIndependent: true}
}

type tileIndex struct{ x, y int }

// visibleTiles lists the tiles intersecting the view
func visibleTiles(v View) []tileIndex {
	x0, x1, y0, y1 := v.TileRange()
	n := 1 << v.Zoom
	minX, maxX := max(0, int(math.Floor(x0))), min(n-1, int(math.Ceil(x1))-1)
	minY, maxY := max(0, int(math.Floor(y0))), min(n-1, int(math.Ceil(y1))-1)

	var tiles []tileIndex
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, tileIndex{x, y})
		}
	}
	return tiles
}

// Render fetches the visible tiles and blits each one as soon as it arrives
func (l *TileLayer) Render(ctx context.Context, v View, dst *image.RGBA, rep Reporter) error {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(MissingTile), image.Point{}, draw.Src)

	tiles := visibleTiles(v)
	rep.ProgressMax(int64(len(tiles)))

	x0, x1, y0, y1 := v.TileRange()
	sx := float64(v.Width) / (x1 - x0)
	sy := float64(v.Height) / (y1 - y0)

	var mu sync.Mutex
	var done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, t := range tiles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := l.source.Fetch(gctx, v.Zoom, t.x, t.y)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.logger.Debug("tile unavailable", zap.Int("z", v.Zoom), zap.Int("x", t.x), zap.Int("y", t.y), zap.Error(err))
			} else {
				r := image.Rect(
					int(math.Floor((float64(t.x)-x0)*sx)),
					int(math.Floor((float64(t.y)-y0)*sy)),
					int(math.Ceil((float64(t.x+1)-x0)*sx)),
					int(math.Ceil((float64(t.y+1)-y0)*sy)),
				)
				draw.ApproxBiLinear.Scale(dst, r, img, img.Bounds(), draw.Src, nil)
			}
			done++
			rep.Progress(done)
			rep.Refresh()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
