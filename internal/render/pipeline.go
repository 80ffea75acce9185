package render

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/tile"
)

// PipelineConfig lists the data behind each layer. A nil source disables
// its layer.
type PipelineConfig struct {
	Tiles               tile.Source
	TileConcurrency     int
	RedrawOnTranslation bool
	TileLockTimeout     time.Duration

	Density             func(zoom int) DensityGrid
	DensityRefreshBatch int
	DensityLockTimeout  time.Duration

	Points           PointSource
	Point            PointLayerConfig
	PointLockTimeout time.Duration

	Attribution string
}

// Pipeline builds coordinators over a fixed set of data sources
type Pipeline struct {
	cfg    PipelineConfig
	logger *zap.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger}
}

// Layers returns the available layer names bottom to top
func (p *Pipeline) Layers() []string {
	var names []string
	if p.cfg.Tiles != nil {
		names = append(names, TileLayerName)
	}
	if p.cfg.Density != nil {
		names = append(names, DensityLayerName)
	}
	if p.cfg.Points != nil {
		names = append(names, PointLayerName)
	}
	if p.cfg.Attribution != "" {
		names = append(names, CopyrightLayerName)
	}
	return names
}

// Coordinator creates a coordinator drawing the named layers in the fixed
// bottom to top order. No names selects every available layer. mode
// overrides the configured point color mode when not empty.
func (p *Pipeline) Coordinator(names []string, mode ColorMode) (*Coordinator, error) {
	available := p.Layers()
	if len(names) == 0 {
		names = available
	}
	for _, n := range names {
		if !slices.Contains(available, n) {
			return nil, fmt.Errorf("unknown layer %q", n)
		}
	}

	var layers []LayerConfig
	for _, n := range available {
		if !slices.Contains(names, n) {
			continue
		}
		switch n {
		case TileLayerName:
			layers = append(layers, LayerConfig{
				Layer:       NewTileLayer(p.cfg.Tiles, p.cfg.TileConcurrency, p.cfg.RedrawOnTranslation, p.logger),
				LockTimeout: p.cfg.TileLockTimeout,
			})
		case DensityLayerName:
			layers = append(layers, LayerConfig{
				Layer:       NewDensityLayer(p.cfg.Density, p.cfg.DensityRefreshBatch),
				LockTimeout: p.cfg.DensityLockTimeout,
			})
		case PointLayerName:
			cfg := p.cfg.Point
			if mode != "" {
				cfg.ColorMode = mode
			}
			layers = append(layers, LayerConfig{
				Layer:       NewPointLayer(p.cfg.Points, cfg),
				LockTimeout: p.cfg.PointLockTimeout,
			})
		case CopyrightLayerName:
			layers = append(layers, LayerConfig{Layer: NewCopyrightLayer(p.cfg.Attribution)})
		}
	}
	return NewCoordinator(p.logger, layers...), nil
}
