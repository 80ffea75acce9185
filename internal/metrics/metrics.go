package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	PointsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackmap_points_ingested_total",
			Help: "Points received by the ingestion service",
		},
		[]string{"result"}, // "saved", "skipped"
	)

	DensityUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackmap_density_updates_total",
			Help: "Points counted into density tiers",
		},
		[]string{"tier"},
	)

	// Maintenance
	BackfillRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackmap_backfill_rows_total",
			Help: "Rows visited by the neighbor backfill",
		},
		[]string{"result"}, // "written", "deferred", "failed"
	)

	// Tiles
	TileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackmap_tile_fetches_total",
			Help: "Map tile lookups by outcome",
		},
		[]string{"result"}, // "cache", "network", "error"
	)

	// Rendering
	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackmap_render_layer_duration_seconds",
			Help:    "Duration of render layer tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"layer", "outcome"}, // outcome: "ready", "cancelled", "failed", "skipped"
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackmap_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
