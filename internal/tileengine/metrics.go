package tileengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tilesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chartpyramid",
		Name:      "tiles_written_total",
		Help:      "Tiles written to the output tree, by phase.",
	}, []string{"phase"})

	tilesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chartpyramid",
		Name:      "tiles_skipped_total",
		Help:      "Tiles skipped (already present, disjoint, or fully transparent), by phase.",
	}, []string{"phase"})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chartpyramid",
		Name:      "tile_render_seconds",
		Help:      "Wall-clock time spent producing one base tile in Phase 1.",
		Buckets:   prometheus.DefBuckets,
	})
)
