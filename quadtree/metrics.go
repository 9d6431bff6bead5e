package quadtree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	engineLabel = "engine"
	kindLabel   = "kind"
)

var (
	quadtreeFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_frames",
		Help: "The number of frames updated.",
	}, []string{engineLabel})

	quadtreeFrameLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "quadtree_frame_latency",
		Help: "The time to update a frame.",
	}, []string{engineLabel})

	quadtreeFrameTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quadtree_frame_tiles",
		Help: "The number of tiles per kind in the last frame.",
	}, []string{engineLabel, kindLabel})

	quadtreeLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_loads",
		Help: "The number of tile loads per kind.",
	}, []string{engineLabel, kindLabel})

	quadtreeTrimmedTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_trimmed_tiles",
		Help: "The number of tiles removed to keep the tile cache size.",
	}, []string{engineLabel})

	quadtreeVisibilityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_visibility_errors",
		Help: "The visibility computations that failed and culled a tile.",
	}, []string{engineLabel})

	quadtreeDispatchedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_dispatched_errors",
		Help: "The number of tile provider errors dispatched to handlers.",
	}, []string{engineLabel})
)

func instrumentFrame(s FrameStats) {
	quadtreeFrames.
		With(prometheus.Labels{engineLabel: s.Engine}).
		Inc()

	quadtreeFrameLatency.
		With(prometheus.Labels{engineLabel: s.Engine}).
		Observe(s.Duration.Seconds())

	tiles := map[string]int{
		"visited":  s.TilesVisited,
		"culled":   s.TilesCulled,
		"selected": s.TilesSelected,
		"waiting":  s.TilesWaiting,
		"rendered": s.TilesRendered,
		"stand_in": s.StandIns,
		"resident": s.TilesResident,
	}
	for kind, n := range tiles {
		quadtreeFrameTiles.
			With(prometheus.Labels{engineLabel: s.Engine, kindLabel: kind}).
			Set(float64(n))
	}

	loads := map[string]int{
		"started":   s.LoadsStarted,
		"advanced":  s.LoadsAdvanced,
		"completed": s.LoadsCompleted,
		"deferred":  s.LoadsDeferred,
		"failed":    s.LoadsFailed,
	}
	for kind, n := range loads {
		quadtreeLoads.
			With(prometheus.Labels{engineLabel: s.Engine, kindLabel: kind}).
			Add(float64(n))
	}

	quadtreeTrimmedTiles.
		With(prometheus.Labels{engineLabel: s.Engine}).
		Add(float64(s.TilesTrimmed))

	quadtreeVisibilityErrors.
		With(prometheus.Labels{engineLabel: s.Engine}).
		Add(float64(s.VisibilityErrors))

	quadtreeDispatchedErrors.
		With(prometheus.Labels{engineLabel: s.Engine}).
		Add(float64(s.ErrorsDispatched))
}
