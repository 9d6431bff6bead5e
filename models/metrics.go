package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	engineLabel = "engine"
	stateLabel  = "state"
)

var (
	tileCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quadtree_tile_count",
		Help: "The number of resident tiles.",
	}, []string{engineLabel, stateLabel})

	tileCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_tile_count_total",
		Help: "The total number of tiles created.",
	}, []string{engineLabel})
)

// InstrumentTileCount reports the number of resident tiles per state.
func InstrumentTileCount(engine string, a *TileArena) {
	for state, count := range a.CountByState() {
		tileCount.
			With(prometheus.Labels{
				engineLabel: engine,
				stateLabel:  state.String(),
			}).
			Set(float64(count))
	}
}

// InstrumentCountTiles adds n to the total number of created tiles.
func InstrumentCountTiles(engine string, n int) {
	if n <= 0 {
		return
	}

	tileCountTotal.
		With(prometheus.Labels{engineLabel: engine}).
		Add(float64(n))
}
