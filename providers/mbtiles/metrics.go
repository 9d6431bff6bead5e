package mbtiles

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	tilesetLabel = "tileset"
	resultLabel  = "result"

	fetchResultHit   = "hit"
	fetchResultMiss  = "miss"
	fetchResultError = "error"
)

var (
	mbtilesFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mbtiles_fetch_latency",
		Help: "The time to read a tile from an mbtiles file.",
	}, []string{tilesetLabel, resultLabel})

	mbtilesQueueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mbtiles_queue_size",
		Help: "The number of tile reads waiting for a worker.",
	}, []string{tilesetLabel})
)

func instrumentFetch(tileset, result string, d time.Duration) {
	mbtilesFetchLatency.
		With(prometheus.Labels{
			tilesetLabel: tileset,
			resultLabel:  result,
		}).
		Observe(d.Seconds())
}

func instrumentQueueSize(tileset string, n int) {
	mbtilesQueueSize.
		With(prometheus.Labels{tilesetLabel: tileset}).
		Set(float64(n))
}
