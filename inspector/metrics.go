package inspector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	inspectorLabel = "inspector"
	formatLabel    = "format"
)

var (
	inspectorClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inspector_connected_clients",
		Help: "The number of connected inspector clients.",
	}, []string{inspectorLabel})

	inspectorPublishedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspector_published_frames",
		Help: "The number of frame reports queued for inspector clients.",
	}, []string{inspectorLabel, formatLabel})

	inspectorDroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspector_dropped_frames",
		Help: "The number of frame reports dropped for slow inspector clients.",
	}, []string{inspectorLabel, formatLabel})
)

func instrumentClients(inspector string, n int) {
	inspectorClients.
		With(prometheus.Labels{inspectorLabel: inspector}).
		Set(float64(n))
}

func instrumentPublishedFrame(inspector, format string) {
	inspectorPublishedFrames.
		With(prometheus.Labels{
			inspectorLabel: inspector,
			formatLabel:    format,
		}).
		Inc()
}

func instrumentDroppedFrame(inspector, format string) {
	inspectorDroppedFrames.
		With(prometheus.Labels{
			inspectorLabel: inspector,
			formatLabel:    format,
		}).
		Inc()
}
