package provider

import (
	"context"
	"time"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	providerLabel  = "provider"
	operationLabel = "operation"
	errTypeLabel   = "error_type"
	stateLabel     = "state"
)

var (
	providerCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "provider_call_latency",
		Help: "The time to run a provider operation.",
	}, []string{
		providerLabel,
		operationLabel,
	})

	providerCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_call_errors",
		Help: "The errors returned by provider operations.",
	}, []string{
		providerLabel,
		operationLabel,
		errTypeLabel,
	})

	providerLoadTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_load_transitions",
		Help: "The number of tile state changes caused by load calls.",
	}, []string{
		providerLabel,
		stateLabel,
	})
)

// WithMetrics returns a provider that reports the latency and the errors of
// the operations of p.
func WithMetrics(p Provider, name string) Provider {
	return &providerWithMetrics{
		Provider: p,
		name:     name,
	}
}

type providerWithMetrics struct {
	Provider

	name string
}

func (p *providerWithMetrics) BeginFrame(rc RenderContext, fs *FrameState, cmds *CommandList) error {
	return p.measureLatency("begin_frame", func() error {
		return p.Provider.BeginFrame(rc, fs, cmds)
	})
}

func (p *providerWithMetrics) EndFrame(rc RenderContext, fs *FrameState, cmds *CommandList) error {
	return p.measureLatency("end_frame", func() error {
		return p.Provider.EndFrame(rc, fs, cmds)
	})
}

func (p *providerWithMetrics) LoadTile(ctx context.Context, rc RenderContext, fs *FrameState, tile *models.Tile) error {
	before := tile.State

	err := p.measureLatency("load_tile", func() error {
		return p.Provider.LoadTile(ctx, rc, fs, tile)
	})

	if err == nil && before != tile.State {
		providerLoadTransitions.
			With(prometheus.Labels{
				providerLabel: p.name,
				stateLabel:    tile.State.String(),
			}).
			Inc()
	}
	return err
}

func (p *providerWithMetrics) IsTileVisible(tile *models.Tile, fs *FrameState, occluders *Occluders) (bool, error) {
	var visible bool
	err := p.measureLatency("is_tile_visible", func() error {
		var err error
		visible, err = p.Provider.IsTileVisible(tile, fs, occluders)
		return err
	})
	return visible, err
}

func (p *providerWithMetrics) DistanceToTile(tile *models.Tile, fs *FrameState, cameraPosition r3.Vec, cameraCartographic geometry.Cartographic) (float64, error) {
	var distance float64
	err := p.measureLatency("distance_to_tile", func() error {
		var err error
		distance, err = p.Provider.DistanceToTile(tile, fs, cameraPosition, cameraCartographic)
		return err
	})
	return distance, err
}

func (p *providerWithMetrics) RenderTile(tile *models.Tile, rc RenderContext, fs *FrameState, cmds *CommandList) error {
	return p.measureLatency("render_tile", func() error {
		return p.Provider.RenderTile(tile, rc, fs, cmds)
	})
}

func (p *providerWithMetrics) ReleaseTile(tile *models.Tile) error {
	return p.measureLatency("release_tile", func() error {
		return p.Provider.ReleaseTile(tile)
	})
}

func (p *providerWithMetrics) measureLatency(op string, f func() error) error {
	start := time.Now()

	err := f()
	if err != nil {
		providerCallErrors.
			With(prometheus.Labels{
				providerLabel:  p.name,
				operationLabel: op,
				errTypeLabel:   errors.Type(err),
			}).
			Inc()
	}

	providerCallLatency.With(prometheus.Labels{
		providerLabel:  p.name,
		operationLabel: op,
	}).Observe(time.Since(start).Seconds())

	return err
}
