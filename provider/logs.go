package provider

import (
	"context"

	"github.com/adam-ce/cesium/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// WithLogs returns a provider that logs tile load transitions and lifecycle
// changes of p.
func WithLogs(p Provider, name string) Provider {
	return &providerWithLogs{
		Provider: p,
		name:     name,
	}
}

type providerWithLogs struct {
	Provider

	name string
}

func (p *providerWithLogs) SetQuadtree(q Quadtree) error {
	if err := p.Provider.SetQuadtree(q); err != nil {
		logs.WithTag("provider", p.name).Warn(err)
		return err
	}

	logs.WithTag("provider", p.name).Debug("provider attached to a quadtree")
	return nil
}

func (p *providerWithLogs) LoadTile(ctx context.Context, rc RenderContext, fs *FrameState, tile *models.Tile) error {
	before := tile.State

	err := p.Provider.LoadTile(ctx, rc, fs, tile)
	if err != nil {
		logs.WithTag("provider", p.name).
			WithTag("tile", tile.ID.String()).
			WithTag("frame", fs.FrameNumber).
			Error(errors.New("loading tile failed").Wrap(err))
		return err
	}

	if before == tile.State {
		return nil
	}

	entry := logs.WithTag("provider", p.name).
		WithTag("tile", tile.ID.String()).
		WithTag("frame", fs.FrameNumber).
		WithTag("from", before.String()).
		WithTag("to", tile.State.String())

	if tile.State == models.TileFailed {
		entry.WithTag("attempts", tile.LoadAttempts).
			Warn(errors.New("tile load failed"))
		return nil
	}

	entry.Debug("tile state changed")
	return nil
}

func (p *providerWithLogs) ReleaseTile(tile *models.Tile) error {
	if err := p.Provider.ReleaseTile(tile); err != nil {
		logs.WithTag("provider", p.name).
			WithTag("tile", tile.ID.String()).
			Warn(err)
		return err
	}
	return nil
}

func (p *providerWithLogs) Destroy() error {
	if err := p.Provider.Destroy(); err != nil {
		logs.WithTag("provider", p.name).Warn(err)
		return err
	}

	logs.WithTag("provider", p.name).Info("provider destroyed")
	return nil
}
