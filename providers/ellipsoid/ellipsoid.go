// Package ellipsoid provides procedural tiles covering a bare ellipsoid.
package ellipsoid

import (
	"context"
	"sync"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/provider"
	"github.com/adam-ce/cesium/tiling"
	"gonum.org/v1/gonum/spatial/r3"
)

const Name = "ellipsoid"

type Options struct {
	// The ellipsoid to cover. WGS84 is used when zero.
	Ellipsoid geometry.Ellipsoid

	// The number of load calls a tile needs to become ready. Defaults to 1.
	LoadSteps int

	// The number of level-zero tiles in the x direction. Defaults to 2.
	LevelZeroTilesX int
}

// Payload is the data attached to the tiles of the provider.
type Payload struct {
	BoundingSphere geometry.BoundingSphere
	steps          int
	released       bool
}

// Provider produces tiles whose only content is their bounding sphere.
type Provider struct {
	provider.Lifecycle

	opts           Options
	scheme         *tiling.GeographicScheme
	culler         provider.SurfaceCuller
	levelZeroError float64
	events         provider.ErrorEvent

	mutex   sync.Mutex
	frames  int
	payload int
}

// New returns a ready provider.
func New(opts Options) *Provider {
	if opts.Ellipsoid == (geometry.Ellipsoid{}) {
		opts.Ellipsoid = geometry.WGS84
	}
	if opts.LoadSteps <= 0 {
		opts.LoadSteps = 1
	}

	scheme := tiling.NewGeographicScheme(opts.Ellipsoid, opts.LevelZeroTilesX, 1)

	p := &Provider{
		opts:           opts,
		scheme:         scheme,
		culler:         provider.SurfaceCuller{Ellipsoid: opts.Ellipsoid},
		levelZeroError: provider.ComputeDefaultLevelZeroMaximumGeometricError(scheme),
	}
	p.SetReady()
	return p
}

func (p *Provider) TilingScheme() (tiling.Scheme, error) {
	if err := p.CheckReady("tiling_scheme"); err != nil {
		return nil, err
	}
	return p.scheme, nil
}

func (p *Provider) ErrorEvent() *provider.ErrorEvent {
	return &p.events
}

func (p *Provider) LevelMaximumGeometricError(level int) (float64, error) {
	if err := p.CheckReady("level_maximum_geometric_error"); err != nil {
		return 0, err
	}
	return provider.HalvingGeometricError(p.levelZeroError, level), nil
}

func (p *Provider) BeginFrame(rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	return p.CheckReady("begin_frame")
}

func (p *Provider) EndFrame(rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	if err := p.CheckReady("end_frame"); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.frames++
	return nil
}

func (p *Provider) LoadTile(ctx context.Context, rc provider.RenderContext, fs *provider.FrameState, tile *models.Tile) error {
	if err := p.CheckReady("load_tile"); err != nil {
		return err
	}

	payload, ok := tile.Data.(*Payload)
	if !ok {
		payload = &Payload{
			BoundingSphere: p.culler.BoundingSphere(tile),
		}
		tile.Data = payload

		p.mutex.Lock()
		p.payload++
		p.mutex.Unlock()
	}

	payload.steps++
	if payload.steps >= p.opts.LoadSteps {
		tile.MarkReady()
	}
	return nil
}

func (p *Provider) IsTileVisible(tile *models.Tile, fs *provider.FrameState, occluders *provider.Occluders) (bool, error) {
	if err := p.CheckReady("is_tile_visible"); err != nil {
		return false, err
	}
	return p.culler.IsVisible(p.boundingSphere(tile), fs, occluders)
}

func (p *Provider) DistanceToTile(tile *models.Tile, fs *provider.FrameState, cameraPosition r3.Vec, cameraCartographic geometry.Cartographic) (float64, error) {
	if err := p.CheckReady("distance_to_tile"); err != nil {
		return 0, err
	}
	return p.culler.Distance(p.boundingSphere(tile), cameraPosition)
}

func (p *Provider) RenderTile(tile *models.Tile, rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	if err := p.CheckReady("render_tile"); err != nil {
		return err
	}

	cmds.Push(provider.DrawCommand{
		Tile:           tile.ID,
		Provider:       Name,
		BoundingSphere: p.boundingSphere(tile),
		Payload:        tile.Data,
	})
	return nil
}

func (p *Provider) ReleaseTile(tile *models.Tile) error {
	if err := p.CheckAlive("release_tile"); err != nil {
		return err
	}

	payload, ok := tile.Data.(*Payload)
	if !ok || payload.released {
		return nil
	}
	payload.released = true
	tile.Data = nil

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.payload--
	return nil
}

// Payloads returns the number of payloads attached to tiles.
func (p *Provider) Payloads() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.payload
}

// Frames returns the number of frames ended.
func (p *Provider) Frames() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.frames
}

func (p *Provider) boundingSphere(tile *models.Tile) geometry.BoundingSphere {
	if payload, ok := tile.Data.(*Payload); ok {
		return payload.BoundingSphere
	}
	return p.culler.BoundingSphere(tile)
}
