package quadtree

import (
	"context"
	"fmt"
	"sync"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/provider"
	"github.com/adam-ce/cesium/tiling"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

type frameTile struct {
	frame uint64
	tile  models.TileID
}

// fakeProvider is a provider whose behaviour is scripted by tests.
type fakeProvider struct {
	provider.Lifecycle

	scheme tiling.Scheme
	events provider.ErrorEvent

	// The geometric error of level-zero tiles, halved per level.
	levelZeroError float64

	// Steps is the number of load calls a tile needs to become ready.
	steps int

	mutex         sync.Mutex
	visible       func(id models.TileID) bool
	distance      func(id models.TileID) float64
	visibilityErr map[models.TileID]error
	failures      map[models.TileID]int
	loadErr       error
	loadCtx       context.Context

	began        int
	ended        int
	visibleCalls []frameTile
	loads        []frameTile
	renders      []frameTile
	released     map[models.TileID]int
	violations   []string
}

func newFakeProvider(rootX int) *fakeProvider {
	p := &fakeProvider{
		scheme:         tiling.NewGeographicScheme(geometry.WGS84, rootX, 1),
		levelZeroError: 1e6,
		steps:          1,
		visibilityErr:  make(map[models.TileID]error),
		failures:       make(map[models.TileID]int),
		released:       make(map[models.TileID]int),
	}
	p.SetReady()
	return p
}

func (p *fakeProvider) TilingScheme() (tiling.Scheme, error) {
	if err := p.CheckReady("tiling_scheme"); err != nil {
		return nil, err
	}
	return p.scheme, nil
}

func (p *fakeProvider) ErrorEvent() *provider.ErrorEvent {
	return &p.events
}

func (p *fakeProvider) LevelMaximumGeometricError(level int) (float64, error) {
	if err := p.CheckReady("level_maximum_geometric_error"); err != nil {
		return 0, err
	}
	return provider.HalvingGeometricError(p.levelZeroError, level), nil
}

func (p *fakeProvider) BeginFrame(rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	if err := p.CheckReady("begin_frame"); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.began++
	return nil
}

func (p *fakeProvider) EndFrame(rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	if err := p.CheckReady("end_frame"); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.ended++
	return nil
}

func (p *fakeProvider) LoadTile(ctx context.Context, rc provider.RenderContext, fs *provider.FrameState, tile *models.Tile) error {
	if err := p.CheckReady("load_tile"); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, l := range p.loads {
		if l.frame == fs.FrameNumber && l.tile == tile.ID {
			p.violations = append(p.violations, fmt.Sprintf("tile %s loaded twice in frame %d", tile.ID, fs.FrameNumber))
		}
	}
	p.loads = append(p.loads, frameTile{frame: fs.FrameNumber, tile: tile.ID})
	p.loadCtx = ctx

	if p.loadErr != nil {
		return p.loadErr
	}

	if n := p.failures[tile.ID]; n > 0 {
		p.failures[tile.ID] = n - 1
		tile.MarkFailed()
		p.events.Raise(provider.TileProviderError{
			Tile: tile.ID,
			Err:  errors.New("scripted failure").WithType(provider.ErrTypeTileLoadFailed),
		})
		return nil
	}

	progress, _ := tile.Data.(int)
	progress++
	tile.Data = progress
	if progress >= p.steps {
		tile.MarkReady()
	}
	return nil
}

func (p *fakeProvider) IsTileVisible(tile *models.Tile, fs *provider.FrameState, occluders *provider.Occluders) (bool, error) {
	if err := p.CheckReady("is_tile_visible"); err != nil {
		return false, err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.visibleCalls = append(p.visibleCalls, frameTile{frame: fs.FrameNumber, tile: tile.ID})

	if err, ok := p.visibilityErr[tile.ID]; ok {
		return false, err
	}
	if p.visible == nil {
		return true, nil
	}
	return p.visible(tile.ID), nil
}

func (p *fakeProvider) DistanceToTile(tile *models.Tile, fs *provider.FrameState, cameraPosition r3.Vec, cameraCartographic geometry.Cartographic) (float64, error) {
	if err := p.CheckReady("distance_to_tile"); err != nil {
		return 0, err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.distance == nil {
		return 1000, nil
	}
	return p.distance(tile.ID), nil
}

func (p *fakeProvider) RenderTile(tile *models.Tile, rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	if err := p.CheckReady("render_tile"); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if tile.State != models.TileReady {
		p.violations = append(p.violations, fmt.Sprintf("tile %s rendered in state %s", tile.ID, tile.State))
	}
	for _, r := range p.renders {
		if r.frame == fs.FrameNumber && r.tile == tile.ID {
			p.violations = append(p.violations, fmt.Sprintf("tile %s rendered twice in frame %d", tile.ID, fs.FrameNumber))
		}
	}

	p.renders = append(p.renders, frameTile{frame: fs.FrameNumber, tile: tile.ID})
	cmds.Push(provider.DrawCommand{Tile: tile.ID, Payload: tile.Data})
	return nil
}

func (p *fakeProvider) ReleaseTile(tile *models.Tile) error {
	if err := p.CheckAlive("release_tile"); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.released[tile.ID]++
	tile.Data = nil
	return nil
}

func (p *fakeProvider) setVisible(visible func(id models.TileID) bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.visible = visible
}

func (p *fakeProvider) loadsOf(id models.TileID) []uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var frames []uint64
	for _, l := range p.loads {
		if l.tile == id {
			frames = append(frames, l.frame)
		}
	}
	return frames
}

func (p *fakeProvider) rendersIn(frame uint64) []models.TileID {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var tiles []models.TileID
	for _, r := range p.renders {
		if r.frame == frame {
			tiles = append(tiles, r.tile)
		}
	}
	return tiles
}

func (p *fakeProvider) visibleCallsIn(frame uint64) []models.TileID {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var tiles []models.TileID
	for _, c := range p.visibleCalls {
		if c.frame == frame {
			tiles = append(tiles, c.tile)
		}
	}
	return tiles
}

func (p *fakeProvider) releasedCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	n := 0
	for _, c := range p.released {
		n += c
	}
	return n
}
