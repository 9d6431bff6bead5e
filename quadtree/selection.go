package quadtree

import (
	"math"
	"sort"

	"github.com/adam-ce/cesium/featureflag"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/provider"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// frameUpdate holds the scratch state of a single Update call.
type frameUpdate struct {
	engine *Engine
	frame  uint64

	rc        provider.RenderContext
	fs        *provider.FrameState
	cmds      *provider.CommandList
	occluders *provider.Occluders

	tolerance      float64
	sseDenominator float64
	standIns       bool

	renderQueue []*models.Tile
	loadQueue   []loadRequest
	queued      map[models.Handle]struct{}

	stats FrameStats
}

func newFrameUpdate(e *Engine, rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) *frameUpdate {
	f := &frameUpdate{
		engine:         e,
		frame:          fs.FrameNumber,
		rc:             rc,
		fs:             fs,
		cmds:           cmds,
		tolerance:      e.opts.MaximumScreenSpaceError,
		sseDenominator: fs.Frustum.SSEDenominator(),
		standIns:       !e.opts.FeatureFlags.IsSet(featureflag.FlagDisableAncestorStandIn),
		queued:         make(map[models.Handle]struct{}),
		stats: FrameStats{
			Engine: e.opts.Name,
			Frame:  fs.FrameNumber,
		},
	}

	e.opts.FeatureFlags.IfNotSet(featureflag.FlagDisableOcclusionCulling, func() {
		f.occluders = provider.NewOccluders(e.arena.Scheme().Ellipsoid(), fs.Camera.Position)
	})
	return f
}

// run selects, renders and loads the tiles of the frame.
func (f *frameUpdate) run() error {
	if err := f.traverse(); err != nil {
		return err
	}

	if err := f.render(); err != nil {
		return err
	}
	return f.processLoads()
}

func (f *frameUpdate) traverse() error {
	roots, err := f.prepare(f.engine.arena.Roots())
	if err != nil {
		return err
	}

	for _, t := range roots {
		if err := f.visit(t); err != nil {
			return err
		}
	}
	return nil
}

// prepare tests the visibility of tiles, computes the distance and the
// screen-space error of the visible ones and returns them nearest first.
func (f *frameUpdate) prepare(tiles []*models.Tile) ([]*models.Tile, error) {
	visible := make([]*models.Tile, 0, len(tiles))

	for _, t := range tiles {
		t.LastVisitedFrame = f.frame
		f.stats.TilesVisited++

		ok, err := f.computeVisibility(t)
		if err != nil {
			return nil, err
		}
		if !ok {
			f.stats.TilesCulled++
			continue
		}
		visible = append(visible, t)
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Distance < visible[j].Distance
	})
	return visible, nil
}

func (f *frameUpdate) computeVisibility(t *models.Tile) (bool, error) {
	p := f.engine.provider

	visible, err := p.IsTileVisible(t, f.fs, f.occluders)
	if err != nil {
		if provider.IsPrecondition(err) {
			return false, err
		}
		f.visibilityError(t, err)
		return false, nil
	}
	if !visible {
		return false, nil
	}

	distance, err := p.DistanceToTile(t, f.fs, f.fs.Camera.Position, f.fs.Camera.Cartographic)
	if err != nil {
		if provider.IsPrecondition(err) {
			return false, err
		}
		f.visibilityError(t, err)
		return false, nil
	}
	if math.IsNaN(distance) || distance < 0 {
		f.visibilityError(t, errors.New("invalid distance to tile").
			WithType(provider.ErrTypeVisibilityFailed).
			WithTag("distance", distance))
		return false, nil
	}

	geometricError, err := p.LevelMaximumGeometricError(t.ID.Level)
	if err != nil {
		return false, providerError("getting level maximum geometric error failed", err)
	}

	t.Distance = distance
	t.ScreenSpaceError = f.screenSpaceError(geometricError, distance)
	return true, nil
}

func (f *frameUpdate) visibilityError(t *models.Tile, err error) {
	f.stats.VisibilityErrors++

	logs.WithTag("engine_uuid", f.engine.uuid).
		WithTag("frame", f.frame).
		WithTag("tile", t.ID.String()).
		WithTag("error", err.Error()).
		Debug("tile culled after a visibility error")
}

// screenSpaceError projects a geometric error at the given distance to
// pixels on screen.
func (f *frameUpdate) screenSpaceError(geometricError, distance float64) float64 {
	if distance == 0 {
		return math.Inf(1)
	}
	return geometricError * float64(f.fs.ViewportHeight) / (distance * f.sseDenominator)
}

func (f *frameUpdate) shouldRefine(t *models.Tile) bool {
	return t.ScreenSpaceError > f.tolerance &&
		t.ID.Level < *f.engine.opts.MaximumLevel &&
		t.State == models.TileReady
}

func (f *frameUpdate) visit(t *models.Tile) error {
	if !f.shouldRefine(t) {
		f.accept(t)
		return nil
	}

	arena := f.engine.arena
	if !arena.HasChildren(t) {
		models.InstrumentCountTiles(f.engine.opts.Name, 4)
	}

	children := arena.Children(t)
	visible, err := f.prepare(children[:])
	if err != nil {
		return err
	}

	for _, c := range visible {
		if err := f.visit(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *frameUpdate) accept(t *models.Tile) {
	f.stats.TilesSelected++
	f.stats.Selected = append(f.stats.Selected, t.ID)
	if t.ID.Level > f.stats.MaxLevelSelected {
		f.stats.MaxLevelSelected = t.ID.Level
	}

	if t.IsRenderable() {
		f.queueRender(t)
		return
	}

	if !t.NeedsLoad() {
		return
	}

	f.stats.TilesWaiting++
	f.queueLoad(t)

	if !f.standIns {
		return
	}

	if a, ok := f.renderableAncestor(t); ok && f.queueRender(a) {
		f.stats.StandIns++
	}
}

// queueRender queues t for rendering and reports whether it was not queued
// yet in this frame.
func (f *frameUpdate) queueRender(t *models.Tile) bool {
	if t.LastRenderedFrame == f.frame {
		return false
	}

	t.LastRenderedFrame = f.frame
	f.renderQueue = append(f.renderQueue, t)
	return true
}

func (f *frameUpdate) renderableAncestor(t *models.Tile) (*models.Tile, bool) {
	for {
		parent, ok := f.engine.arena.Parent(t)
		if !ok {
			return nil, false
		}
		if parent.IsRenderable() {
			return parent, true
		}
		t = parent
	}
}

func (f *frameUpdate) render() error {
	for _, t := range f.renderQueue {
		if !t.IsRenderable() {
			continue
		}

		if err := f.engine.provider.RenderTile(t, f.rc, f.fs, f.cmds); err != nil {
			if provider.IsPrecondition(err) {
				return err
			}

			logs.WithTag("engine_uuid", f.engine.uuid).
				WithTag("frame", f.frame).
				WithTag("tile", t.ID.String()).
				Warn(errors.New("rendering tile failed").Wrap(err))
			continue
		}
		f.stats.TilesRendered++
	}
	return nil
}

// providerError wraps err unless it is a lifecycle misuse, which is returned
// as is so that its type can be checked by callers.
func providerError(msg string, err error) error {
	if provider.IsPrecondition(err) {
		return err
	}
	return errors.New(msg).Wrap(err)
}
