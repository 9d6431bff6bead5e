// Package quadtree selects, loads and renders the tiles of a provider for
// each frame.
package quadtree

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adam-ce/cesium/featureflag"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/provider"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
)

const (
	ErrTypeEngineDestroyed = "engine_destroyed"
)

// Engine is a quadtree of tiles produced by a provider. Update must be called
// once per frame from a single goroutine.
type Engine struct {
	uuid string
	opts Options

	mutex     sync.Mutex
	provider  provider.Provider
	arena     *models.TileArena
	destroyed bool
	lastStats FrameStats

	frame      atomic.Uint64
	invalidate atomic.Bool

	loadCtx     context.Context
	cancelLoads context.CancelFunc

	errorMutex      sync.RWMutex
	errorHandlerIDs models.HandleGenerator
	errorHandlers   map[models.Handle]func(provider.TileProviderError)

	retryMutex sync.Mutex
	retries    map[models.TileID]struct{}
}

// New creates an engine that owns p.
func New(p provider.Provider, opts Options) (*Engine, error) {
	e := &Engine{
		uuid:          uuid.New().String(),
		opts:          opts.withDefaults(),
		errorHandlers: make(map[models.Handle]func(provider.TileProviderError)),
		retries:       make(map[models.TileID]struct{}),
	}
	e.loadCtx, e.cancelLoads = context.WithCancel(context.Background())

	if err := p.SetQuadtree(e); err != nil {
		e.cancelLoads()
		return nil, providerError("attaching provider failed", err)
	}
	e.provider = p

	logs.WithTag("engine", e.opts.Name).
		WithTag("engine_uuid", e.uuid).
		Debug("quadtree engine created")
	return e, nil
}

func (e *Engine) UUID() string {
	return e.uuid
}

func (e *Engine) Options() Options {
	return e.opts
}

// FrameNumber returns the number of the last updated frame.
func (e *Engine) FrameNumber() uint64 {
	return e.frame.Load()
}

// InvalidateAllTiles releases every tile at the start of the next frame so
// that they are loaded again.
func (e *Engine) InvalidateAllTiles() {
	e.invalidate.Store(true)

	logs.WithTag("engine_uuid", e.uuid).
		WithTag("frame", e.FrameNumber()).
		Info("all tiles invalidated")
}

func (e *Engine) Provider() provider.Provider {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.provider
}

// SetProvider replaces the provider. In-flight loads are abandoned and every
// tile is released with the previous provider. The previous provider is not
// destroyed.
func (e *Engine) SetProvider(p provider.Provider) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.destroyed {
		return destroyedError("set_provider")
	}

	if p == e.provider {
		return nil
	}

	if err := p.SetQuadtree(e); err != nil {
		return providerError("attaching provider failed", err)
	}

	released, err := e.releaseAll()
	e.provider = p
	e.invalidate.Store(false)

	logs.WithTag("engine_uuid", e.uuid).
		WithTag("frame", e.FrameNumber()).
		WithTag("released_tiles", released).
		Info("provider changed")
	return err
}

// HandleTileError registers a handler that is called with the tile provider
// errors drained at the start of each frame. Handlers are called by Update
// once the engine is unlocked.
func (e *Engine) HandleTileError(h func(provider.TileProviderError)) (cancel func()) {
	e.errorMutex.Lock()
	defer e.errorMutex.Unlock()

	id := e.errorHandlerIDs.New()
	e.errorHandlers[id] = h

	return func() {
		e.errorMutex.Lock()
		defer e.errorMutex.Unlock()

		if _, ok := e.errorHandlers[id]; !ok {
			return
		}
		delete(e.errorHandlers, id)
		e.errorHandlerIDs.Reuse(id)
	}
}

// Tile returns a copy of the resident tile with the given id.
func (e *Engine) Tile(id models.TileID) (models.Tile, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.arena == nil {
		return models.Tile{}, false
	}

	t, ok := e.arena.Lookup(id)
	if !ok {
		return models.Tile{}, false
	}
	return *t, true
}

// Len returns the number of resident tiles.
func (e *Engine) Len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.arena == nil {
		return 0
	}
	return e.arena.Len()
}

// LastStats returns the report of the last updated frame.
func (e *Engine) LastStats() FrameStats {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.lastStats
}

// IsDestroyed reports whether Destroy was called.
func (e *Engine) IsDestroyed() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.destroyed
}

// Destroy abandons in-flight loads, releases every tile and destroys the
// provider. Calling it more than once has no effect.
func (e *Engine) Destroy() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.destroyed {
		return nil
	}
	e.destroyed = true

	released, err := e.releaseAll()
	if !e.provider.IsDestroyed() {
		if derr := e.provider.Destroy(); derr != nil && err == nil {
			err = derr
		}
	}

	logs.WithTag("engine_uuid", e.uuid).
		WithTag("frame", e.FrameNumber()).
		WithTag("released_tiles", released).
		Info("quadtree engine destroyed")
	return err
}

// Update selects the tiles to draw for a frame, appends their draw commands
// to cmds and moves pending loads forward.
func (e *Engine) Update(rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) (FrameStats, error) {
	// Tile error handlers run once the engine is unlocked so that they can
	// call the engine.
	var raised []provider.TileProviderError
	defer func() {
		e.notifyTileErrors(raised)
	}()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	start := time.Now()

	if e.destroyed {
		return FrameStats{}, destroyedError("update")
	}

	if e.provider.IsDestroyed() {
		return FrameStats{}, errors.New("provider is destroyed").
			WithType(provider.ErrTypeDestroyed).
			WithTag("operation", "update")
	}

	if !e.provider.Ready() {
		return FrameStats{
			Engine:  e.opts.Name,
			Frame:   e.FrameNumber(),
			Time:    start,
			Skipped: true,
		}, nil
	}

	frame := e.frame.Add(1)
	fs.FrameNumber = frame
	if fs.CullingVolume.IsEmpty() {
		fs.ComputeCullingVolume()
	}

	if e.invalidate.Swap(false) && e.arena != nil {
		released, err := e.releaseAll()
		if err != nil {
			return FrameStats{}, err
		}

		logs.WithTag("engine_uuid", e.uuid).
			WithTag("frame", frame).
			WithTag("released_tiles", released).
			Info("tiles reloaded after invalidation")
	}

	if e.arena == nil {
		if err := e.createArena(); err != nil {
			return FrameStats{}, err
		}
	}

	f := newFrameUpdate(e, rc, fs, cmds)
	f.stats.Time = start
	raised = e.collectTileErrors()
	f.stats.ErrorsDispatched = len(raised)

	if err := e.provider.BeginFrame(rc, fs, cmds); err != nil {
		return FrameStats{}, providerError("beginning frame failed", err)
	}

	err := f.run()
	if endErr := e.provider.EndFrame(rc, fs, cmds); endErr != nil && err == nil {
		err = providerError("ending frame failed", endErr)
	}
	if err != nil {
		return FrameStats{}, err
	}

	if !e.opts.FeatureFlags.IsSet(featureflag.FlagDisableTileTrimming) {
		trimmed, err := e.trim(frame)
		if err != nil {
			return FrameStats{}, err
		}
		f.stats.TilesTrimmed = trimmed
	}

	stats := f.stats
	stats.TilesResident = e.arena.Len()
	stats.Duration = time.Since(start)
	e.lastStats = stats

	instrumentFrame(stats)
	models.InstrumentTileCount(e.opts.Name, e.arena)

	logs.WithTag("engine_uuid", e.uuid).
		WithTag("frame", frame).
		WithTag("selected", stats.TilesSelected).
		WithTag("rendered", stats.TilesRendered).
		WithTag("loads_started", stats.LoadsStarted).
		WithTag("resident", stats.TilesResident).
		Debug("frame updated")

	return stats, nil
}

func (e *Engine) createArena() error {
	scheme, err := e.provider.TilingScheme()
	if err != nil {
		return providerError("getting tiling scheme failed", err)
	}

	e.arena = models.NewTileArena(scheme)
	roots := e.arena.CreateLevelZeroTiles()
	models.InstrumentCountTiles(e.opts.Name, len(roots))

	logs.WithTag("engine_uuid", e.uuid).
		WithTag("frame", e.FrameNumber()).
		WithTag("roots", len(roots)).
		Debug("level zero tiles created")
	return nil
}

// releaseAll abandons in-flight loads and releases every tile with the
// current provider.
func (e *Engine) releaseAll() (int, error) {
	e.cancelLoads()
	e.loadCtx, e.cancelLoads = context.WithCancel(context.Background())

	e.retryMutex.Lock()
	e.retries = make(map[models.TileID]struct{})
	e.retryMutex.Unlock()

	if e.arena == nil {
		return 0, nil
	}

	var err error
	release := func(t *models.Tile) {
		if rerr := e.releaseTile(t); rerr != nil && err == nil {
			err = rerr
		}
	}

	if e.provider.IsDestroyed() {
		release = func(t *models.Tile) {
			t.ClearData()
		}
	}

	released := e.arena.Clear(release)
	e.arena = nil
	return released, err
}

func (e *Engine) releaseTile(t *models.Tile) error {
	err := e.provider.ReleaseTile(t)
	t.ClearData()

	if err != nil && !provider.IsPrecondition(err) {
		return errors.New("releasing tile failed").
			WithTag("tile", t.ID.String()).
			Wrap(err)
	}
	return err
}

// collectTileErrors drains the errors raised by the provider and completes
// them with the tile attempts and a retry handle.
func (e *Engine) collectTileErrors() []provider.TileProviderError {
	raised := e.provider.ErrorEvent().Drain()

	for i, err := range raised {
		if t, ok := e.arena.Lookup(err.Tile); ok && err.Attempts == 0 {
			err.Attempts = t.LoadAttempts
		}
		err.Retry = e.retryFunc(err.Tile)
		raised[i] = err

		logs.WithTag("engine_uuid", e.uuid).
			WithTag("frame", e.FrameNumber()).
			WithTag("tile", err.Tile.String()).
			WithTag("attempts", err.Attempts).
			Debug("dispatching tile provider error")
	}
	return raised
}

func (e *Engine) notifyTileErrors(raised []provider.TileProviderError) {
	if len(raised) == 0 {
		return
	}

	e.errorMutex.RLock()
	handlers := make([]func(provider.TileProviderError), 0, len(e.errorHandlers))
	for _, h := range e.errorHandlers {
		handlers = append(handlers, h)
	}
	e.errorMutex.RUnlock()

	for _, err := range raised {
		for _, h := range handlers {
			h(err)
		}
	}
}

func (e *Engine) retryFunc(id models.TileID) func() {
	return func() {
		e.retryMutex.Lock()
		defer e.retryMutex.Unlock()

		e.retries[id] = struct{}{}
	}
}

func (e *Engine) hasRetry(id models.TileID) bool {
	e.retryMutex.Lock()
	defer e.retryMutex.Unlock()

	_, ok := e.retries[id]
	return ok
}

// takeRetry reports whether a retry was requested for the tile and clears
// the request.
func (e *Engine) takeRetry(id models.TileID) bool {
	e.retryMutex.Lock()
	defer e.retryMutex.Unlock()

	if _, ok := e.retries[id]; !ok {
		return false
	}
	delete(e.retries, id)
	return true
}

func destroyedError(op string) error {
	return errors.New("quadtree engine is destroyed").
		WithType(ErrTypeEngineDestroyed).
		WithTag("operation", op)
}
