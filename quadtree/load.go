package quadtree

import (
	"sort"

	"github.com/adam-ce/cesium/featureflag"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/provider"
)

type loadRequest struct {
	tile *models.Tile

	// The number of siblings that are not ready. Finishing a tile whose
	// siblings are ready lets its parent be replaced sooner.
	pendingSiblings int
}

// queueLoad queues t for a load call in this frame. A tile is queued at most
// once per frame.
func (f *frameUpdate) queueLoad(t *models.Tile) {
	if _, ok := f.queued[t.Handle()]; ok {
		return
	}
	f.queued[t.Handle()] = struct{}{}

	f.loadQueue = append(f.loadQueue, loadRequest{
		tile:            t,
		pendingSiblings: f.pendingSiblings(t),
	})
}

// pendingSiblings returns the number of the other children of the parent of
// t that are not ready. Root tiles have no siblings.
func (f *frameUpdate) pendingSiblings(t *models.Tile) int {
	parent, ok := f.engine.arena.Parent(t)
	if !ok {
		return 0
	}

	pending := 0
	for _, c := range f.engine.arena.Children(parent) {
		if c != t && c.State != models.TileReady {
			pending++
		}
	}
	return pending
}

// sortLoadQueue orders loads by ascending screen-space error, then by fewer
// pending siblings, then by ascending level and distance.
func (f *frameUpdate) sortLoadQueue() {
	sort.SliceStable(f.loadQueue, func(i, j int) bool {
		a := f.loadQueue[i]
		b := f.loadQueue[j]

		if a.tile.ScreenSpaceError != b.tile.ScreenSpaceError {
			return a.tile.ScreenSpaceError < b.tile.ScreenSpaceError
		}
		if a.pendingSiblings != b.pendingSiblings {
			return a.pendingSiblings < b.pendingSiblings
		}
		if a.tile.ID.Level != b.tile.ID.Level {
			return a.tile.ID.Level < b.tile.ID.Level
		}
		return a.tile.Distance < b.tile.Distance
	})
}

// processLoads calls LoadTile once for every queued tile that is loading and
// for as many new loads as the load budget allows.
func (f *frameUpdate) processLoads() error {
	f.sortLoadQueue()

	e := f.engine
	unlimited := e.opts.FeatureFlags.IsSet(featureflag.FlagDisableLoadBudget)
	started := 0

	for _, r := range f.loadQueue {
		t := r.tile

		switch t.State {
		case models.TileLoading:
			f.stats.LoadsAdvanced++

		case models.TileUnloaded, models.TileFailed:
			failed := t.State == models.TileFailed
			if failed && !e.hasRetry(t.ID) && !e.opts.RetryPolicy.Due(t, f.frame) {
				continue
			}

			if !unlimited && started >= e.opts.LoadBudget {
				f.stats.LoadsDeferred++
				continue
			}

			if failed && !e.takeRetry(t.ID) && !e.opts.RetryPolicy.Allow(t, f.frame) {
				continue
			}

			started++
			f.stats.LoadsStarted++
			t.State = models.TileLoading
			t.LoadAttempts++

		default:
			continue
		}

		t.LastLoadFrame = f.frame
		if err := f.loadTile(t); err != nil {
			return err
		}
	}
	return nil
}

func (f *frameUpdate) loadTile(t *models.Tile) error {
	p := f.engine.provider

	if err := p.LoadTile(f.engine.loadCtx, f.rc, f.fs, t); err != nil {
		if provider.IsPrecondition(err) {
			return err
		}

		t.MarkFailed()
		p.ErrorEvent().Raise(provider.TileProviderError{
			Tile:     t.ID,
			Err:      err,
			Attempts: t.LoadAttempts,
		})
	}

	switch t.State {
	case models.TileReady:
		f.stats.LoadsCompleted++

	case models.TileFailed:
		f.stats.LoadsFailed++
	}
	return nil
}
