package quadtree

import (
	"sort"

	"github.com/adam-ce/cesium/models"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// trim removes the children of the least recently visited tiles until the
// number of resident tiles fits the tile cache size. Children visited in the
// current frame and level-zero tiles are kept.
func (e *Engine) trim(frame uint64) (int, error) {
	if e.arena.Len() <= e.opts.TileCacheSize {
		return 0, nil
	}

	var candidates []*models.Tile
	e.arena.Each(func(t *models.Tile) {
		if !e.arena.HasChildren(t) {
			return
		}

		for _, c := range e.arena.Children(t) {
			if c.LastVisitedFrame == frame {
				return
			}
		}
		candidates = append(candidates, t)
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		a := candidates[i]
		b := candidates[j]

		if a.LastVisitedFrame != b.LastVisitedFrame {
			return a.LastVisitedFrame < b.LastVisitedFrame
		}
		return a.ID.Level > b.ID.Level
	})

	var err error
	release := func(t *models.Tile) {
		if rerr := e.releaseTile(t); rerr != nil && err == nil {
			err = rerr
		}
	}

	trimmed := 0
	for _, t := range candidates {
		if e.arena.Len() <= e.opts.TileCacheSize {
			break
		}

		if current, ok := e.arena.Get(t.Handle()); !ok || current != t {
			continue
		}
		trimmed += e.arena.RemoveDescendants(t, release)
	}

	if trimmed > 0 {
		logs.WithTag("engine_uuid", e.uuid).
			WithTag("frame", frame).
			WithTag("trimmed", trimmed).
			WithTag("resident", e.arena.Len()).
			Info("tiles trimmed")
	}
	return trimmed, err
}
