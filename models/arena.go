package models

import (
	"sort"

	"github.com/adam-ce/cesium/tiling"
	"github.com/paulmach/orb"
)

// TileArena stores the tiles of a quadtree and hands out stable handles to
// them. It is not safe for concurrent use.
type TileArena struct {
	scheme  tiling.Scheme
	handles HandleGenerator
	tiles   map[Handle]*Tile
	ids     map[TileID]Handle
	roots   []Handle
}

func NewTileArena(scheme tiling.Scheme) *TileArena {
	return &TileArena{
		scheme: scheme,
		tiles:  make(map[Handle]*Tile),
		ids:    make(map[TileID]Handle),
	}
}

func (a *TileArena) Scheme() tiling.Scheme {
	return a.scheme
}

// CreateLevelZeroTiles creates one tile per level-zero grid cell of the
// tiling scheme, in row-major order. Existing roots are returned as is.
func (a *TileArena) CreateLevelZeroTiles() []*Tile {
	if len(a.roots) == 0 {
		nx := a.scheme.NumberOfXTilesAtLevel(0)
		ny := a.scheme.NumberOfYTilesAtLevel(0)

		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				t := a.add(TileID{X: x, Y: y}, a.scheme.TileXYToRectangle(x, y, 0), 0)
				a.roots = append(a.roots, t.handle)
			}
		}
	}

	return a.Roots()
}

// Roots returns the level-zero tiles.
func (a *TileArena) Roots() []*Tile {
	roots := make([]*Tile, 0, len(a.roots))
	for _, h := range a.roots {
		roots = append(roots, a.tiles[h])
	}
	return roots
}

func (a *TileArena) Get(h Handle) (*Tile, bool) {
	t, ok := a.tiles[h]
	return t, ok
}

func (a *TileArena) Lookup(id TileID) (*Tile, bool) {
	h, ok := a.ids[id]
	if !ok {
		return nil, false
	}
	return a.Get(h)
}

func (a *TileArena) Parent(t *Tile) (*Tile, bool) {
	if t.parent == 0 {
		return nil, false
	}
	return a.Get(t.parent)
}

// Children returns the four children of t, creating them when they do not
// exist yet. Their rectangles partition the rectangle of t.
func (a *TileArena) Children(t *Tile) [4]*Tile {
	var children [4]*Tile

	if !a.HasChildren(t) {
		ids := t.ID.Children()
		rects := a.childRectangles(t)

		for i, id := range ids {
			c := a.add(id, rects[i], t.handle)
			t.children[i] = c.handle
		}
	}

	for i, h := range t.children {
		children[i] = a.tiles[h]
	}
	return children
}

func (a *TileArena) HasChildren(t *Tile) bool {
	return t.children[0] != 0
}

// RemoveDescendants removes every descendant of t, children before their
// parents. Release is called with each tile before it is removed.
func (a *TileArena) RemoveDescendants(t *Tile, release func(*Tile)) int {
	if !a.HasChildren(t) {
		return 0
	}

	removed := 0
	for i, h := range t.children {
		c, ok := a.tiles[h]
		if ok {
			removed += a.RemoveDescendants(c, release)
			a.remove(c, release)
			removed++
		}
		t.children[i] = 0
	}
	return removed
}

// Clear removes every tile, roots included.
func (a *TileArena) Clear(release func(*Tile)) int {
	removed := 0
	for _, root := range a.Roots() {
		removed += a.RemoveDescendants(root, release)
		a.remove(root, release)
		removed++
	}

	a.roots = nil
	a.handles.Reset()
	return removed
}

// Len returns the number of resident tiles.
func (a *TileArena) Len() int {
	return len(a.tiles)
}

// Each calls fn for every resident tile in handle order.
func (a *TileArena) Each(fn func(*Tile)) {
	handles := make([]Handle, 0, len(a.tiles))
	for h := range a.tiles {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return handles[i] < handles[j]
	})

	for _, h := range handles {
		fn(a.tiles[h])
	}
}

// CountByState returns the number of resident tiles per state.
func (a *TileArena) CountByState() map[TileState]int {
	counts := map[TileState]int{
		TileUnloaded: 0,
		TileLoading:  0,
		TileReady:    0,
		TileFailed:   0,
	}
	for _, t := range a.tiles {
		counts[t.State]++
	}
	return counts
}

func (a *TileArena) add(id TileID, rect orb.Bound, parent Handle) *Tile {
	t := &Tile{
		ID:        id,
		Rectangle: rect,
		handle:    a.handles.New(),
		parent:    parent,
	}

	a.tiles[t.handle] = t
	a.ids[id] = t.handle
	return t
}

func (a *TileArena) remove(t *Tile, release func(*Tile)) {
	if release != nil {
		release(t)
	}

	delete(a.tiles, t.handle)
	delete(a.ids, t.ID)
	a.handles.Reuse(t.handle)
}

// childRectangles splits the rectangle of t along the edges the tiling scheme
// gives to its north-west child, so that neighbours share exact edges.
func (a *TileArena) childRectangles(t *Tile) [4]orb.Bound {
	ids := t.ID.Children()
	nw := a.scheme.TileXYToRectangle(ids[0].X, ids[0].Y, ids[0].Level)

	west := t.Rectangle.Min.Lon()
	south := t.Rectangle.Min.Lat()
	east := t.Rectangle.Max.Lon()
	north := t.Rectangle.Max.Lat()
	midLon := nw.Max.Lon()
	midLat := nw.Min.Lat()

	return [4]orb.Bound{
		{Min: orb.Point{west, midLat}, Max: orb.Point{midLon, north}},
		{Min: orb.Point{midLon, midLat}, Max: orb.Point{east, north}},
		{Min: orb.Point{west, south}, Max: orb.Point{midLon, midLat}},
		{Min: orb.Point{midLon, south}, Max: orb.Point{east, midLat}},
	}
}
