package models

import (
	"fmt"

	"github.com/paulmach/orb"
)

// TileID identifies a tile by its quadtree level and grid coordinates.
type TileID struct {
	Level int `json:"level"`
	X     int `json:"x"`
	Y     int `json:"y"`
}

// Parent returns the id of the tile one level up. It returns false for
// level-zero tiles.
func (id TileID) Parent() (TileID, bool) {
	if id.Level == 0 {
		return TileID{}, false
	}

	return TileID{
		Level: id.Level - 1,
		X:     id.X / 2,
		Y:     id.Y / 2,
	}, true
}

// Children returns the ids of the four tiles one level down, in north-west,
// north-east, south-west and south-east order.
func (id TileID) Children() [4]TileID {
	level := id.Level + 1
	x := id.X * 2
	y := id.Y * 2

	return [4]TileID{
		{Level: level, X: x, Y: y},
		{Level: level, X: x + 1, Y: y},
		{Level: level, X: x, Y: y + 1},
		{Level: level, X: x + 1, Y: y + 1},
	}
}

func (id TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Level, id.X, id.Y)
}

// TileState represents the load state of a tile.
type TileState int

const (
	TileUnloaded TileState = iota
	TileLoading
	TileReady
	TileFailed
)

func (s TileState) String() string {
	switch s {
	case TileUnloaded:
		return "unloaded"

	case TileLoading:
		return "loading"

	case TileReady:
		return "ready"

	case TileFailed:
		return "failed"

	default:
		return fmt.Sprintf("tile_state_%d", int(s))
	}
}

// Tile is a node of the quadtree.
//
// The engine owns the tree structure and the selection fields. Providers own
// Data and move State and Renderable forward during LoadTile.
type Tile struct {
	ID        TileID
	Rectangle orb.Bound

	State      TileState
	Renderable bool

	// Opaque provider payload.
	Data any

	Distance         float64
	ScreenSpaceError float64
	LastVisitedFrame uint64

	LoadAttempts      int
	LastLoadFrame     uint64
	LastRenderedFrame uint64

	handle   Handle
	parent   Handle
	children [4]Handle
}

func (t *Tile) Handle() Handle {
	return t.handle
}

func (t *Tile) IsLevelZero() bool {
	return t.parent == 0
}

// MarkReady moves the tile to the ready state and makes it renderable.
func (t *Tile) MarkReady() {
	t.State = TileReady
	t.Renderable = true
}

// MarkFailed moves the tile to the failed state.
func (t *Tile) MarkFailed() {
	t.State = TileFailed
	t.Renderable = false
}

// ClearData drops the provider payload and returns the tile to the unloaded
// state.
func (t *Tile) ClearData() {
	t.State = TileUnloaded
	t.Renderable = false
	t.Data = nil
}

// IsRenderable reports whether the tile has data that can be drawn.
func (t *Tile) IsRenderable() bool {
	return t.State == TileReady && t.Renderable
}

// NeedsLoad reports whether the tile has no usable data yet.
func (t *Tile) NeedsLoad() bool {
	return t.State != TileReady
}
