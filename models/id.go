package models

import (
	"sync"
)

// Handle is a stable reference to a tile in a TileArena. The zero value
// refers to no tile.
type Handle uint32

// A sequential handle generator.
type HandleGenerator struct {
	mutex     sync.Mutex
	current   Handle
	reusables []Handle
}

// New returns a sequential handle. The most recently reused handle is
// returned first when any are available.
func (g *HandleGenerator) New() Handle {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := len(g.reusables); n > 0 {
		h := g.reusables[n-1]
		g.reusables = g.reusables[:n-1]
		return h
	}

	g.current++
	return g.current
}

// Reuse marks the given handle as reusable.
func (g *HandleGenerator) Reuse(h Handle) {
	if h == 0 {
		return
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.reusables = append(g.reusables, h)
}

// Reset forgets every issued handle.
func (g *HandleGenerator) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.current = 0
	g.reusables = nil
}
