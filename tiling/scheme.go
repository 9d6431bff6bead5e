// Package tiling maps quadtree tile coordinates to geographic rectangles.
//
// Rectangles are orb.Bound values in degrees: Min is the south-west corner
// and Max the north-east corner. Tile rows grow southward, so y = 0 is the
// northernmost row at every level.
package tiling

import (
	"github.com/adam-ce/cesium/geometry"
	"github.com/paulmach/orb"
)

// Scheme is the interface that describes how a quadtree is laid over the
// surface of an ellipsoid.
type Scheme interface {
	// Returns the ellipsoid that is tiled.
	Ellipsoid() geometry.Ellipsoid

	// Returns the number of tiles in the x direction at the given level.
	NumberOfXTilesAtLevel(level int) int

	// Returns the number of tiles in the y direction at the given level.
	NumberOfYTilesAtLevel(level int) int

	// Returns the geographic rectangle covered by a tile.
	TileXYToRectangle(x, y, level int) orb.Bound
}

// TileCount returns the total number of tiles at level.
func TileCount(s Scheme, level int) int {
	return s.NumberOfXTilesAtLevel(level) * s.NumberOfYTilesAtLevel(level)
}

// ValidTile reports whether x and y are within the tile grid at level.
func ValidTile(s Scheme, x, y, level int) bool {
	return level >= 0 &&
		x >= 0 && x < s.NumberOfXTilesAtLevel(level) &&
		y >= 0 && y < s.NumberOfYTilesAtLevel(level)
}
