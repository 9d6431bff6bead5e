package tiling

import (
	"github.com/adam-ce/cesium/geometry"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// WebMercatorScheme is the single-root scheme of slippy maps and MBTiles. It
// covers latitudes up to about 85.05 degrees.
type WebMercatorScheme struct {
	ellipsoid geometry.Ellipsoid
}

func NewWebMercatorScheme(e geometry.Ellipsoid) *WebMercatorScheme {
	return &WebMercatorScheme{ellipsoid: e}
}

func (s *WebMercatorScheme) Ellipsoid() geometry.Ellipsoid {
	return s.ellipsoid
}

func (s *WebMercatorScheme) NumberOfXTilesAtLevel(level int) int {
	return 1 << level
}

func (s *WebMercatorScheme) NumberOfYTilesAtLevel(level int) int {
	return 1 << level
}

func (s *WebMercatorScheme) TileXYToRectangle(x, y, level int) orb.Bound {
	return MapTile(x, y, level).Bound()
}

// MapTile converts quadtree coordinates to a maptile.Tile.
func MapTile(x, y, level int) maptile.Tile {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(level))
}
