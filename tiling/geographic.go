package tiling

import (
	"github.com/adam-ce/cesium/geometry"
	"github.com/paulmach/orb"
)

// GeographicScheme tiles longitude and latitude linearly (equirectangular).
type GeographicScheme struct {
	ellipsoid geometry.Ellipsoid
	rectangle orb.Bound
	rootX     int
	rootY     int
}

// WholeWorld is the rectangle covering the full longitude and latitude range.
var WholeWorld = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// NewGeographicScheme returns a scheme covering the whole world with
// numberOfLevelZeroTilesX by numberOfLevelZeroTilesY root tiles. Zero values
// default to the usual 2x1 layout.
func NewGeographicScheme(e geometry.Ellipsoid, numberOfLevelZeroTilesX, numberOfLevelZeroTilesY int) *GeographicScheme {
	if numberOfLevelZeroTilesX <= 0 {
		numberOfLevelZeroTilesX = 2
	}
	if numberOfLevelZeroTilesY <= 0 {
		numberOfLevelZeroTilesY = 1
	}

	return &GeographicScheme{
		ellipsoid: e,
		rectangle: WholeWorld,
		rootX:     numberOfLevelZeroTilesX,
		rootY:     numberOfLevelZeroTilesY,
	}
}

func (s *GeographicScheme) Ellipsoid() geometry.Ellipsoid {
	return s.ellipsoid
}

func (s *GeographicScheme) NumberOfXTilesAtLevel(level int) int {
	return s.rootX << level
}

func (s *GeographicScheme) NumberOfYTilesAtLevel(level int) int {
	return s.rootY << level
}

func (s *GeographicScheme) TileXYToRectangle(x, y, level int) orb.Bound {
	width := (s.rectangle.Max.Lon() - s.rectangle.Min.Lon()) / float64(s.NumberOfXTilesAtLevel(level))
	height := (s.rectangle.Max.Lat() - s.rectangle.Min.Lat()) / float64(s.NumberOfYTilesAtLevel(level))

	west := s.rectangle.Min.Lon() + float64(x)*width
	north := s.rectangle.Max.Lat() - float64(y)*height

	return orb.Bound{
		Min: orb.Point{west, north - height},
		Max: orb.Point{west + width, north},
	}
}
