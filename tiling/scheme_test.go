package tiling

import (
	"testing"

	"github.com/adam-ce/cesium/geometry"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestGeographicScheme(t *testing.T) {
	s := NewGeographicScheme(geometry.WGS84, 0, 0)

	require.Equal(t, 2, s.NumberOfXTilesAtLevel(0))
	require.Equal(t, 1, s.NumberOfYTilesAtLevel(0))
	require.Equal(t, 8, s.NumberOfXTilesAtLevel(2))
	require.Equal(t, 4, s.NumberOfYTilesAtLevel(2))
	require.Equal(t, 32, TileCount(s, 2))
	require.Equal(t, geometry.WGS84, s.Ellipsoid())

	t.Run("level zero rectangles", func(t *testing.T) {
		require.Equal(t, orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{0, 90}}, s.TileXYToRectangle(0, 0, 0))
		require.Equal(t, orb.Bound{Min: orb.Point{0, -90}, Max: orb.Point{180, 90}}, s.TileXYToRectangle(1, 0, 0))
	})

	t.Run("rows grow southward", func(t *testing.T) {
		north := s.TileXYToRectangle(0, 0, 1)
		south := s.TileXYToRectangle(0, 1, 1)
		require.Equal(t, 90.0, north.Max.Lat())
		require.Equal(t, 0.0, north.Min.Lat())
		require.Equal(t, 0.0, south.Max.Lat())
		require.Equal(t, -90.0, south.Min.Lat())
	})

	t.Run("valid tiles", func(t *testing.T) {
		require.True(t, ValidTile(s, 1, 0, 0))
		require.False(t, ValidTile(s, 2, 0, 0))
		require.False(t, ValidTile(s, 0, 1, 0))
		require.False(t, ValidTile(s, 0, 0, -1))
	})
}

func TestWebMercatorScheme(t *testing.T) {
	s := NewWebMercatorScheme(geometry.WGS84)

	require.Equal(t, 1, s.NumberOfXTilesAtLevel(0))
	require.Equal(t, 4, s.NumberOfYTilesAtLevel(2))

	root := s.TileXYToRectangle(0, 0, 0)
	require.InDelta(t, -180, root.Min.Lon(), 1e-9)
	require.InDelta(t, 180, root.Max.Lon(), 1e-9)
	require.InDelta(t, 85.0511, root.Max.Lat(), 1e-3)

	northWest := s.TileXYToRectangle(0, 0, 1)
	require.InDelta(t, 0, northWest.Min.Lat(), 1e-9)
	require.InDelta(t, 0, northWest.Max.Lon(), 1e-9)
}
