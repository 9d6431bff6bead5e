package mbtiles

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/provider"
	"github.com/adam-ce/cesium/quadtree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestTMSRow(t *testing.T) {
	require.Equal(t, 0, tmsRow(models.TileID{}))
	require.Equal(t, 1, tmsRow(models.TileID{Level: 1, Y: 0}))
	require.Equal(t, 0, tmsRow(models.TileID{Level: 1, Y: 1}))
	require.Equal(t, 5, tmsRow(models.TileID{Level: 3, Y: 2}))
}

func TestOpen(t *testing.T) {
	t.Run("metadata", func(t *testing.T) {
		p := openTestProvider(t, newTestMBTiles(t))
		defer p.Destroy()

		require.True(t, p.Ready())
		require.Equal(t, Metadata{
			Name:    "test",
			Format:  "png",
			MinZoom: 0,
			MaxZoom: 2,
		}, p.Metadata())
		require.Equal(t, 2, p.MaximumLevel())

		scheme, err := p.TilingScheme()
		require.NoError(t, err)
		require.Equal(t, 1, scheme.NumberOfXTilesAtLevel(0))
		require.Equal(t, 4, scheme.NumberOfYTilesAtLevel(2))
	})

	t.Run("missing file tables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.mbtiles")
		_, err := Open(context.Background(), path, Options{})
		require.Error(t, err)
	})

	t.Run("invalid zoom", func(t *testing.T) {
		path := newTestMBTiles(t)
		execTestMBTiles(t, path, `UPDATE metadata SET value = 'two' WHERE name = 'maxzoom'`)

		_, err := Open(context.Background(), path, Options{})
		require.Error(t, err)
	})
}

func TestProviderLoadTile(t *testing.T) {
	rc := provider.NewRenderContext("test")
	fs := &provider.FrameState{}

	t.Run("stored tile", func(t *testing.T) {
		p := openTestProvider(t, newTestMBTiles(t))
		defer p.Destroy()

		scheme, err := p.TilingScheme()
		require.NoError(t, err)

		tile := &models.Tile{
			ID:        models.TileID{Level: 1, X: 0, Y: 0},
			Rectangle: scheme.TileXYToRectangle(0, 0, 1),
		}
		loadUntilDone(t, p, tile)

		require.Equal(t, models.TileReady, tile.State)
		require.True(t, tile.IsRenderable())

		var cmds provider.CommandList
		require.NoError(t, p.RenderTile(tile, rc, fs, &cmds))
		require.Equal(t, 1, cmds.Len())
		require.Equal(t, []byte("1/0/0"), cmds.Commands()[0].Payload)

		require.NoError(t, p.ReleaseTile(tile))
		require.NoError(t, p.ReleaseTile(tile))
		require.Nil(t, tile.Data)
	})

	t.Run("missing tile", func(t *testing.T) {
		p := openTestProvider(t, newTestMBTiles(t))
		defer p.Destroy()

		scheme, err := p.TilingScheme()
		require.NoError(t, err)

		tile := &models.Tile{
			ID:        models.TileID{Level: 2, X: 3, Y: 3},
			Rectangle: scheme.TileXYToRectangle(3, 3, 2),
		}
		loadUntilDone(t, p, tile)

		require.Equal(t, models.TileReady, tile.State)
		require.True(t, tile.Data.(*Payload).Empty())

		var cmds provider.CommandList
		require.NoError(t, p.RenderTile(tile, rc, fs, &cmds))
		require.Zero(t, cmds.Len())
	})

	t.Run("read error", func(t *testing.T) {
		path := newTestMBTiles(t)
		p := openTestProvider(t, path)
		defer p.Destroy()

		execTestMBTiles(t, path, `DROP TABLE tiles`)

		tile := &models.Tile{
			ID:           models.TileID{Level: 1, X: 1, Y: 1},
			LoadAttempts: 1,
		}
		loadUntilDone(t, p, tile)

		require.Equal(t, models.TileFailed, tile.State)
		require.Nil(t, tile.Data)

		raised := p.ErrorEvent().Drain()
		require.Len(t, raised, 1)
		require.Equal(t, tile.ID, raised[0].Tile)
		require.Equal(t, 1, raised[0].Attempts)
		require.True(t, errors.IsType(raised[0].Err, provider.ErrTypeTileLoadFailed))
	})

	t.Run("destroyed", func(t *testing.T) {
		p := openTestProvider(t, newTestMBTiles(t))
		require.NoError(t, p.Destroy())
		require.False(t, p.Ready())
		require.True(t, errors.IsType(p.Destroy(), provider.ErrTypeDestroyed))

		err := p.LoadTile(context.Background(), rc, fs, &models.Tile{})
		require.True(t, errors.IsType(err, provider.ErrTypeDestroyed))
	})
}

func TestProviderWithEngine(t *testing.T) {
	p := openTestProvider(t, newTestMBTiles(t))

	e, err := quadtree.New(p, quadtree.Options{MaximumLevel: quadtree.MaxLevel(p.MaximumLevel())})
	require.NoError(t, err)

	camera := provider.NewCamera(geometry.WGS84, geometry.CartographicFromDegrees(0, 0, 20000000), r3.Vec{})

	var stats quadtree.FrameStats
	for i := 0; i < 500 && !stats.Converged(); i++ {
		var cmds provider.CommandList
		fs := provider.NewFrameState(camera, 1024, 768)

		stats, err = e.Update(provider.NewRenderContext("test"), fs, &cmds)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	require.True(t, stats.Converged())
	for _, id := range stats.Selected {
		tile, ok := e.Tile(id)
		require.True(t, ok)
		require.True(t, tile.IsRenderable())
		require.LessOrEqual(t, id.Level, p.MaximumLevel())
	}

	require.NoError(t, e.Destroy())
	require.True(t, p.IsDestroyed())
}

func loadUntilDone(t *testing.T, p *Provider, tile *models.Tile) {
	rc := provider.NewRenderContext("test")
	fs := &provider.FrameState{}

	var err error
	require.Eventually(t, func() bool {
		if err = p.LoadTile(context.Background(), rc, fs, tile); err != nil {
			return true
		}
		return tile.State == models.TileReady || tile.State == models.TileFailed
	}, time.Second*5, time.Millisecond*5)
	require.NoError(t, err)
}

func openTestProvider(t *testing.T, path string) *Provider {
	p, err := Open(context.Background(), path, Options{Workers: 2})
	require.NoError(t, err)
	return p
}

// newTestMBTiles creates an mbtiles file holding every tile of level 0 and 1.
// Each tile holds its XYZ coordinates as bytes.
func newTestMBTiles(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "test.mbtiles")

	execTestMBTiles(t, path,
		`CREATE TABLE metadata (name TEXT, value TEXT)`,
		`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`,
		`INSERT INTO metadata (name, value) VALUES ('name', 'test'), ('format', 'png'), ('minzoom', '0'), ('maxzoom', '2')`,
	)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, id := range []models.TileID{
		{Level: 0, X: 0, Y: 0},
		{Level: 1, X: 0, Y: 0},
		{Level: 1, X: 1, Y: 0},
		{Level: 1, X: 0, Y: 1},
		{Level: 1, X: 1, Y: 1},
	} {
		_, err := db.Exec(
			`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
			id.Level, id.X, tmsRow(id), []byte(id.String()),
		)
		require.NoError(t, err)
	}
	return path
}

func execTestMBTiles(t *testing.T, path string, queries ...string) {
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, q := range queries {
		_, err := db.Exec(q)
		require.NoError(t, err)
	}
}
