package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/tiling"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestComputeDefaultLevelZeroMaximumGeometricError(t *testing.T) {
	sphere := geometry.NewEllipsoid(6378137, 6378137, 6378137)

	t.Run("two level zero tiles", func(t *testing.T) {
		err := ComputeDefaultLevelZeroMaximumGeometricError(tiling.NewGeographicScheme(sphere, 2, 1))
		require.InDelta(t, 6378137*math.Pi/2/130, err, 1e-6)
		require.InDelta(t, 77067.3, err, 0.1)
	})

	t.Run("doubling tiles halves the error", func(t *testing.T) {
		previous := math.Inf(1)
		for _, n := range []int{1, 2, 4, 8} {
			err := ComputeDefaultLevelZeroMaximumGeometricError(tiling.NewGeographicScheme(sphere, n, 1))
			require.Greater(t, err, 0.0)
			require.Less(t, err, previous)
			if !math.IsInf(previous, 1) {
				require.InDelta(t, previous/2, err, 1e-9)
			}
			previous = err
		}
	})

	t.Run("halving per level", func(t *testing.T) {
		levelZero := 1000.0
		previous := math.Inf(1)
		for level := 0; level < 20; level++ {
			err := HalvingGeometricError(levelZero, level)
			require.LessOrEqual(t, err, previous)
			previous = err
		}
		require.Equal(t, 250.0, HalvingGeometricError(levelZero, 2))
	})
}

type quadtreeStub struct{}

func (quadtreeStub) FrameNumber() uint64 { return 0 }
func (quadtreeStub) InvalidateAllTiles() {}

func TestLifecycle(t *testing.T) {
	t.Run("not ready", func(t *testing.T) {
		var l Lifecycle
		require.False(t, l.Ready())
		require.NoError(t, l.CheckAlive("op"))

		err := l.CheckReady("op")
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeNotReady))
		require.True(t, IsPrecondition(err))
	})

	t.Run("ready", func(t *testing.T) {
		var l Lifecycle
		l.SetReady()
		require.True(t, l.Ready())
		require.NoError(t, l.CheckReady("op"))
	})

	t.Run("quadtree is set once before ready", func(t *testing.T) {
		var l Lifecycle
		require.False(t, l.Ready())
		require.NoError(t, l.SetQuadtree(quadtreeStub{}))
		require.NotNil(t, l.Quadtree())

		err := l.SetQuadtree(quadtreeStub{})
		require.True(t, errors.IsType(err, ErrTypeQuadtreeAlreadySet))
	})

	t.Run("destroyed", func(t *testing.T) {
		var l Lifecycle
		l.SetReady()
		require.NoError(t, l.Destroy())
		require.True(t, l.IsDestroyed())
		require.False(t, l.Ready())

		require.True(t, errors.IsType(l.CheckReady("op"), ErrTypeDestroyed))
		require.True(t, errors.IsType(l.CheckAlive("op"), ErrTypeDestroyed))
		require.True(t, errors.IsType(l.SetQuadtree(quadtreeStub{}), ErrTypeDestroyed))
		require.True(t, errors.IsType(l.Destroy(), ErrTypeDestroyed))
	})

	t.Run("destroyed before ready reports destroyed", func(t *testing.T) {
		var l Lifecycle
		require.NoError(t, l.Destroy())
		require.True(t, errors.IsType(l.CheckReady("op"), ErrTypeDestroyed))
	})
}

func TestErrorEvent(t *testing.T) {
	var e ErrorEvent
	require.Zero(t, e.Len())
	require.Empty(t, e.Drain())

	cause := errors.New("timeout").WithType(ErrTypeTileLoadFailed)
	e.Raise(TileProviderError{Tile: models.TileID{Level: 1}, Err: cause, Attempts: 1})
	e.Raise(TileProviderError{Tile: models.TileID{Level: 2}, Err: cause, Attempts: 3})
	require.Equal(t, 2, e.Len())

	raised := e.Drain()
	require.Len(t, raised, 2)
	require.Equal(t, 1, raised[0].Tile.Level)
	require.Equal(t, 2, raised[1].Tile.Level)
	require.False(t, raised[0].Time.IsZero())
	require.Contains(t, raised[1].Error(), "2/0/0")
	require.True(t, errors.IsType(raised[0].Unwrap(), ErrTypeTileLoadFailed))
	require.Zero(t, e.Len())
}

func TestCommandList(t *testing.T) {
	var cmds CommandList
	cmds.Push(DrawCommand{Tile: models.TileID{X: 1}})
	cmds.Push(DrawCommand{Tile: models.TileID{X: 2}})
	require.Equal(t, 2, cmds.Len())
	require.Equal(t, 2, cmds.Commands()[1].Tile.X)

	cmds.Reset()
	require.Zero(t, cmds.Len())
}

func TestSurfaceCuller(t *testing.T) {
	e := geometry.WGS84
	culler := SurfaceCuller{Ellipsoid: e}
	scheme := tiling.NewGeographicScheme(e, 2, 1)

	camera := NewCamera(e, geometry.CartographicFromDegrees(90, 0, 10000000), r3.Vec{})
	fs := NewFrameState(camera, 1024, 768)
	require.False(t, fs.CullingVolume.IsEmpty())
	occluders := NewOccluders(e, camera.Position)

	east := &models.Tile{Rectangle: scheme.TileXYToRectangle(1, 0, 0)}
	west := &models.Tile{ID: models.TileID{X: 0}, Rectangle: scheme.TileXYToRectangle(0, 0, 0)}

	t.Run("tile under the camera is visible", func(t *testing.T) {
		visible, err := culler.IsVisible(culler.BoundingSphere(east), fs, occluders)
		require.NoError(t, err)
		require.True(t, visible)
	})

	t.Run("tile behind the globe is not visible", func(t *testing.T) {
		small := &models.Tile{Rectangle: scheme.TileXYToRectangle(2, 3, 4)}

		visible, err := culler.IsVisible(culler.BoundingSphere(small), fs, occluders)
		require.NoError(t, err)
		require.False(t, visible)
	})

	t.Run("distance", func(t *testing.T) {
		d, err := culler.Distance(culler.BoundingSphere(west), camera.Position)
		require.NoError(t, err)
		require.GreaterOrEqual(t, d, 0.0)
	})

	t.Run("invalid sphere", func(t *testing.T) {
		s := geometry.BoundingSphere{Radius: math.NaN()}

		_, err := culler.IsVisible(s, fs, occluders)
		require.True(t, errors.IsType(err, ErrTypeVisibilityFailed))

		_, err = culler.Distance(s, camera.Position)
		require.True(t, errors.IsType(err, ErrTypeVisibilityFailed))
	})
}

type providerStub struct {
	Lifecycle

	events  ErrorEvent
	loadErr error
	next    models.TileState
}

func (p *providerStub) TilingScheme() (tiling.Scheme, error) {
	return tiling.NewGeographicScheme(geometry.WGS84, 2, 1), nil
}

func (p *providerStub) ErrorEvent() *ErrorEvent {
	return &p.events
}

func (p *providerStub) LevelMaximumGeometricError(level int) (float64, error) {
	return HalvingGeometricError(1000, level), nil
}

func (p *providerStub) BeginFrame(rc RenderContext, fs *FrameState, cmds *CommandList) error {
	return nil
}

func (p *providerStub) EndFrame(rc RenderContext, fs *FrameState, cmds *CommandList) error {
	return nil
}

func (p *providerStub) LoadTile(ctx context.Context, rc RenderContext, fs *FrameState, tile *models.Tile) error {
	if p.loadErr != nil {
		return p.loadErr
	}
	tile.State = p.next
	return nil
}

func (p *providerStub) IsTileVisible(tile *models.Tile, fs *FrameState, occluders *Occluders) (bool, error) {
	return true, nil
}

func (p *providerStub) DistanceToTile(tile *models.Tile, fs *FrameState, cameraPosition r3.Vec, cameraCartographic geometry.Cartographic) (float64, error) {
	return 1, nil
}

func (p *providerStub) RenderTile(tile *models.Tile, rc RenderContext, fs *FrameState, cmds *CommandList) error {
	cmds.Push(DrawCommand{Tile: tile.ID})
	return nil
}

func (p *providerStub) ReleaseTile(tile *models.Tile) error {
	return p.CheckAlive("release_tile")
}

func TestProviderWithLogs(t *testing.T) {
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})
	logs.SetLevel(logs.DebugLevel)
	defer logs.SetLevel(logs.InfoLevel)

	stub := &providerStub{next: models.TileFailed}
	stub.SetReady()
	p := WithLogs(stub, "stub")

	fs := &FrameState{FrameNumber: 7}
	tile := &models.Tile{ID: models.TileID{Level: 3, X: 1, Y: 2}}
	require.NoError(t, p.LoadTile(context.Background(), NewRenderContext("test"), fs, tile))
	require.Equal(t, models.TileFailed, tile.State)
	require.Contains(t, b.String(), "3/1/2")
	require.Contains(t, b.String(), "tile load failed")

	require.NoError(t, p.Destroy())
	require.Contains(t, b.String(), "provider destroyed")
	require.Error(t, p.ReleaseTile(tile))
	require.True(t, p.IsDestroyed())
}

func TestProviderWithMetrics(t *testing.T) {
	stub := &providerStub{next: models.TileReady}
	stub.SetReady()
	p := WithMetrics(stub, "stub")

	rc := NewRenderContext("test")
	fs := &FrameState{}
	var cmds CommandList

	tile := &models.Tile{}
	require.NoError(t, p.BeginFrame(rc, fs, &cmds))
	require.NoError(t, p.LoadTile(context.Background(), rc, fs, tile))
	require.Equal(t, models.TileReady, tile.State)

	visible, err := p.IsTileVisible(tile, fs, nil)
	require.NoError(t, err)
	require.True(t, visible)

	distance, err := p.DistanceToTile(tile, fs, r3.Vec{}, geometry.Cartographic{})
	require.NoError(t, err)
	require.Equal(t, 1.0, distance)

	require.NoError(t, p.RenderTile(tile, rc, fs, &cmds))
	require.Equal(t, 1, cmds.Len())
	require.NoError(t, p.EndFrame(rc, fs, &cmds))

	stub.loadErr = errors.New("boom").WithType(ErrTypeTileLoadFailed)
	require.Error(t, p.LoadTile(context.Background(), rc, fs, tile))
}
