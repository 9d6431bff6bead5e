// Package provider defines the contract between the quadtree engine and the
// data sources that produce tiles.
package provider

import (
	"context"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/tiling"
	"gonum.org/v1/gonum/spatial/r3"
)

// Provider is the interface that describes a source of quadtree tiles.
//
// Except for Ready, ErrorEvent, SetQuadtree and IsDestroyed, methods must not
// be called before Ready returns true. SetQuadtree is called when an engine
// takes the provider, which can happen before the provider is ready.
//
// After Destroy, every method that returns an error fails with an error of
// type ErrTypeDestroyed. Ready and ErrorEvent have no error to return: Ready
// reports false and ErrorEvent still returns the queue so that errors raised
// by loads that were in flight can be drained.
type Provider interface {
	// Reports whether the provider can be used.
	Ready() bool

	// Returns the tiling scheme. It does not change once the provider is
	// ready.
	TilingScheme() (tiling.Scheme, error)

	// Returns the queue where asynchronous load failures are raised.
	ErrorEvent() *ErrorEvent

	// Sets the quadtree that owns the provider. It can be called only once,
	// and before the provider is ready.
	SetQuadtree(q Quadtree) error

	// Returns the maximum geometric error, in meters, of tiles at the given
	// level.
	LevelMaximumGeometricError(level int) (float64, error)

	// Called once at the start of each frame, before any other per-frame
	// call.
	BeginFrame(rc RenderContext, fs *FrameState, cmds *CommandList) error

	// Called once at the end of each frame, after every other per-frame call.
	EndFrame(rc RenderContext, fs *FrameState, cmds *CommandList) error

	// Makes incremental progress loading a tile and returns without blocking.
	// Completion is reported by moving the tile to the ready or failed state.
	// The context is canceled when the engine abandons the load.
	LoadTile(ctx context.Context, rc RenderContext, fs *FrameState, tile *models.Tile) error

	// Reports whether a tile can be seen by the camera.
	IsTileVisible(tile *models.Tile, fs *FrameState, occluders *Occluders) (bool, error)

	// Returns the distance from the camera to the closest point of a tile.
	DistanceToTile(tile *models.Tile, fs *FrameState, cameraPosition r3.Vec, cameraCartographic geometry.Cartographic) (float64, error)

	// Appends the draw commands of a ready tile. It must not change the
	// tile state.
	RenderTile(tile *models.Tile, rc RenderContext, fs *FrameState, cmds *CommandList) error

	// Releases the resources attached to a tile. Releasing a tile twice has
	// no further effect.
	ReleaseTile(tile *models.Tile) error

	// Reports whether the provider has been destroyed.
	IsDestroyed() bool

	// Releases every resource held by the provider.
	Destroy() error
}

// Quadtree is the interface of the engine that owns a provider.
type Quadtree interface {
	// Returns the number of the current frame.
	FrameNumber() uint64

	// Drops every tile so that it is loaded again from the provider.
	InvalidateAllTiles()
}
