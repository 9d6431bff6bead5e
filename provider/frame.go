package provider

import (
	"time"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"gonum.org/v1/gonum/spatial/r3"
)

// RenderContext is the interface of the graphics backend that draw commands
// are submitted to.
type RenderContext interface {
	Name() string
}

type namedRenderContext string

// NewRenderContext returns a render context that only carries a name. It
// suits headless rendering where commands are inspected rather than drawn.
func NewRenderContext(name string) RenderContext {
	return namedRenderContext(name)
}

func (c namedRenderContext) Name() string {
	return string(c)
}

// DrawCommand is a request to draw the payload of a tile.
type DrawCommand struct {
	Tile           models.TileID           `json:"tile"`
	Provider       string                  `json:"provider,omitempty"`
	BoundingSphere geometry.BoundingSphere `json:"-"`
	Payload        any                     `json:"-"`
}

// CommandList collects the draw commands of a frame.
type CommandList struct {
	commands []DrawCommand
}

func (l *CommandList) Push(cmd DrawCommand) {
	l.commands = append(l.commands, cmd)
}

func (l *CommandList) Len() int {
	return len(l.commands)
}

func (l *CommandList) Commands() []DrawCommand {
	return l.commands
}

func (l *CommandList) Reset() {
	l.commands = l.commands[:0]
}

// Camera describes where the frame is viewed from.
type Camera struct {
	Position     r3.Vec
	Direction    r3.Vec
	Up           r3.Vec
	Cartographic geometry.Cartographic
}

// NewCamera returns a camera placed at position above the ellipsoid and
// looking at target.
func NewCamera(e geometry.Ellipsoid, position geometry.Cartographic, target r3.Vec) Camera {
	eye := e.CartographicToCartesian(position)
	direction, up := geometry.LookAt(eye, target, r3.Vec{Z: 1})

	return Camera{
		Position:     eye,
		Direction:    direction,
		Up:           up,
		Cartographic: position,
	}
}

// FrameState is the per-frame input of the engine and the providers.
type FrameState struct {
	FrameNumber    uint64
	Time           time.Time
	Camera         Camera
	Frustum        geometry.PerspectiveFrustum
	CullingVolume  geometry.CullingVolume
	ViewportWidth  int
	ViewportHeight int
}

// NewFrameState returns a frame state with the default frustum, its aspect
// ratio matching the viewport.
func NewFrameState(camera Camera, viewportWidth, viewportHeight int) *FrameState {
	frustum := geometry.DefaultFrustum
	if viewportWidth > 0 && viewportHeight > 0 {
		frustum.AspectRatio = float64(viewportWidth) / float64(viewportHeight)
	}

	fs := &FrameState{
		Time:           time.Now(),
		Camera:         camera,
		Frustum:        frustum,
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
	}
	fs.ComputeCullingVolume()
	return fs
}

// ComputeCullingVolume sets the culling volume from the camera and the
// frustum.
func (fs *FrameState) ComputeCullingVolume() {
	fs.CullingVolume = fs.Frustum.CullingVolume(
		fs.Camera.Position,
		fs.Camera.Direction,
		fs.Camera.Up,
	)
}

// Occluders groups the bodies that can hide tiles from the camera. A nil
// occluder hides nothing.
type Occluders struct {
	Ellipsoid *geometry.Occluder
}

func NewOccluders(e geometry.Ellipsoid, cameraPosition r3.Vec) *Occluders {
	return &Occluders{
		Ellipsoid: geometry.NewEllipsoidOccluder(e, cameraPosition),
	}
}
