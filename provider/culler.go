package provider

import (
	"math"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// SurfaceCuller computes tile visibility and distance from bounding spheres
// around the tile rectangles.
type SurfaceCuller struct {
	Ellipsoid     geometry.Ellipsoid
	MinimumHeight float64
	MaximumHeight float64
}

func (c SurfaceCuller) BoundingSphere(t *models.Tile) geometry.BoundingSphere {
	return geometry.BoundingSphereFromRectangle(
		c.Ellipsoid,
		t.Rectangle,
		c.MinimumHeight,
		c.MaximumHeight,
	)
}

// IsVisible reports whether s intersects the culling volume of the frame and
// is not hidden behind the occluders.
func (c SurfaceCuller) IsVisible(s geometry.BoundingSphere, fs *FrameState, occluders *Occluders) (bool, error) {
	if !validSphere(s) {
		return false, errors.New("invalid bounding sphere").
			WithType(ErrTypeVisibilityFailed).
			WithTag("radius", s.Radius)
	}

	if fs.CullingVolume.ComputeVisibility(s) == geometry.Outside {
		return false, nil
	}

	if occluders != nil && occluders.Ellipsoid != nil {
		return occluders.Ellipsoid.IsBoundingSphereVisible(s), nil
	}
	return true, nil
}

// Distance returns the distance from the camera to s.
func (c SurfaceCuller) Distance(s geometry.BoundingSphere, cameraPosition r3.Vec) (float64, error) {
	if !validSphere(s) {
		return 0, errors.New("invalid bounding sphere").
			WithType(ErrTypeVisibilityFailed).
			WithTag("radius", s.Radius)
	}
	return s.DistanceTo(cameraPosition), nil
}

func validSphere(s geometry.BoundingSphere) bool {
	return geometry.IsFinite(s.Center.X) &&
		geometry.IsFinite(s.Center.Y) &&
		geometry.IsFinite(s.Center.Z) &&
		geometry.IsFinite(s.Radius) &&
		!math.Signbit(s.Radius)
}
