package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

type Intersect int

const (
	Outside Intersect = iota
	Intersecting
	Inside
)

func (i Intersect) String() string {
	switch i {
	case Outside:
		return "outside"
	case Intersecting:
		return "intersecting"
	case Inside:
		return "inside"
	default:
		return "unknown"
	}
}

// Plane in Hessian normal form. Points p with Normal·p + Distance > 0 are on
// the side the normal points to.
type Plane struct {
	Normal   r3.Vec
	Distance float64
}

func PlaneFromPointNormal(point r3.Vec, normal r3.Vec) Plane {
	normal = r3.Unit(normal)
	return Plane{Normal: normal, Distance: -r3.Dot(normal, point)}
}

func (p Plane) SignedDistance(point r3.Vec) float64 {
	return r3.Dot(p.Normal, point) + p.Distance
}

// CullingVolume is a set of planes with normals pointing inward.
type CullingVolume struct {
	Planes []Plane
}

func (cv CullingVolume) IsEmpty() bool {
	return len(cv.Planes) == 0
}

func (cv CullingVolume) ComputeVisibility(s BoundingSphere) Intersect {
	result := Inside
	for _, plane := range cv.Planes {
		d := plane.SignedDistance(s.Center)
		if d < -s.Radius {
			return Outside
		}
		if d < s.Radius {
			result = Intersecting
		}
	}
	return result
}

// PerspectiveFrustum describes a symmetric perspective projection. Fovy is
// the vertical field of view in radians.
type PerspectiveFrustum struct {
	Fovy        float64
	AspectRatio float64
	Near        float64
	Far         float64
}

// DefaultFrustum is a 60 degrees frustum reaching past the far side of the
// earth.
var DefaultFrustum = PerspectiveFrustum{
	Fovy:        math.Pi / 3,
	AspectRatio: 16.0 / 9.0,
	Near:        1,
	Far:         5e8,
}

// SSEDenominator is the divisor that projects a size at distance 1 to the
// viewport height.
func (f PerspectiveFrustum) SSEDenominator() float64 {
	return 2 * math.Tan(f.Fovy/2)
}

// CullingVolume returns the six planes of the frustum placed at position and
// oriented along direction and up.
func (f PerspectiveFrustum) CullingVolume(position, direction, up r3.Vec) CullingVolume {
	direction = r3.Unit(direction)
	up = r3.Unit(up)
	right := r3.Unit(r3.Cross(direction, up))

	t := f.Near * math.Tan(f.Fovy/2)
	r := t * f.AspectRatio

	nearCenter := r3.Scale(f.Near, direction)
	farCenter := r3.Add(position, r3.Scale(f.Far, direction))

	leftEdge := r3.Sub(nearCenter, r3.Scale(r, right))
	rightEdge := r3.Add(nearCenter, r3.Scale(r, right))
	bottomEdge := r3.Sub(nearCenter, r3.Scale(t, up))
	topEdge := r3.Add(nearCenter, r3.Scale(t, up))

	return CullingVolume{Planes: []Plane{
		PlaneFromPointNormal(position, r3.Cross(leftEdge, up)),
		PlaneFromPointNormal(position, r3.Cross(up, rightEdge)),
		PlaneFromPointNormal(position, r3.Cross(right, bottomEdge)),
		PlaneFromPointNormal(position, r3.Cross(topEdge, right)),
		PlaneFromPointNormal(r3.Add(position, nearCenter), direction),
		PlaneFromPointNormal(farCenter, r3.Scale(-1, direction)),
	}}
}
