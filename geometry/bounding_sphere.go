package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// Number of samples per rectangle edge used to bound a rectangle.
const rectangleSamples = 5

type BoundingSphere struct {
	Center r3.Vec
	Radius float64
}

// BoundingSphereFromPoints returns a sphere centered on the bounding box of
// the points that contains all of them.
func BoundingSphereFromPoints(points []r3.Vec) BoundingSphere {
	if len(points) == 0 {
		return BoundingSphere{}
	}

	min := points[0]
	max := points[0]
	for _, p := range points[1:] {
		min = r3.Vec{X: math.Min(min.X, p.X), Y: math.Min(min.Y, p.Y), Z: math.Min(min.Z, p.Z)}
		max = r3.Vec{X: math.Max(max.X, p.X), Y: math.Max(max.Y, p.Y), Z: math.Max(max.Z, p.Z)}
	}

	center := r3.Scale(0.5, r3.Add(min, max))
	var radius float64
	for _, p := range points {
		radius = math.Max(radius, r3.Norm(r3.Sub(p, center)))
	}

	return BoundingSphere{Center: center, Radius: radius}
}

// BoundingSphereFromRectangle bounds the part of the ellipsoid surface covered
// by rect (degrees), between minHeight and maxHeight.
func BoundingSphereFromRectangle(e Ellipsoid, rect orb.Bound, minHeight, maxHeight float64) BoundingSphere {
	points := make([]r3.Vec, 0, rectangleSamples*rectangleSamples*2)

	for i := 0; i < rectangleSamples; i++ {
		lon := rect.Min.Lon() + (rect.Max.Lon()-rect.Min.Lon())*float64(i)/(rectangleSamples-1)
		for j := 0; j < rectangleSamples; j++ {
			lat := rect.Min.Lat() + (rect.Max.Lat()-rect.Min.Lat())*float64(j)/(rectangleSamples-1)

			points = append(points,
				e.CartographicToCartesian(CartographicFromDegrees(lon, lat, minHeight)),
				e.CartographicToCartesian(CartographicFromDegrees(lon, lat, maxHeight)),
			)
		}
	}

	return BoundingSphereFromPoints(points)
}

// DistanceTo returns the distance from p to the surface of the sphere, or 0
// when p is inside it.
func (s BoundingSphere) DistanceTo(p r3.Vec) float64 {
	return math.Max(0, r3.Norm(r3.Sub(s.Center, p))-s.Radius)
}
