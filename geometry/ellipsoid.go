package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Ellipsoid is an ellipsoid centered at the origin with the given radii, in
// meters.
type Ellipsoid struct {
	Radii r3.Vec
}

// WGS84 is the World Geodetic System 1984 ellipsoid.
var WGS84 = Ellipsoid{Radii: r3.Vec{X: 6378137.0, Y: 6378137.0, Z: 6356752.3142451793}}

// UnitSphere is a sphere of radius 1.
var UnitSphere = Ellipsoid{Radii: r3.Vec{X: 1, Y: 1, Z: 1}}

func NewEllipsoid(x, y, z float64) Ellipsoid {
	return Ellipsoid{Radii: r3.Vec{X: x, Y: y, Z: z}}
}

func (e Ellipsoid) MaximumRadius() float64 {
	return math.Max(e.Radii.X, math.Max(e.Radii.Y, e.Radii.Z))
}

func (e Ellipsoid) MinimumRadius() float64 {
	return math.Min(e.Radii.X, math.Min(e.Radii.Y, e.Radii.Z))
}

func (e Ellipsoid) radiiSquared() r3.Vec {
	return MultiplyComponents(e.Radii, e.Radii)
}

// GeodeticSurfaceNormalCartographic returns the unit normal of the surface at
// the given longitude and latitude.
func (e Ellipsoid) GeodeticSurfaceNormalCartographic(c Cartographic) r3.Vec {
	cosLatitude := math.Cos(c.Latitude)
	return r3.Unit(r3.Vec{
		X: cosLatitude * math.Cos(c.Longitude),
		Y: cosLatitude * math.Sin(c.Longitude),
		Z: math.Sin(c.Latitude),
	})
}

// CartographicToCartesian converts a geodetic position to earth-fixed
// cartesian coordinates.
func (e Ellipsoid) CartographicToCartesian(c Cartographic) r3.Vec {
	n := e.GeodeticSurfaceNormalCartographic(c)
	k := MultiplyComponents(e.radiiSquared(), n)
	gamma := math.Sqrt(r3.Dot(n, k))
	k = r3.Scale(1/gamma, k)
	return r3.Add(k, r3.Scale(c.Height, n))
}

// Cartographic is a geodetic position. Longitude and latitude are in radians,
// height in meters above the ellipsoid.
type Cartographic struct {
	Longitude float64
	Latitude  float64
	Height    float64
}

func CartographicFromDegrees(longitude, latitude, height float64) Cartographic {
	return Cartographic{
		Longitude: longitude * math.Pi / 180,
		Latitude:  latitude * math.Pi / 180,
		Height:    height,
	}
}

func (c Cartographic) LongitudeDegrees() float64 {
	return c.Longitude * 180 / math.Pi
}

func (c Cartographic) LatitudeDegrees() float64 {
	return c.Latitude * 180 / math.Pi
}
