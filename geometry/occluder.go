package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Occluder is a sphere that hides what is behind it as seen from a camera.
// The globe is approximated by a sphere of its minimum radius at the origin.
type Occluder struct {
	Position       r3.Vec
	Radius         float64
	cameraPosition r3.Vec
	horizon        float64
}

func NewOccluder(position r3.Vec, radius float64, cameraPosition r3.Vec) *Occluder {
	o := &Occluder{
		Position: position,
		Radius:   radius,
	}
	o.SetCameraPosition(cameraPosition)
	return o
}

// NewEllipsoidOccluder returns the horizon occluder of e seen from
// cameraPosition.
func NewEllipsoidOccluder(e Ellipsoid, cameraPosition r3.Vec) *Occluder {
	return NewOccluder(r3.Vec{}, e.MinimumRadius(), cameraPosition)
}

func (o *Occluder) SetCameraPosition(cameraPosition r3.Vec) {
	o.cameraPosition = cameraPosition

	d2 := r3.Norm2(r3.Sub(cameraPosition, o.Position))
	r2 := o.Radius * o.Radius
	if d2 > r2 {
		o.horizon = math.Sqrt(d2 - r2)
	} else {
		// Inside the occluder everything is visible.
		o.horizon = math.MaxFloat64
	}
}

func (o *Occluder) CameraPosition() r3.Vec {
	return o.cameraPosition
}

// IsBoundingSphereVisible reports whether any part of s can be seen past the
// occluder.
func (o *Occluder) IsBoundingSphereVisible(s BoundingSphere) bool {
	if o.horizon == math.MaxFloat64 {
		return true
	}

	occludeeRadius2 := s.Radius * s.Radius
	toOccluder := r3.Sub(o.Position, s.Center)
	dr := o.Radius - s.Radius
	tangent := r3.Norm2(toOccluder) - dr*dr

	toCamera2 := r3.Norm2(r3.Sub(o.cameraPosition, s.Center))

	if o.Radius > s.Radius {
		if tangent > 0 {
			t := math.Sqrt(tangent) + o.horizon
			return t*t+occludeeRadius2 > toCamera2
		}
		return false
	}

	if tangent > 0 {
		occluderRadius2 := o.Radius * o.Radius
		if (o.horizon*o.horizon+occluderRadius2)*occludeeRadius2 > toCamera2*occluderRadius2 {
			return true
		}
		t := math.Sqrt(tangent) + o.horizon
		return t*t+occludeeRadius2 > toCamera2
	}

	// The occludee contains the occluder.
	return true
}
