package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float64, min float64, max float64, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

func VecEqualWithEpsilon(v1 r3.Vec, v2 r3.Vec, epsilon float64) bool {
	return EqualWithEpsilon(v1.X, v2.X, epsilon) &&
		EqualWithEpsilon(v1.Y, v2.Y, epsilon) &&
		EqualWithEpsilon(v1.Z, v2.Z, epsilon)
}

// MultiplyComponents returns the component-wise product of a and b.
func MultiplyComponents(a r3.Vec, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

// DivideComponents returns the component-wise quotient of a and b.
func DivideComponents(a r3.Vec, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X / b.X, Y: a.Y / b.Y, Z: a.Z / b.Z}
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LookAt returns the view direction from eye to target and an up vector
// orthogonal to it. The up hint is used when it is not parallel to the
// direction; otherwise a world axis is picked.
func LookAt(eye r3.Vec, target r3.Vec, upHint r3.Vec) (direction r3.Vec, up r3.Vec) {
	direction = r3.Unit(r3.Sub(target, eye))

	right := r3.Cross(direction, upHint)
	if r3.Norm(right) < 1e-9 {
		right = r3.Cross(direction, r3.Vec{Z: 1})
		if r3.Norm(right) < 1e-9 {
			right = r3.Cross(direction, r3.Vec{Y: 1})
		}
	}
	right = r3.Unit(right)
	up = r3.Unit(r3.Cross(right, direction))
	return direction, up
}
