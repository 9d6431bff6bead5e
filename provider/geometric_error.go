package provider

import (
	"math"

	"github.com/adam-ce/cesium/tiling"
)

// ComputeDefaultLevelZeroMaximumGeometricError returns a geometric error for
// level-zero tiles that suits a 65x65 height map laid over each of them.
func ComputeDefaultLevelZeroMaximumGeometricError(s tiling.Scheme) float64 {
	return s.Ellipsoid().MaximumRadius() * 2 * math.Pi * 0.25 /
		(65 * float64(s.NumberOfXTilesAtLevel(0)))
}

// HalvingGeometricError returns the level-zero error halved once per level.
func HalvingGeometricError(levelZero float64, level int) float64 {
	return levelZero / math.Pow(2, float64(level))
}
