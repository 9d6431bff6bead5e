package featureflag

type Flag string

const (
	// Skips the horizon test so that only the frustum culls tiles.
	FlagDisableOcclusionCulling Flag = "DISABLE_OCCLUSION_CULLING"

	// Stops rendering the nearest ready ancestor in place of tiles that are
	// still loading or failed.
	FlagDisableAncestorStandIn Flag = "DISABLE_ANCESTOR_STANDIN"

	// Keeps every tile resident regardless of the tile cache size.
	FlagDisableTileTrimming Flag = "DISABLE_TILE_TRIMMING"

	// Starts every queued load in the frame it is queued.
	FlagDisableLoadBudget Flag = "DISABLE_LOAD_BUDGET"
)
