package quadtree

import (
	"github.com/adam-ce/cesium/featureflag"
	"github.com/adam-ce/cesium/models"
)

const (
	DefaultName                    = "quadtree"
	DefaultMaximumScreenSpaceError = 2
	DefaultLoadBudget              = 10
	DefaultMaximumLevel            = 30
	DefaultTileCacheSize           = 100
)

// Options configures an engine. Zero values are replaced by the defaults,
// except for MaximumLevel which is only defaulted when nil.
type Options struct {
	// The name that labels logs and metrics.
	Name string

	// The screen-space error, in pixels, above which tiles are refined.
	MaximumScreenSpaceError float64

	// The number of new tile loads that can start in a frame.
	LoadBudget int

	// The deepest level tiles are refined to. A level of 0 renders the root
	// tiles only.
	MaximumLevel *int

	// The number of resident tiles above which tiles that were not visited
	// in the current frame are trimmed.
	TileCacheSize int

	// Decides when failed tiles can be loaded again. Failed tiles are retried
	// every frame they are selected when nil.
	RetryPolicy RetryPolicy

	FeatureFlags featureflag.FeatureFlag
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.MaximumScreenSpaceError <= 0 {
		o.MaximumScreenSpaceError = DefaultMaximumScreenSpaceError
	}
	if o.LoadBudget <= 0 {
		o.LoadBudget = DefaultLoadBudget
	}
	if o.MaximumLevel == nil || *o.MaximumLevel < 0 {
		o.MaximumLevel = MaxLevel(DefaultMaximumLevel)
	}
	if o.TileCacheSize <= 0 {
		o.TileCacheSize = DefaultTileCacheSize
	}
	if o.RetryPolicy == nil {
		o.RetryPolicy = RetryEveryFrame{}
	}
	if o.FeatureFlags == nil {
		o.FeatureFlags = featureflag.New(nil)
	}
	return o
}

// MaxLevel returns a maximum level to set in Options.
func MaxLevel(level int) *int {
	return &level
}

// RetryPolicy is the interface that decides whether a failed tile can start
// loading again in the given frame.
type RetryPolicy interface {
	// Due reports whether t is eligible for another attempt in frame. It
	// must not have side effects since it is also called for tiles that the
	// load budget defers.
	Due(tile *models.Tile, frame uint64) bool

	// Allow is called right before a failed tile starts loading again and
	// reports whether the attempt can start. Unlike Due, it can consume
	// shared resources such as rate limiter tokens.
	Allow(tile *models.Tile, frame uint64) bool
}

// RetryEveryFrame allows failed tiles to be retried in every frame.
type RetryEveryFrame struct{}

func (RetryEveryFrame) Due(*models.Tile, uint64) bool {
	return true
}

func (RetryEveryFrame) Allow(*models.Tile, uint64) bool {
	return true
}
