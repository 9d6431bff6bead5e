package provider

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeNotReady           = "provider_not_ready"
	ErrTypeDestroyed          = "provider_destroyed"
	ErrTypeQuadtreeAlreadySet = "quadtree_already_set"
	ErrTypeTileLoadFailed     = "tile_load_failed"
	ErrTypeVisibilityFailed   = "visibility_failed"
)

// IsPrecondition reports whether err is a misuse of the provider lifecycle.
func IsPrecondition(err error) bool {
	return errors.IsType(err, ErrTypeNotReady) ||
		errors.IsType(err, ErrTypeDestroyed) ||
		errors.IsType(err, ErrTypeQuadtreeAlreadySet)
}
