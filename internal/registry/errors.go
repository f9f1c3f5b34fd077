// internal/registry/errors.go
package registry

import "errors"

var (
	// ErrDuplicatePosition is returned when another target of the same user
	// already holds a position in the asset.
	ErrDuplicatePosition = errors.New("duplicate position")

	// ErrInvalidTarget is returned when a new target fails validation.
	ErrInvalidTarget = errors.New("invalid target")
)
