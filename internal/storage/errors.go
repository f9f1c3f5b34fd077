// internal/storage/errors.go
package storage

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a record with the same key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a conditional update finds the
	// record in a state other than the expected ones.
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// ConflictError is returned by ClaimForExecution when another target for the
// same (user, asset) already holds the position slot.
type ConflictError struct {
	HolderID     string
	HolderStatus domain.Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("position held by target %s (%s)", e.HolderID, e.HolderStatus)
}
