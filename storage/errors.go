package storage

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidScope = errors.New("invalid scope")
	ErrMissingID    = errors.New("scope entity id is required")
	// ErrConflict matches every ConflictError via errors.Is.
	ErrConflict = errors.New("version conflict")
)

// ConflictError rejects a single key whose expected version is stale.
type ConflictError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on key %q: expected %q, current %q", e.Key, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
