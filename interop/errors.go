package interop

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType    = errors.New("unknown request type")
	ErrInvalidRequest = errors.New("invalid request")
	ErrMissingThread  = errors.New("request has no resolvable thread")
	ErrUnknownAction  = errors.New("no handler registered for action")
)

// InternalError marks failures of lookups that should never miss, such as
// the conversation reference of a thread the tab is running in.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal: %v", e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internal(err error) error {
	return &InternalError{Err: err}
}
