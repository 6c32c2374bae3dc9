package teams

import (
	"errors"
	"fmt"
)

// ErrUpstreamShape is returned when Bot Framework or Graph answers with a
// body that does not have the documented shape.
var ErrUpstreamShape = errors.New("unexpected upstream response shape")

// UpstreamError is a non-2xx answer from an upstream API.
type UpstreamError struct {
	Service string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Service, e.Status)
}
