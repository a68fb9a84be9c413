package callback

import (
	"errors"
	"fmt"
)

// ErrInvalidPortRange is returned when the configured port range is unusable.
var ErrInvalidPortRange = errors.New("invalid callback port range")

// ErrServerUsed is returned when Start is called on a server that was
// already started or stopped. A Server serves a single flow.
var ErrServerUsed = errors.New("callback server already used")

// PortExhaustionError is returned when no port in the range could be bound.
type PortExhaustionError struct {
	Low  int
	High int
}

// Error implements the error interface.
func (e *PortExhaustionError) Error() string {
	return fmt.Sprintf("no available ports found between %d and %d", e.Low, e.High)
}

// BindError is returned when a probed port could not be bound for real.
// It is retryable with the next port.
type BindError struct {
	Port int
	Err  error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind callback server on port %d: %v", e.Port, e.Err)
}

// Unwrap returns the underlying listen error.
func (e *BindError) Unwrap() error {
	return e.Err
}
