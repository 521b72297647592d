package xhub

import (
	"errors"
	"fmt"
)

var (
	// ErrBusClosed is returned by operations on a closed bus.
	ErrBusClosed = errors.New("xhub: bus is closed")
	// ErrInvalidTopic is returned for empty subscription or dispatch topics.
	ErrInvalidTopic = errors.New("xhub: topic must not be empty")
	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("xhub: handler must not be nil")
	// ErrNilEvent is returned when dispatching a nil event.
	ErrNilEvent = errors.New("xhub: event must not be nil")
	// ErrRateLimitConflict is returned when a subscription requests both
	// debounce and throttle; at most one may be set.
	ErrRateLimitConflict = errors.New("xhub: debounce and throttle are mutually exclusive")
	// ErrObserverPoolShutdownTimeout is returned when the observer pool
	// cannot drain within its close timeout.
	ErrObserverPoolShutdownTimeout = errors.New("xhub: observer pool shutdown timed out")
	// ErrCloseTimeout is returned when in-flight deliveries outlive the
	// close context.
	ErrCloseTimeout = errors.New("xhub: in-flight deliveries did not finish before timeout")
)

// ErrUnknownSource reports a source name with no registered factory.
type ErrUnknownSource struct{ name string }

func (e ErrUnknownSource) Error() string { return fmt.Sprintf("unknown source: %s", e.name) }

// InvocationError is the single adapter-level error kind wrapping failures
// of the handler body, carrying the handler name for log attribution.
// Cancellation is never wrapped into it.
type InvocationError struct {
	Handler  string
	Panicked bool
	Err      error
}

func (e *InvocationError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("xhub: handler %s panicked: %v", e.Handler, e.Err)
	}
	return fmt.Sprintf("xhub: handler %s failed: %v", e.Handler, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
