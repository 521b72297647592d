package reconcile

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"
)

// ConvertFunc converts a single value. Implementations report failure via
// the returned error; they must not panic.
type ConvertFunc func(v any) (any, error)

type convPair struct {
	src, dst reflect.Type
}

type convEntry struct {
	fn ConvertFunc
	// failures enumerates the error values this converter is expected to
	// return; anything else is reported as an unexpected converter error.
	failures []error
	// format, when set, templates the ConversionError message with the
	// offending value.
	format string
}

// RegisterOption configures a converter entry.
type RegisterOption func(*convEntry)

// WithFailures declares the sentinel errors a converter may return.
func WithFailures(errs ...error) RegisterOption {
	return func(e *convEntry) { e.failures = append(e.failures, errs...) }
}

// WithErrFormat sets a message template applied to the offending value on
// failure, e.g. "%v is not a valid duration".
func WithErrFormat(format string) RegisterOption {
	return func(e *convEntry) { e.format = format }
}

// Registry holds explicitly registered leaf converters keyed by
// (source, target) type. Safe for concurrent use; construct one at process
// start and pass it into the Engine by reference.
type Registry struct {
	mu      sync.RWMutex
	entries map[convPair]convEntry
}

// NewRegistry returns an empty converter registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[convPair]convEntry)}
}

// RegisterFunc registers a converter from src to dst.
func (r *Registry) RegisterFunc(src, dst reflect.Type, fn ConvertFunc, opts ...RegisterOption) {
	e := convEntry{fn: fn}
	for _, opt := range opts {
		opt(&e)
	}
	r.mu.Lock()
	r.entries[convPair{src: src, dst: dst}] = e
	r.mu.Unlock()
}

// Register is the type-safe form of RegisterFunc.
func Register[S, D any](r *Registry, fn func(S) (D, error), opts ...RegisterOption) {
	src := reflect.TypeOf((*S)(nil)).Elem()
	dst := reflect.TypeOf((*D)(nil)).Elem()
	r.RegisterFunc(src, dst, func(v any) (any, error) {
		s, ok := v.(S)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not %s", ErrNoConverter, v, src)
		}
		return fn(s)
	}, opts...)
}

func (r *Registry) lookup(src, dst reflect.Type) (convEntry, bool) {
	r.mu.RLock()
	e, ok := r.entries[convPair{src: src, dst: dst}]
	r.mu.RUnlock()
	return e, ok
}

// convert applies the registered converter for (src, dst), wrapping failures
// per the entry's declared failure modes and message template.
func (r *Registry) convert(v any, src, dst reflect.Type) (any, error) {
	e, ok := r.lookup(src, dst)
	if !ok {
		return nil, ErrNoConverter
	}
	out, err := e.fn(v)
	if err == nil {
		return out, nil
	}
	if len(e.failures) > 0 {
		expected := false
		for _, f := range e.failures {
			if errors.Is(err, f) {
				expected = true
				break
			}
		}
		if !expected {
			return nil, fmt.Errorf("converter %s->%s returned unexpected error: %w", src, dst, err)
		}
	}
	if e.format != "" {
		return nil, fmt.Errorf(e.format+": %w", v, err)
	}
	return nil, err
}

// DefaultRegistry returns a registry pre-loaded with the common leaf
// conversions used by loosely-typed event payloads (string-encoded scalars,
// RFC 3339 timestamps, durations).
func DefaultRegistry() *Registry {
	r := NewRegistry()

	Register(r, func(s string) (int, error) {
		return strconv.Atoi(s)
	}, WithErrFormat("%v is not a valid integer"))

	Register(r, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	}, WithErrFormat("%v is not a valid integer"))

	Register(r, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, WithErrFormat("%v is not a valid number"))

	Register(r, func(s string) (bool, error) {
		switch s {
		case "on", "true", "yes":
			return true, nil
		case "off", "false", "no":
			return false, nil
		}
		return strconv.ParseBool(s)
	}, WithErrFormat("%v is not a valid boolean"))

	Register(r, func(s string) (time.Time, error) {
		return time.Parse(time.RFC3339, s)
	}, WithErrFormat("%v is not an RFC 3339 timestamp"))

	Register(r, func(s string) (time.Duration, error) {
		return time.ParseDuration(s)
	}, WithErrFormat("%v is not a valid duration"))

	Register(r, func(f float64) (int, error) {
		return int(f), nil
	})

	Register(r, func(i int) (float64, error) {
		return float64(i), nil
	})

	return r
}
