package inject

import (
	"reflect"
	"sync"
)

// Extractor pulls a raw value for one parameter out of an event. The second
// return reports presence: false means the event carries no value for this
// parameter, which injects a typed nil for optional parameters and fails the
// delivery otherwise.
type Extractor func(event any) (any, bool)

// Registry maps declared parameter types to extractors. The fallback, when
// set, serves every type without an explicit entry (typically "hand over the
// event payload and let the reconcile engine do the rest").
type Registry struct {
	mu       sync.RWMutex
	byType   map[reflect.Type]Extractor
	fallback Extractor
}

// NewRegistry returns an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[reflect.Type]Extractor)}
}

// Register binds an extractor to a declared parameter type.
func (r *Registry) Register(t reflect.Type, ex Extractor) {
	r.mu.Lock()
	r.byType[t] = ex
	r.mu.Unlock()
}

// RegisterFor is the type-safe form of Register.
func RegisterFor[T any](r *Registry, ex Extractor) {
	r.Register(reflect.TypeOf((*T)(nil)).Elem(), ex)
}

// SetFallback installs the extractor used for parameter types without an
// explicit entry.
func (r *Registry) SetFallback(ex Extractor) {
	r.mu.Lock()
	r.fallback = ex
	r.mu.Unlock()
}

// resolve returns the extractor for t, consulting explicit entries first.
// Pointer parameters fall back to their element type's entry so that
// optional parameters share extractors with their required form.
func (r *Registry) resolve(t reflect.Type) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ex, ok := r.byType[t]; ok {
		return ex, true
	}
	if t.Kind() == reflect.Pointer {
		if ex, ok := r.byType[t.Elem()]; ok {
			return ex, true
		}
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}
