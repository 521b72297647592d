package xhub

import (
	"fmt"
	"strings"
	"time"

	"github.com/trickstertwo/xhub/reconcile"
)

// Event is the envelope traveling the bus. Immutable once dispatched; the
// bus normalizes a copy rather than mutating the caller's value.
type Event struct {
	// Topic is the dot-delimited routing destination.
	Topic string
	// ID is a unique event identifier (sources may assign if empty).
	ID string
	// Payload is the event body: a StateChange, a Status, or any other value.
	Payload any
	// Time is the production timestamp (from the injected clock when unset).
	Time time.Time
	// Meta is a bag for headers/tracing/tenancy/etc.
	Meta map[string]string
}

// NewEvent constructs an event for topic with the given payload.
func NewEvent(topic string, payload any) *Event {
	return &Event{Topic: topic, Payload: payload}
}

// EntityID identifies a single entity as "<domain>.<name>", e.g. "light.kitchen".
type EntityID struct {
	Domain string
	Name   string
}

// ParseEntityID splits "<domain>.<name>" into an EntityID.
func ParseEntityID(s string) (EntityID, error) {
	domain, name, ok := strings.Cut(s, ".")
	if !ok || domain == "" || name == "" {
		return EntityID{}, fmt.Errorf("xhub: %q is not a <domain>.<name> entity id", s)
	}
	return EntityID{Domain: domain, Name: name}, nil
}

func (id EntityID) String() string { return id.Domain + "." + id.Name }

// IsZero reports whether the id is missing either segment.
func (id EntityID) IsZero() bool { return id.Domain == "" || id.Name == "" }

// EntityBearer marks payloads carrying an entity reference; the dispatcher
// expands their topics into entity- and domain-specific sub-routes and runs
// them through the exclusion filter.
type EntityBearer interface {
	EntityRef() EntityID
}

// State is the loosely-typed state record carried by externally sourced
// state-change events. Attributes stay generic until a handler asks for a
// concrete type.
type State struct {
	Value       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed,omitempty"`
}

// StateChange is the generic state-change payload: Old and New carry raw
// records (maps or State values) until parameter injection specializes them.
type StateChange struct {
	Entity EntityID
	Old    any
	New    any
}

// EntityRef implements EntityBearer.
func (sc StateChange) EntityRef() EntityID { return sc.Entity }

// TypedStateChange is a state change specialized to a concrete sub-state
// type. Absent old/new states are nil.
type TypedStateChange[T any] struct {
	Entity EntityID
	Old    *T
	New    *T
}

// EntityRef implements EntityBearer.
func (tc TypedStateChange[T]) EntityRef() EntityID { return tc.Entity }

// Status is the generic record for internally generated lifecycle and
// scheduler events.
type Status struct {
	Source string         `json:"source"`
	Kind   string         `json:"kind"`
	Level  string         `json:"level,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// RegisterStateType registers the StateChange -> TypedStateChange[T]
// conversion on reg: the payload is rebuilt with its old and new values
// individually reconciled to T. Handlers may then declare a
// TypedStateChange[T] parameter and receive it fully converted.
func RegisterStateType[T any](reg *reconcile.Registry) {
	eng := reconcile.NewEngine(reg)
	spec := reconcile.Optional(reconcile.LeafOf[T]())

	reconcile.Register(reg, func(sc StateChange) (TypedStateChange[T], error) {
		out := TypedStateChange[T]{Entity: sc.Entity}

		old, err := eng.Convert(sc.Old, spec)
		if err != nil {
			return out, fmt.Errorf("old state: %w", err)
		}
		if p, ok := old.(*T); ok {
			out.Old = p
		}

		next, err := eng.Convert(sc.New, spec)
		if err != nil {
			return out, fmt.Errorf("new state: %w", err)
		}
		if p, ok := next.(*T); ok {
			out.New = p
		}
		return out, nil
	})
}
