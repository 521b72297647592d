package xhub

import "reflect"

// Predicate filters delivery after topic matching. Predicates must be pure
// and fast; they run on the dispatch path.
type Predicate func(ev *Event) bool

// And combines predicates; all must pass. Where(...) applies this to
// predicate sequences implicitly.
func And(preds ...Predicate) Predicate {
	return func(ev *Event) bool {
		for _, p := range preds {
			if p != nil && !p(ev) {
				return false
			}
		}
		return true
	}
}

// Or passes when any predicate passes.
func Or(preds ...Predicate) Predicate {
	return func(ev *Event) bool {
		for _, p := range preds {
			if p != nil && p(ev) {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(ev *Event) bool { return !p(ev) }
}

// ForEntity passes for events whose payload bears one of the given entity
// ids. Ids may contain glob metacharacters ("light.*").
func ForEntity(ids ...string) Predicate {
	return func(ev *Event) bool {
		eb, ok := ev.Payload.(EntityBearer)
		if !ok {
			return false
		}
		entity := eb.EntityRef().String()
		for _, id := range ids {
			if matchPattern(id, entity) {
				return true
			}
		}
		return false
	}
}

// ForDomain passes for events whose payload bears an entity in one of the
// given domains.
func ForDomain(domains ...string) Predicate {
	return func(ev *Event) bool {
		eb, ok := ev.Payload.(EntityBearer)
		if !ok {
			return false
		}
		domain := eb.EntityRef().Domain
		for _, d := range domains {
			if d == domain {
				return true
			}
		}
		return false
	}
}

// ToState passes when a state-change event's new state value is one of the
// given values.
func ToState(values ...string) Predicate {
	return func(ev *Event) bool {
		sc, ok := ev.Payload.(StateChange)
		if !ok {
			return false
		}
		v, ok := stateValue(sc.New)
		return ok && containsString(values, v)
	}
}

// FromState passes when a state-change event's old state value is one of
// the given values.
func FromState(values ...string) Predicate {
	return func(ev *Event) bool {
		sc, ok := ev.Payload.(StateChange)
		if !ok {
			return false
		}
		v, ok := stateValue(sc.Old)
		return ok && containsString(values, v)
	}
}

// StateChangedOnly drops state-change events whose state value did not
// actually change (attribute-only updates).
func StateChangedOnly() Predicate {
	return func(ev *Event) bool {
		sc, ok := ev.Payload.(StateChange)
		if !ok {
			return true
		}
		oldV, okOld := stateValue(sc.Old)
		newV, okNew := stateValue(sc.New)
		if !okOld || !okNew {
			return true
		}
		return oldV != newV
	}
}

// AttrEquals passes when the new state's attribute key equals want.
func AttrEquals(key string, want any) Predicate {
	return func(ev *Event) bool {
		sc, ok := ev.Payload.(StateChange)
		if !ok {
			return false
		}
		attrs, ok := stateAttributes(sc.New)
		if !ok {
			return false
		}
		got, ok := attrs[key]
		return ok && reflect.DeepEqual(got, want)
	}
}

// stateValue reads the state value out of a raw state record: a State, a
// *State, or a generic map with a "state" key.
func stateValue(raw any) (string, bool) {
	switch s := raw.(type) {
	case State:
		return s.Value, true
	case *State:
		if s == nil {
			return "", false
		}
		return s.Value, true
	case map[string]any:
		v, ok := s["state"].(string)
		return v, ok
	default:
		return "", false
	}
}

func stateAttributes(raw any) (map[string]any, bool) {
	switch s := raw.(type) {
	case State:
		return s.Attributes, s.Attributes != nil
	case *State:
		if s == nil || s.Attributes == nil {
			return nil, false
		}
		return s.Attributes, true
	case map[string]any:
		attrs, ok := s["attributes"].(map[string]any)
		return attrs, ok
	default:
		return nil, false
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
