package reconcile

import (
	"fmt"
	"reflect"
	"strings"
)

// Op identifies the matching/conversion strategy of a Spec node.
type Op int

const (
	// OpAny accepts every value unchanged.
	OpAny Op = iota
	// OpLeaf is a plain non-parameterized type; conversion goes through the Registry.
	OpLeaf
	// OpOptional wraps an element Spec; absent values become a typed nil pointer.
	OpOptional
	// OpUnion accepts any of its arms; conversion tries arms in declared order.
	OpUnion
	// OpLiteral accepts only the enumerated values and never converts.
	OpLiteral
	// OpSlice is a homogeneous variadic-arity container.
	OpSlice
	// OpMap is a key/value container.
	OpMap
	// OpTuple is a fixed-arity container with per-index element Specs.
	OpTuple
)

func (o Op) String() string {
	switch o {
	case OpAny:
		return "any"
	case OpLeaf:
		return "leaf"
	case OpOptional:
		return "optional"
	case OpUnion:
		return "union"
	case OpLiteral:
		return "literal"
	case OpSlice:
		return "slice"
	case OpMap:
		return "map"
	case OpTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Spec is the declared-type variant. Build once, treat as immutable.
type Spec struct {
	Op   Op
	Type reflect.Type // concrete Go type a successful conversion yields

	Elem     *Spec   // OpOptional, OpSlice
	Key      *Spec   // OpMap
	Value    *Spec   // OpMap
	Arms     []*Spec // OpUnion (declared order), OpTuple (per index)
	Literals []any   // OpLiteral
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// Any returns the Spec that matches every value.
func Any() *Spec { return &Spec{Op: OpAny, Type: anyType} }

// Leaf returns a leaf Spec for t.
func Leaf(t reflect.Type) *Spec { return &Spec{Op: OpLeaf, Type: t} }

// LeafOf is the generic convenience form of Leaf.
func LeafOf[T any]() *Spec { return Leaf(reflect.TypeOf((*T)(nil)).Elem()) }

// Optional wraps elem; the Go representation is *elem.
func Optional(elem *Spec) *Spec {
	return &Spec{Op: OpOptional, Type: reflect.PointerTo(elem.Type), Elem: elem}
}

// Union returns a Spec accepting any of the arms, tried in declared order.
func Union(arms ...*Spec) *Spec {
	return &Spec{Op: OpUnion, Type: anyType, Arms: arms}
}

// Literal returns a Spec accepting exactly the given values.
func Literal(values ...any) *Spec {
	t := anyType
	if len(values) > 0 && values[0] != nil {
		t = reflect.TypeOf(values[0])
	}
	return &Spec{Op: OpLiteral, Type: t, Literals: values}
}

// SliceOf returns a homogeneous slice Spec.
func SliceOf(elem *Spec) *Spec {
	return &Spec{Op: OpSlice, Type: reflect.SliceOf(elem.Type), Elem: elem}
}

// MapOf returns a map Spec with the given key and value Specs.
func MapOf(key, value *Spec) *Spec {
	return &Spec{Op: OpMap, Type: reflect.MapOf(key.Type, value.Type), Key: key, Value: value}
}

// Tuple returns a fixed-arity Spec; the Go representation is []any of that length.
func Tuple(elems ...*Spec) *Spec {
	return &Spec{Op: OpTuple, Type: reflect.SliceOf(anyType), Arms: elems}
}

// FromType derives a Spec from a Go type. Interfaces with no methods become
// Any, pointers become Optional, slices/maps/arrays become containers and
// everything else is a leaf. Called once per declared parameter at
// registration time.
func FromType(t reflect.Type) *Spec {
	switch {
	case t == anyType:
		return Any()
	case t.Kind() == reflect.Pointer:
		return Optional(FromType(t.Elem()))
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
		s := SliceOf(FromType(t.Elem()))
		s.Type = t // preserve named slice types
		return s
	case t.Kind() == reflect.Map:
		s := MapOf(FromType(t.Key()), FromType(t.Elem()))
		s.Type = t
		return s
	case t.Kind() == reflect.Array:
		arms := make([]*Spec, t.Len())
		elem := FromType(t.Elem())
		for i := range arms {
			arms[i] = elem
		}
		return &Spec{Op: OpTuple, Type: t, Arms: arms}
	default:
		return Leaf(t)
	}
}

// String renders the Spec for error messages.
func (s *Spec) String() string {
	if s == nil {
		return "<nil>"
	}
	switch s.Op {
	case OpAny:
		return "any"
	case OpLeaf:
		return s.Type.String()
	case OpOptional:
		return "*" + s.Elem.String()
	case OpUnion:
		parts := make([]string, len(s.Arms))
		for i, a := range s.Arms {
			parts[i] = a.String()
		}
		return "union(" + strings.Join(parts, "|") + ")"
	case OpLiteral:
		return fmt.Sprintf("literal%v", s.Literals)
	case OpSlice:
		return "[]" + s.Elem.String()
	case OpMap:
		return "map[" + s.Key.String() + "]" + s.Value.String()
	case OpTuple:
		parts := make([]string, len(s.Arms))
		for i, a := range s.Arms {
			parts[i] = a.String()
		}
		return "tuple(" + strings.Join(parts, ",") + ")"
	default:
		return s.Type.String()
	}
}
