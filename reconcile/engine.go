package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ErrNoConverter reports that no applicable converter exists for a pair of types.
var ErrNoConverter = errors.New("no converter registered")

// ConversionError wraps any failure to reconcile a value with its declared type.
type ConversionError struct {
	Value any
	Src   reflect.Type
	Dst   *Spec
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %v (%v) to %s: %v", e.Value, e.Src, e.Dst, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Engine answers whether a value structurally matches a declared Spec and
// converts it when it does not. Conversion of plain leaves is delegated to
// the Registry; containers, optionals and unions recurse.
type Engine struct {
	reg *Registry
}

// NewEngine returns an Engine backed by reg. A nil reg falls back to
// DefaultRegistry.
func NewEngine(reg *Registry) *Engine {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Engine{reg: reg}
}

// Registry exposes the engine's converter registry for further registration.
func (e *Engine) Registry() *Registry { return e.reg }

// Matches reports whether v already satisfies s without conversion. A true
// result guarantees v is assignable to s.Type (the fast path: inject as-is,
// no copy).
func (e *Engine) Matches(v any, s *Spec) bool {
	switch s.Op {
	case OpAny:
		return true

	case OpOptional:
		if v == nil {
			return true
		}
		rv := reflect.ValueOf(v)
		if rv.Type() != s.Type {
			return false
		}
		if rv.IsNil() {
			return true
		}
		return e.Matches(rv.Elem().Interface(), s.Elem)

	case OpUnion:
		for _, arm := range s.Arms {
			if e.Matches(v, arm) {
				return true
			}
		}
		return false

	case OpLiteral:
		for _, lit := range s.Literals {
			if reflect.DeepEqual(v, lit) {
				return true
			}
		}
		return false

	case OpLeaf:
		t := reflect.TypeOf(v)
		if t == nil {
			return false
		}
		if s.Type.Kind() == reflect.Interface {
			return t.Implements(s.Type)
		}
		return t.AssignableTo(s.Type)

	case OpSlice:
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || rv.Kind() != reflect.Slice || !rv.Type().AssignableTo(s.Type) {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if !e.Matches(rv.Index(i).Interface(), s.Elem) {
				return false
			}
		}
		return true

	case OpMap:
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || rv.Kind() != reflect.Map || !rv.Type().AssignableTo(s.Type) {
			return false
		}
		iter := rv.MapRange()
		for iter.Next() {
			if !e.Matches(iter.Key().Interface(), s.Key) {
				return false
			}
			if !e.Matches(iter.Value().Interface(), s.Value) {
				return false
			}
		}
		return true

	case OpTuple:
		rv := reflect.ValueOf(v)
		if !rv.IsValid() {
			return false
		}
		if s.Type.Kind() == reflect.Array {
			if rv.Type() != s.Type {
				return false
			}
		} else if rv.Kind() != reflect.Slice || !rv.Type().AssignableTo(s.Type) {
			return false
		}
		if rv.Len() != len(s.Arms) {
			return false
		}
		for i, arm := range s.Arms {
			if !e.Matches(rv.Index(i).Interface(), arm) {
				return false
			}
		}
		return true

	default:
		return false
	}
}

// Convert reconciles v with s, returning a value assignable to s.Type.
// Values that already match are returned unchanged.
func (e *Engine) Convert(v any, s *Spec) (any, error) {
	if e.Matches(v, s) {
		return v, nil
	}

	switch s.Op {
	case OpOptional:
		return e.convertOptional(v, s)
	case OpUnion:
		return e.convertUnion(v, s)
	case OpLiteral:
		// Literals are membership checks; no conversion is attempted.
		return nil, e.fail(v, s, fmt.Errorf("value is not one of the allowed literals"))
	case OpSlice:
		return e.convertSlice(v, s)
	case OpMap:
		return e.convertMap(v, s)
	case OpTuple:
		return e.convertTuple(v, s)
	case OpLeaf:
		return e.convertLeaf(v, s)
	default:
		return nil, e.fail(v, s, fmt.Errorf("unsupported spec op %s", s.Op))
	}
}

func (e *Engine) convertOptional(v any, s *Spec) (any, error) {
	if v == nil {
		return reflect.Zero(s.Type).Interface(), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(s.Type).Interface(), nil
		}
		v = rv.Elem().Interface()
	}
	inner, err := e.Convert(v, s.Elem)
	if err != nil {
		return nil, e.fail(v, s, err)
	}
	if inner == nil {
		return reflect.Zero(s.Type).Interface(), nil
	}
	p := reflect.New(s.Elem.Type)
	p.Elem().Set(reflect.ValueOf(inner))
	return p.Interface(), nil
}

func (e *Engine) convertUnion(v any, s *Spec) (any, error) {
	for _, arm := range s.Arms {
		out, err := e.Convert(v, arm)
		if err == nil {
			return out, nil
		}
	}
	return nil, e.fail(v, s, fmt.Errorf("no union arm accepts the value"))
}

func (e *Engine) convertSlice(v any, s *Spec) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, e.fail(v, s, fmt.Errorf("value is not a sequence"))
	}
	out := reflect.MakeSlice(s.Type, rv.Len(), rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, err := e.Convert(rv.Index(i).Interface(), s.Elem)
		if err != nil {
			return nil, e.fail(v, s, fmt.Errorf("element %d: %w", i, err))
		}
		out.Index(i).Set(reflect.ValueOf(ev))
	}
	return out.Interface(), nil
}

func (e *Engine) convertMap(v any, s *Spec) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return nil, e.fail(v, s, fmt.Errorf("value is not a map"))
	}
	out := reflect.MakeMapWithSize(s.Type, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := e.Convert(iter.Key().Interface(), s.Key)
		if err != nil {
			return nil, e.fail(v, s, fmt.Errorf("key %v: %w", iter.Key(), err))
		}
		val, err := e.Convert(iter.Value().Interface(), s.Value)
		if err != nil {
			return nil, e.fail(v, s, fmt.Errorf("value for %v: %w", iter.Key(), err))
		}
		out.SetMapIndex(reflect.ValueOf(k), reflect.ValueOf(val))
	}
	return out.Interface(), nil
}

func (e *Engine) convertTuple(v any, s *Spec) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, e.fail(v, s, fmt.Errorf("value is not a sequence"))
	}
	if rv.Len() != len(s.Arms) {
		return nil, e.fail(v, s, fmt.Errorf("arity mismatch: got %d, want %d", rv.Len(), len(s.Arms)))
	}
	var out reflect.Value
	if s.Type.Kind() == reflect.Array {
		out = reflect.New(s.Type).Elem()
	} else {
		out = reflect.MakeSlice(s.Type, rv.Len(), rv.Len())
	}
	for i, arm := range s.Arms {
		ev, err := e.Convert(rv.Index(i).Interface(), arm)
		if err != nil {
			return nil, e.fail(v, s, fmt.Errorf("element %d: %w", i, err))
		}
		out.Index(i).Set(reflect.ValueOf(ev))
	}
	return out.Interface(), nil
}

func (e *Engine) convertLeaf(v any, s *Spec) (any, error) {
	src := reflect.TypeOf(v)
	if src == nil {
		return nil, e.fail(v, s, fmt.Errorf("cannot convert nil"))
	}

	if out, err := e.reg.convert(v, src, s.Type); err == nil {
		return out, nil
	} else if !errors.Is(err, ErrNoConverter) {
		return nil, e.fail(v, s, err)
	}

	// Registered converters win; dereference a pointer source and retry.
	if src.Kind() == reflect.Pointer {
		rv := reflect.ValueOf(v)
		if !rv.IsNil() {
			return e.convertLeaf(rv.Elem().Interface(), s)
		}
	}

	// Numeric widening/narrowing without an explicit entry.
	if isNumeric(src) && isNumeric(s.Type) {
		return reflect.ValueOf(v).Convert(s.Type).Interface(), nil
	}

	// Loosely-typed records decode into declared structs; differently shaped
	// structs re-decode the same way, keyed by their JSON tags.
	if s.Type.Kind() == reflect.Struct && (src.Kind() == reflect.Map || src.Kind() == reflect.Struct) {
		return e.decodeStruct(v, s)
	}

	return nil, e.fail(v, s, ErrNoConverter)
}

// decodeStruct converts a generic map payload into a declared struct via a
// JSON round trip.
func (e *Engine) decodeStruct(v any, s *Spec) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, e.fail(v, s, err)
	}
	out := reflect.New(s.Type)
	if err := json.Unmarshal(raw, out.Interface()); err != nil {
		return nil, e.fail(v, s, err)
	}
	return out.Elem().Interface(), nil
}

func (e *Engine) fail(v any, s *Spec, err error) error {
	var ce *ConversionError
	if errors.As(err, &ce) && ce.Dst == s {
		return err
	}
	return &ConversionError{Value: v, Src: reflect.TypeOf(v), Dst: s, Err: err}
}

func isNumeric(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
