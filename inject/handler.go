package inject

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/trickstertwo/xhub/reconcile"
)

// Kwargs carries the caller-supplied keyword arguments of a subscription.
// A handler opts in by declaring a parameter of exactly this type; it is
// never confused with a payload-typed map parameter.
type Kwargs map[string]any

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType    = reflect.TypeOf((*error)(nil)).Elem()
	kwargsType = reflect.TypeOf(Kwargs(nil))
)

// ParamDescriptor binds one handler parameter to its extraction and
// conversion strategy. Computed once at registration; immutable thereafter.
type ParamDescriptor struct {
	Name    string
	Index   int // position in the handler's argument list
	Type    reflect.Type
	Spec    *reconcile.Spec
	Extract Extractor
	Convert reconcile.ConvertFunc // optional per-parameter override
}

// Handler is a compiled subscriber callback: the function plus the
// descriptor list derived from its signature.
type Handler struct {
	name      string
	fn        reflect.Value
	numIn     int
	hasCtx    bool
	hasErr    bool
	kwargsIdx int
	params    []ParamDescriptor
	engine    *reconcile.Engine
}

// Name returns the handler's name for log attribution.
func (h *Handler) Name() string { return h.name }

// Params exposes the compiled descriptors.
func (h *Handler) Params() []ParamDescriptor { return h.params }

type compileOpts struct {
	name      string
	overrides map[int]paramOverride
}

type paramOverride struct {
	extract Extractor
	spec    *reconcile.Spec
	convert reconcile.ConvertFunc
}

// Option configures Compile.
type Option func(*compileOpts)

// WithName overrides the handler name derived from the function symbol.
func WithName(name string) Option {
	return func(o *compileOpts) { o.name = name }
}

// WithParamExtractor overrides the extractor for the i-th injected parameter
// (counting declared parameters, excluding context and Kwargs).
func WithParamExtractor(i int, ex Extractor) Option {
	return func(o *compileOpts) {
		ov := o.overrides[i]
		ov.extract = ex
		o.overrides[i] = ov
	}
}

// WithParamSpec overrides the declared-type Spec for the i-th injected
// parameter, e.g. to narrow an `any` parameter to a union or literal.
func WithParamSpec(i int, s *reconcile.Spec) Option {
	return func(o *compileOpts) {
		ov := o.overrides[i]
		ov.spec = s
		o.overrides[i] = ov
	}
}

// WithParamConverter overrides the converter for the i-th injected parameter.
func WithParamConverter(i int, fn reconcile.ConvertFunc) Option {
	return func(o *compileOpts) {
		ov := o.overrides[i]
		ov.convert = fn
		o.overrides[i] = ov
	}
}

// Compile inspects fn's signature once and builds the descriptor list.
//
// Accepted shapes: an optional leading context.Context, any number of
// injected parameters, at most one Kwargs parameter, and an optional error
// result. Variadic functions are rejected: injected values are bound to
// declared parameters, never to an open-ended tail.
func Compile(fn any, reg *Registry, eng *reconcile.Engine, opts ...Option) (*Handler, error) {
	o := compileOpts{overrides: make(map[int]paramOverride)}
	for _, opt := range opts {
		opt(&o)
	}

	rv := reflect.ValueOf(fn)
	name := o.name
	if name == "" {
		name = funcName(rv)
	}
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, &SignatureError{Handler: name, Reason: "handler must be a non-nil function"}
	}

	ft := rv.Type()
	if ft.IsVariadic() {
		return nil, &SignatureError{Handler: name, Reason: "variadic handlers cannot receive injected parameters"}
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errType {
			return nil, &SignatureError{Handler: name, Reason: "result must be error"}
		}
	default:
		return nil, &SignatureError{Handler: name, Reason: "at most one result (error) is allowed"}
	}

	h := &Handler{
		name:      name,
		fn:        rv,
		numIn:     ft.NumIn(),
		hasErr:    ft.NumOut() == 1,
		kwargsIdx: -1,
		engine:    eng,
	}

	start := 0
	if ft.NumIn() > 0 && ft.In(0) == ctxType {
		h.hasCtx = true
		start = 1
	}

	injected := 0
	for i := start; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		if pt == ctxType {
			return nil, &SignatureError{Handler: name, Reason: "context.Context is only accepted as the first parameter"}
		}
		if pt == kwargsType {
			if h.kwargsIdx >= 0 {
				return nil, &SignatureError{Handler: name, Reason: "at most one Kwargs parameter is allowed"}
			}
			h.kwargsIdx = i
			continue
		}

		ov := o.overrides[injected]
		spec := ov.spec
		if spec == nil {
			spec = reconcile.FromType(pt)
		}
		ex := ov.extract
		if ex == nil {
			var ok bool
			ex, ok = reg.resolve(pt)
			if !ok {
				return nil, &SignatureError{
					Handler: name,
					Reason:  fmt.Sprintf("no extractor for parameter %d (%s)", i, pt),
				}
			}
		}
		h.params = append(h.params, ParamDescriptor{
			Name:    fmt.Sprintf("arg%d", i),
			Index:   i,
			Type:    pt,
			Spec:    spec,
			Extract: ex,
			Convert: ov.convert,
		})
		injected++
	}

	return h, nil
}

// Call extracts, reconciles and injects every parameter, then invokes the
// handler. Extraction and conversion failures are returned before the
// handler body ever runs. Panics inside the handler propagate to the caller.
func (h *Handler) Call(ctx context.Context, event any, kwargs map[string]any) error {
	args := make([]reflect.Value, h.numIn)
	if h.hasCtx {
		args[0] = reflect.ValueOf(ctx)
	}
	if h.kwargsIdx >= 0 {
		kw := Kwargs(kwargs)
		if kw == nil {
			kw = Kwargs{}
		}
		args[h.kwargsIdx] = reflect.ValueOf(kw)
	}

	for i := range h.params {
		d := &h.params[i]
		v, err := h.resolveParam(d, event)
		if err != nil {
			return err
		}
		args[d.Index] = v
	}

	out := h.fn.Call(args)
	if h.hasErr {
		if err, _ := out[0].Interface().(error); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) resolveParam(d *ParamDescriptor, event any) (reflect.Value, error) {
	raw, present := d.Extract(event)
	if !present || raw == nil {
		if d.Spec.Op == reconcile.OpOptional || d.Spec.Op == reconcile.OpAny {
			return reflect.Zero(d.Type), nil
		}
		return reflect.Value{}, &ExtractionError{
			Handler: h.name,
			Param:   d.Name,
			Err:     fmt.Errorf("event carries no value for required parameter"),
		}
	}

	// Fast path: the raw value already satisfies the declared type.
	if h.engine.Matches(raw, d.Spec) {
		return valueFor(raw, d.Type)
	}

	var (
		out any
		err error
	)
	if d.Convert != nil {
		out, err = d.Convert(raw)
	} else {
		out, err = h.engine.Convert(raw, d.Spec)
	}
	if err != nil {
		return reflect.Value{}, &ConversionError{
			Handler: h.name,
			Param:   d.Name,
			Src:     reflect.TypeOf(raw),
			Dst:     d.Type,
			Err:     err,
		}
	}
	v, verr := valueFor(out, d.Type)
	if verr != nil {
		return reflect.Value{}, &ConversionError{
			Handler: h.name,
			Param:   d.Name,
			Src:     reflect.TypeOf(raw),
			Dst:     d.Type,
			Err:     verr,
		}
	}
	return v, nil
}

func valueFor(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%v is not assignable to %v", rv.Type(), t)
	}
	return rv, nil
}

func funcName(rv reflect.Value) string {
	if rv.IsValid() && rv.Kind() == reflect.Func && !rv.IsNil() {
		if f := runtime.FuncForPC(rv.Pointer()); f != nil {
			return f.Name()
		}
	}
	return "handler"
}
