package linker

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	icType      = reflect.TypeOf((*store.InstanceContext)(nil))
)

type leadingArg int

const (
	leadNone leadingArg = iota
	leadInstanceContext
	leadContext
)

// goFunc calls a plain Go function whose signature is derived by
// reflection.
type goFunc struct {
	fn     reflect.Value
	in     []reflect.Type
	out    []reflect.Type
	typ    api.FuncType
	lead   leadingArg
	hasErr bool
}

// NewGoFunction derives a host function from fn. Parameters and results
// may be int32, uint32, int64, uint64, float32 or float64. fn may take a
// leading *store.InstanceContext or context.Context and may return a
// trailing error.
func NewGoFunction(fn any) (store.RawHostFunction, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Expected("func").
			Actual(fmt.Sprintf("%T", fn)).
			Detail("handler must be a function").
			Build()
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, errors.InvalidInput(errors.PhaseHost, "variadic host functions are not supported: "+rt.String())
	}

	g := &goFunc{fn: rv}
	start := 0
	if rt.NumIn() > 0 {
		switch first := rt.In(0); {
		case first == icType:
			g.lead, start = leadInstanceContext, 1
		case first == contextType:
			g.lead, start = leadContext, 1
		}
	}
	for i := start; i < rt.NumIn(); i++ {
		k, ok := kindOfGoType(rt.In(i))
		if !ok {
			return nil, unsupportedGoType(rt, rt.In(i))
		}
		g.in = append(g.in, rt.In(i))
		g.typ.Params = append(g.typ.Params, k)
	}

	nout := rt.NumOut()
	if nout > 0 && rt.Out(nout-1) == errorType {
		g.hasErr = true
		nout--
	}
	for i := 0; i < nout; i++ {
		k, ok := kindOfGoType(rt.Out(i))
		if !ok {
			return nil, unsupportedGoType(rt, rt.Out(i))
		}
		g.out = append(g.out, rt.Out(i))
		g.typ.Results = append(g.typ.Results, k)
	}
	return g, nil
}

func unsupportedGoType(fn, t reflect.Type) error {
	return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
		Expected("int32, uint32, int64, uint64, float32 or float64").
		Actual(t.String()).
		Detail("unsupported type in %s", fn).
		Build()
}

func kindOfGoType(t reflect.Type) (api.Kind, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return api.KindI32, true
	case reflect.Int64, reflect.Uint64:
		return api.KindI64, true
	case reflect.Float32:
		return api.KindF32, true
	case reflect.Float64:
		return api.KindF64, true
	}
	return 0, false
}

func (g *goFunc) Type() api.FuncType {
	return g.typ
}

func (g *goFunc) Call(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
	return callThroughRaw(g, ic, args)
}

func (g *goFunc) CallRaw(ic *store.InstanceContext, stack []uint64) error {
	args := make([]reflect.Value, 0, len(g.in)+1)
	switch g.lead {
	case leadInstanceContext:
		args = append(args, reflect.ValueOf(ic))
	case leadContext:
		ctx := context.Background()
		if ic != nil {
			ctx = ic.Context()
		}
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}
	for i, t := range g.in {
		args = append(args, decodeRaw(t, stack[i]))
	}

	out := g.fn.Call(args)
	if g.hasErr {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			return err
		}
	}
	for i := range g.out {
		stack[i] = encodeRaw(out[i])
	}
	return nil
}

func decodeRaw(t reflect.Type, raw uint64) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(int32(uint32(raw))))
	case reflect.Uint32:
		v.SetUint(uint64(uint32(raw)))
	case reflect.Int64:
		v.SetInt(int64(raw))
	case reflect.Uint64:
		v.SetUint(raw)
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(uint32(raw))))
	case reflect.Float64:
		v.SetFloat(math.Float64frombits(raw))
	}
	return v
}

func encodeRaw(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return uint64(uint32(int32(v.Int())))
	case reflect.Uint32:
		return v.Uint() & math.MaxUint32
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return uint64(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		return math.Float64bits(v.Float())
	}
	return 0
}
