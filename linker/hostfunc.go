package linker

import (
	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

// HostCallback receives arguments already checked against the declared
// signature and returns one value per declared result.
type HostCallback func(ic *store.InstanceContext, args []api.Value) ([]api.Value, error)

// RawHostCallback reads parameters from stack and writes results back into
// it, in the uint64 encoding of api.Value.Raw. stack has room for
// max(len(params), len(results)) values.
type RawHostCallback func(ic *store.InstanceContext, stack []uint64) error

type callbackFunc struct {
	fn  HostCallback
	typ api.FuncType
}

func (c *callbackFunc) Type() api.FuncType {
	return c.typ
}

func (c *callbackFunc) Call(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
	return c.fn(ic, args)
}

type rawFunc struct {
	fn  RawHostCallback
	typ api.FuncType
}

func (r *rawFunc) Type() api.FuncType {
	return r.typ
}

func (r *rawFunc) CallRaw(ic *store.InstanceContext, stack []uint64) error {
	return r.fn(ic, stack)
}

func (r *rawFunc) Call(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
	return callThroughRaw(r, ic, args)
}

// callThroughRaw adapts the value-slice convention onto a raw function.
func callThroughRaw(h store.RawHostFunction, ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
	typ := h.Type()
	stack := make([]uint64, max(len(typ.Params), len(typ.Results)))
	for i, a := range args {
		stack[i] = a.Raw()
	}
	if err := h.CallRaw(ic, stack); err != nil {
		return nil, err
	}
	out := make([]api.Value, len(typ.Results))
	for i, k := range typ.Results {
		v, err := api.FromRaw(k, stack[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// NewHostFunction wraps a callback with an explicit signature.
func NewHostFunction(fn HostCallback, params, results []api.Kind) (store.HostFunction, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "host callback is nil")
	}
	typ, err := signature(params, results)
	if err != nil {
		return nil, err
	}
	return &callbackFunc{fn: fn, typ: typ}, nil
}

// NewRawHostFunction wraps a stack-based callback with an explicit
// signature.
func NewRawHostFunction(fn RawHostCallback, params, results []api.Kind) (store.RawHostFunction, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "host callback is nil")
	}
	typ, err := signature(params, results)
	if err != nil {
		return nil, err
	}
	return &rawFunc{fn: fn, typ: typ}, nil
}

func signature(params, results []api.Kind) (api.FuncType, error) {
	for _, ks := range [][]api.Kind{params, results} {
		for _, k := range ks {
			if !k.Valid() {
				return api.FuncType{}, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
					Expected("i32, i64, f32 or f64").
					Actual(k.String()).
					Detail("unrecognized value tag in signature").
					Value(uint32(k)).
					Build()
			}
		}
	}
	return api.FuncType{
		Params:  append([]api.Kind(nil), params...),
		Results: append([]api.Kind(nil), results...),
	}, nil
}
