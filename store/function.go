package store

import (
	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/wasm"
)

// HostFunction is a function implemented by the embedder. The executor
// calls it with arguments already checked against Type.
type HostFunction interface {
	Type() api.FuncType
	Call(ic *InstanceContext, args []api.Value) ([]api.Value, error)
}

// RawHostFunction is an optional fast path: params are read from stack and
// results written back to it, in the executor's uint64 encoding. stack is
// sized to max(len(params), len(results)).
type RawHostFunction interface {
	HostFunction
	CallRaw(ic *InstanceContext, stack []uint64) error
}

// Function is an entry in a function index space: either a module function
// owned by Module or a host function.
type Function struct {
	Host   HostFunction
	Module *ModuleInstance
	Name   string
	Type   api.FuncType
	Index  uint32
}

// NewHostFunction wraps h as a function with a debug name.
func NewHostFunction(name string, h HostFunction) *Function {
	return &Function{Host: h, Name: name, Type: h.Type()}
}

// IsHost reports whether the function is implemented by the embedder.
func (f *Function) IsHost() bool {
	return f.Host != nil
}

func (f *Function) String() string {
	if f.Name != "" {
		return f.Name + f.Type.String()
	}
	return f.Type.String()
}

// FuncTypeOf converts a decoded wasm signature. The decoder only admits the
// four numeric types, all of which have a Kind.
func FuncTypeOf(ft wasm.FuncType) api.FuncType {
	out, _ := api.FuncTypeOf(valueTypes(ft.Params), valueTypes(ft.Results))
	return out
}

// KindOf converts a decoded wasm value type.
func KindOf(vt wasm.ValType) (api.Kind, bool) {
	return api.KindOf(wazeroapi.ValueType(vt))
}

func valueTypes(vts []wasm.ValType) []wazeroapi.ValueType {
	out := make([]wazeroapi.ValueType, len(vts))
	for i, vt := range vts {
		out[i] = wazeroapi.ValueType(vt)
	}
	return out
}
