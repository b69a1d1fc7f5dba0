package store

import (
	"context"
	"strconv"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/wasm"
)

// Export is a named entry of an instance's export map.
type Export struct {
	Name  string
	Kind  api.ExternKind
	Index uint32
}

// ModuleInstance is the runtime state of an instantiated module: its index
// spaces with imports first, the single table and memory, and the exports.
type ModuleInstance struct {
	Module    *wasm.Module
	Types     []api.FuncType
	Functions []*Function
	Globals   []*Global
	Table     *Table
	Memory    *Memory
	Exports   map[string]Export

	// EngineState holds executor-private compiled code.
	EngineState any

	ctx  *InstanceContext
	Name string
}

// NewModuleInstance creates an empty instance for m with its type list
// converted and an InstanceContext attached.
func NewModuleInstance(name string, m *wasm.Module) *ModuleInstance {
	inst := &ModuleInstance{
		Name:    name,
		Module:  m,
		Types:   make([]api.FuncType, len(m.Types)),
		Exports: make(map[string]Export, len(m.Exports)),
	}
	for i, ft := range m.Types {
		inst.Types[i] = FuncTypeOf(ft)
	}
	inst.ctx = &InstanceContext{instance: inst, ctx: context.Background()}
	return inst
}

// Context returns the context handed to host functions called by this
// instance.
func (m *ModuleInstance) Context() *InstanceContext {
	return m.ctx
}

// ExportedFunction looks up a function export.
func (m *ModuleInstance) ExportedFunction(name string) (*Function, bool) {
	e, ok := m.Exports[name]
	if !ok || e.Kind != api.ExternFunc || int(e.Index) >= len(m.Functions) {
		return nil, false
	}
	return m.Functions[e.Index], true
}

// ExportedGlobal looks up a global export.
func (m *ModuleInstance) ExportedGlobal(name string) (*Global, bool) {
	e, ok := m.Exports[name]
	if !ok || e.Kind != api.ExternGlobal || int(e.Index) >= len(m.Globals) {
		return nil, false
	}
	return m.Globals[e.Index], true
}

// ExportedMemory looks up a memory export.
func (m *ModuleInstance) ExportedMemory(name string) (*Memory, bool) {
	e, ok := m.Exports[name]
	if !ok || e.Kind != api.ExternMemory || m.Memory == nil {
		return nil, false
	}
	return m.Memory, true
}

// ExportedTable looks up a table export.
func (m *ModuleInstance) ExportedTable(name string) (*Table, bool) {
	e, ok := m.Exports[name]
	if !ok || e.Kind != api.ExternTable || m.Table == nil {
		return nil, false
	}
	return m.Table, true
}

// InstanceContext is passed to host functions. It gives access to the
// calling instance's memory and carries an embedder data slot.
type InstanceContext struct {
	ctx      context.Context
	instance *ModuleInstance

	// Data is an opaque value owned by the embedder.
	Data any
}

// Context returns the context of the call in progress. A nil
// InstanceContext, as seen by a host function invoked without a calling
// instance, reports context.Background.
func (ic *InstanceContext) Context() context.Context {
	if ic == nil || ic.ctx == nil {
		return context.Background()
	}
	return ic.ctx
}

// Enter binds ctx for the duration of a call and returns a function that
// restores the previous context.
func (ic *InstanceContext) Enter(ctx context.Context) (restore func()) {
	prev := ic.ctx
	ic.ctx = ctx
	return func() { ic.ctx = prev }
}

// Instance returns the calling instance.
func (ic *InstanceContext) Instance() *ModuleInstance {
	if ic == nil {
		return nil
	}
	return ic.instance
}

// Memory returns the memory with index idx. Only index 0 exists.
func (ic *InstanceContext) Memory(idx uint32) (*Memory, error) {
	if idx != 0 || ic == nil || ic.instance == nil || ic.instance.Memory == nil {
		return nil, errors.NotFound(errors.PhaseMemory, "memory", strconv.FormatUint(uint64(idx), 10))
	}
	return ic.instance.Memory, nil
}
