package runtime

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/lasterror"
	"github.com/dejan-stankovic/wasmer/store"
)

// Instance is a linked, runnable module. Calls into one instance must be
// serialized by the caller.
type Instance struct {
	runtime  *Runtime
	module   *store.ModuleInstance
	name     string
	mu       sync.Mutex
	state    State
	compiled bool
}

// Export describes one entry of an instance's export list.
type Export struct {
	Name string
	Kind api.ExternKind
}

func (i *Instance) transition(to State) {
	i.mu.Lock()
	from := i.state
	i.state = to
	i.mu.Unlock()
	i.runtime.log.Debug("instance state",
		zap.String("instance", i.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

// State returns the lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Name is a runtime-unique identifier used in logs.
func (i *Instance) Name() string {
	return i.name
}

// Module exposes the underlying store instance, e.g. for
// linker.Imports.DefineInstance.
func (i *Instance) Module() *store.ModuleInstance {
	return i.module
}

// Context returns the InstanceContext handed to host functions this
// instance calls. Its Data slot is free for the embedder.
func (i *Instance) Context() *store.InstanceContext {
	return i.module.Context()
}

func (i *Instance) ready(phase errors.Phase) error {
	if i.State() != StateReady {
		return errors.Destroyed(phase, "instance")
	}
	return nil
}

// Call invokes the exported function name. params must match its
// signature in count and kinds. A trap comes back as an error of kind trap
// wrapping the *engine.Trap. Every failure is recorded in the
// lasterror.Channel carried by ctx.
func (i *Instance) Call(ctx context.Context, name string, params ...api.Value) ([]api.Value, error) {
	results, err := i.call(ctx, name, params)
	if err != nil {
		return nil, lasterror.Record(ctx, err)
	}
	return results, nil
}

// CallInto is Call with a caller-sized results slice, which must have
// exactly one entry per declared result.
func (i *Instance) CallInto(ctx context.Context, name string, params, results []api.Value) error {
	if err := i.ready(errors.PhaseCall); err != nil {
		return lasterror.Record(ctx, err)
	}
	ft, ok := i.ExportedFunction(name)
	if !ok {
		return lasterror.Record(ctx, errors.NotFound(errors.PhaseCall, "function", name))
	}
	if len(results) != len(ft.Results) {
		return lasterror.Record(ctx, errors.New(errors.PhaseCall, errors.KindArity).
			Path(name, "results").
			Expected(strconv.Itoa(len(ft.Results))).
			Actual(strconv.Itoa(len(results))).
			Detail("results buffer holds %d values, function returns %d", len(results), len(ft.Results)).
			Build())
	}
	out, err := i.call(ctx, name, params)
	if err != nil {
		return lasterror.Record(ctx, err)
	}
	copy(results, out)
	return nil
}

func (i *Instance) call(ctx context.Context, name string, params []api.Value) ([]api.Value, error) {
	if err := i.ready(errors.PhaseCall); err != nil {
		return nil, err
	}
	fn, ok := i.module.ExportedFunction(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "function", name)
	}
	if len(params) != len(fn.Type.Params) {
		return nil, errors.Arity(errors.PhaseCall, []string{name}, len(fn.Type.Params), len(params))
	}
	args := make([]uint64, len(params))
	for n, p := range params {
		if want := fn.Type.Params[n]; p.Kind() != want {
			return nil, errors.TypeMismatch(errors.PhaseCall,
				[]string{name, "param " + strconv.Itoa(n)}, want.String(), p.Kind().String())
		}
		args[n] = p.Raw()
	}

	raw, err := i.runtime.executor.Invoke(ctx, i.module, fn, args)
	if err != nil {
		var trap *engine.Trap
		if errors.As(err, &trap) {
			i.runtime.log.Debug("call trapped",
				zap.String("instance", i.name),
				zap.String("func", name),
				zap.Stringer("code", trap.Code))
			return nil, errors.Trap(errors.PhaseCall, []string{name}, err)
		}
		return nil, err
	}

	results := make([]api.Value, len(raw))
	for n, r := range raw {
		v, err := api.FromRaw(fn.Type.Results[n], r)
		if err != nil {
			return nil, err
		}
		results[n] = v
	}
	return results, nil
}

// Exports lists the exports in declaration order.
func (i *Instance) Exports() []Export {
	out := make([]Export, 0, len(i.module.Module.Exports))
	for _, e := range i.module.Module.Exports {
		out = append(out, Export{Name: e.Name, Kind: api.ExternKind(e.Kind)})
	}
	return out
}

// ExportedFunction returns the signature of an exported function.
func (i *Instance) ExportedFunction(name string) (api.FuncType, bool) {
	fn, ok := i.module.ExportedFunction(name)
	if !ok {
		return api.FuncType{}, false
	}
	return fn.Type, true
}

// Memory returns memory index 0, owned or imported.
func (i *Instance) Memory() (*store.Memory, error) {
	if err := i.ready(errors.PhaseMemory); err != nil {
		return nil, err
	}
	return i.module.Context().Memory(0)
}

// Table returns the instance's table.
func (i *Instance) Table() (*store.Table, error) {
	if err := i.ready(errors.PhaseTable); err != nil {
		return nil, err
	}
	if i.module.Table == nil {
		return nil, errors.NotFound(errors.PhaseTable, "table", "0")
	}
	return i.module.Table, nil
}

// Global returns an exported global.
func (i *Instance) Global(name string) (*store.Global, error) {
	if err := i.ready(errors.PhaseGlobal); err != nil {
		return nil, err
	}
	g, ok := i.module.ExportedGlobal(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseGlobal, "global", name)
	}
	return g, nil
}

// Close drops executor state and this instance's hold on its memory, table
// and globals. Objects the instance declared are freed once no other
// instance imports them; imported objects return to their owner. Closing
// twice is a no-op.
func (i *Instance) Close(_ context.Context) error {
	i.mu.Lock()
	if i.state == StateDestroyed {
		i.mu.Unlock()
		return nil
	}
	i.mu.Unlock()

	i.release()
	i.transition(StateDestroyed)
	return nil
}

// release undoes every hold the instance took. It is also the rollback of
// a failed instantiation, where only part of the state may exist.
func (i *Instance) release() {
	mi := i.module
	if mi == nil {
		return
	}
	if i.compiled {
		i.runtime.executor.Release(mi)
		i.compiled = false
	}
	if mi.Memory != nil {
		mi.Memory.Release()
	}
	if mi.Table != nil {
		mi.Table.Release()
	}
	for _, g := range mi.Globals {
		g.Release()
	}
}
