package runtime

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/lasterror"
	"github.com/dejan-stankovic/wasmer/linker"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

// Instantiate validates data, links its imports against imports, allocates
// the module's memory, table and globals, initializes segments, and runs
// the start function.
//
// Imported memories, tables and globals are shared with their owner: the
// instance holds them until Close, and the owner cannot destroy them
// meanwhile. On failure no instance is returned, every hold taken so far is
// released, and the error is recorded in the lasterror.Channel carried by
// ctx. imports may be nil for modules without imports.
func (r *Runtime) Instantiate(ctx context.Context, data []byte, imports *linker.Imports) (*Instance, error) {
	if r.isClosed() {
		return nil, lasterror.Record(ctx, errors.Destroyed(errors.PhaseInstantiate, "runtime"))
	}

	inst := &Instance{
		runtime: r,
		name:    "instance-" + strconv.FormatUint(r.seq.Add(1), 10),
	}
	if err := r.instantiate(ctx, inst, data, imports); err != nil {
		inst.release()
		inst.transition(StateFailed)
		r.log.Debug("instantiation failed", zap.String("instance", inst.name), zap.Error(err))
		return nil, lasterror.Record(ctx, err)
	}
	inst.transition(StateReady)
	return inst, nil
}

func (r *Runtime) instantiate(ctx context.Context, inst *Instance, data []byte, imports *linker.Imports) error {
	inst.transition(StateValidating)
	if err := r.validator.Validate(ctx, data); err != nil {
		return err
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return errors.ParseFailed("module", err)
	}

	inst.transition(StateLinking)
	res, err := linker.Link(m, imports)
	if err != nil {
		return err
	}

	mi := store.NewModuleInstance(inst.name, m)
	inst.module = mi
	if err := r.bindImports(mi, res); err != nil {
		return err
	}
	r.declareFunctions(mi)
	if err := r.allocate(mi); err != nil {
		return err
	}
	for _, e := range m.Exports {
		mi.Exports[e.Name] = store.Export{Name: e.Name, Kind: api.ExternKind(e.Kind), Index: e.Idx}
	}
	if err := initSegments(mi); err != nil {
		return err
	}

	if err := r.executor.Compile(ctx, mi); err != nil {
		return errors.Instantiation(errors.KindValidation, err)
	}
	inst.compiled = true

	if m.Start != nil {
		start := mi.Functions[*m.Start]
		if _, err := r.executor.Invoke(ctx, mi, start, nil); err != nil {
			return errors.Instantiation(errors.KindTrap, err)
		}
	}
	return nil
}

// bindImports places the resolved imports at the front of each index space
// and takes a hold on every shared object.
func (r *Runtime) bindImports(mi *store.ModuleInstance, res *linker.Resolved) error {
	mi.Functions = append(mi.Functions, res.Functions...)
	if res.Memory != nil {
		if err := res.Memory.Acquire(); err != nil {
			return errors.Instantiation(errors.KindDestroyed, err)
		}
		mi.Memory = res.Memory
	}
	if res.Table != nil {
		if err := res.Table.Acquire(); err != nil {
			return errors.Instantiation(errors.KindDestroyed, err)
		}
		mi.Table = res.Table
	}
	for _, g := range res.Globals {
		if err := g.Acquire(); err != nil {
			return errors.Instantiation(errors.KindDestroyed, err)
		}
		mi.Globals = append(mi.Globals, g)
	}
	return nil
}

func (r *Runtime) declareFunctions(mi *store.ModuleInstance) {
	m := mi.Module
	names := make(map[uint32]string, len(m.Exports))
	for _, e := range m.Exports {
		if e.Kind == wasm.KindFunc {
			if _, ok := names[e.Idx]; !ok {
				names[e.Idx] = e.Name
			}
		}
	}
	imported := len(mi.Functions)
	for i, typeIdx := range m.Funcs {
		idx := uint32(imported + i)
		name, ok := names[idx]
		if !ok {
			name = fmt.Sprintf("func[%d]", idx)
		}
		mi.Functions = append(mi.Functions, &store.Function{
			Module: mi,
			Index:  idx,
			Name:   name,
			Type:   mi.Types[typeIdx],
		})
	}
}

// allocate creates the declared memory, table and globals. The instance
// adopts them, so they are freed when it closes.
func (r *Runtime) allocate(mi *store.ModuleInstance) error {
	m := mi.Module
	if len(m.Memories) > 0 {
		mem, err := store.NewMemory(limitsOf(m.Memories[0].Limits), store.WithLimitPages(r.cfg.MemoryLimitPages))
		if err != nil {
			return errors.Instantiation(errors.KindLimits, err)
		}
		mem.Adopt()
		mi.Memory = mem
	}
	if len(m.Tables) > 0 {
		tbl, err := store.NewTable(limitsOf(m.Tables[0].Limits))
		if err != nil {
			return errors.Instantiation(errors.KindLimits, err)
		}
		tbl.Adopt()
		mi.Table = tbl
	}
	for _, g := range m.Globals {
		raw, err := evalConst(mi, g.Init)
		if err != nil {
			return errors.Instantiation(errors.KindValidation, fmt.Errorf("global %d: %w", len(mi.Globals), err))
		}
		k, ok := store.KindOf(g.Type.ValType)
		if !ok {
			return errors.Instantiation(errors.KindValidation, fmt.Errorf("global %d: unsupported type %s", len(mi.Globals), g.Type.ValType))
		}
		v, err := api.FromRaw(k, raw)
		if err != nil {
			return errors.Instantiation(errors.KindValidation, err)
		}
		global := store.NewGlobal(v, g.Type.Mutable)
		global.Adopt()
		mi.Globals = append(mi.Globals, global)
	}
	return nil
}

// evalConst evaluates an initializer. global.get may only read globals
// already present, which for MVP modules are the imported ones.
func evalConst(mi *store.ModuleInstance, expr []byte) (uint64, error) {
	c, err := wasm.DecodeConstExpr(expr)
	if err != nil {
		return 0, err
	}
	if !c.IsGlobalGet() {
		return c.Value, nil
	}
	if int(c.GlobalIdx) >= len(mi.Globals) {
		return 0, fmt.Errorf("%w: global.get %d before definition", wasm.ErrConstExpr, c.GlobalIdx)
	}
	return mi.Globals[c.GlobalIdx].Raw(), nil
}

type pendingWrite struct {
	data   []byte
	funcs  []uint32
	offset uint32
}

// initSegments bounds-checks every element and data segment before writing
// any of them, so a failure leaves imported tables and memories untouched.
func initSegments(mi *store.ModuleInstance) error {
	m := mi.Module
	elems := make([]pendingWrite, 0, len(m.Elements))
	for i, el := range m.Elements {
		off, err := evalConst(mi, el.Offset)
		if err != nil {
			return errors.Instantiation(errors.KindValidation, fmt.Errorf("element segment %d: %w", i, err))
		}
		end := uint64(uint32(off)) + uint64(len(el.FuncIdxs))
		if mi.Table == nil || end > uint64(mi.Table.Length()) {
			return errors.Instantiation(errors.KindTrap, &engine.Trap{
				Code:  engine.TrapTableOutOfBounds,
				Cause: fmt.Errorf("element segment %d does not fit", i),
			})
		}
		elems = append(elems, pendingWrite{offset: uint32(off), funcs: el.FuncIdxs})
	}

	datas := make([]pendingWrite, 0, len(m.Data))
	for i, seg := range m.Data {
		off, err := evalConst(mi, seg.Offset)
		if err != nil {
			return errors.Instantiation(errors.KindValidation, fmt.Errorf("data segment %d: %w", i, err))
		}
		end := uint64(uint32(off)) + uint64(len(seg.Init))
		if mi.Memory == nil || end > uint64(len(mi.Memory.Data())) {
			return errors.Instantiation(errors.KindTrap, &engine.Trap{
				Code:  engine.TrapMemoryOutOfBounds,
				Cause: fmt.Errorf("data segment %d does not fit", i),
			})
		}
		datas = append(datas, pendingWrite{offset: uint32(off), data: seg.Init})
	}

	for _, w := range elems {
		for j, f := range w.funcs {
			if err := mi.Table.Set(w.offset+uint32(j), mi.Functions[f]); err != nil {
				return errors.Instantiation(errors.KindTrap, err)
			}
		}
	}
	for _, w := range datas {
		if err := mi.Memory.Write(w.offset, w.data); err != nil {
			return errors.Instantiation(errors.KindTrap, err)
		}
	}
	return nil
}

func limitsOf(l wasm.Limits) api.Limits {
	return api.Limits{Min: l.Min, Max: l.Max}
}
