// Package interp is a stack-machine executor for decoded MVP modules.
//
// Compile decodes each function body once and precomputes the block
// structure; Invoke then walks the instruction slice with a uint64 operand
// stack. i32 and f32 values occupy the low 32 bits of a slot.
package interp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

const (
	// DefaultMaxCallDepth bounds guest recursion.
	DefaultMaxCallDepth = 1000

	maxLocals = 50000
)

// Engine implements engine.Executor. One Engine may serve any number of
// instances.
type Engine struct {
	log          *zap.Logger
	maxCallDepth int
}

var _ engine.Executor = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxCallDepth sets the nesting depth at which calls trap with
// TrapCallStackExhausted. Values below 1 are ignored.
func WithMaxCallDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxCallDepth = n
		}
	}
}

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{log: engine.Logger(), maxCallDepth: DefaultMaxCallDepth}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type compiledFunc struct {
	code []wasm.Instruction
	// ends maps the pc of a block, loop, if or else to its matching end.
	ends []int32
	// elses maps the pc of an if to its else, or -1.
	elses   []int32
	locals  int
	params  int
	results int
}

type compiledModule struct {
	funcs    []*compiledFunc
	imported int
}

// Compile decodes every function body of inst and stores the result in
// inst.EngineState.
func (e *Engine) Compile(_ context.Context, inst *store.ModuleInstance) error {
	m := inst.Module
	if len(m.Funcs) != len(m.Code) {
		return errors.Validation(fmt.Errorf("%d function declarations but %d bodies", len(m.Funcs), len(m.Code)))
	}
	cm := &compiledModule{
		funcs:    make([]*compiledFunc, len(m.Code)),
		imported: m.NumImportedFuncs(),
	}
	for i := range m.Code {
		idx := cm.imported + i
		body := &m.Code[i]
		ft := m.TypeAt(m.Funcs[i])
		if ft == nil {
			return errors.Validation(fmt.Errorf("function %d: type index %d out of range", idx, m.Funcs[i]))
		}
		if n := body.NumLocals(); n+uint64(len(ft.Params)) > maxLocals {
			return errors.Validation(fmt.Errorf("function %d: too many locals (%d)", idx, n))
		}
		code, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return errors.Validation(fmt.Errorf("function %d: %w", idx, err))
		}
		ends, elses, err := matchBlocks(code)
		if err != nil {
			return errors.Validation(fmt.Errorf("function %d: %w", idx, err))
		}
		cm.funcs[i] = &compiledFunc{
			code:    code,
			ends:    ends,
			elses:   elses,
			locals:  int(body.NumLocals()),
			params:  len(ft.Params),
			results: len(ft.Results),
		}
	}
	inst.EngineState = cm
	e.log.Debug("compiled module", zap.String("module", inst.Name), zap.Int("functions", len(cm.funcs)))
	return nil
}

// matchBlocks pairs every structured instruction with its end, and every
// if with its else.
func matchBlocks(code []wasm.Instruction) (ends, elses []int32, err error) {
	ends = make([]int32, len(code))
	elses = make([]int32, len(code))
	for i := range elses {
		elses[i] = -1
	}
	var open []int32
	for pc, ins := range code {
		switch ins.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			open = append(open, int32(pc))
		case wasm.OpElse:
			if len(open) == 0 || code[open[len(open)-1]].Opcode != wasm.OpIf {
				return nil, nil, fmt.Errorf("else at %d without if", pc)
			}
			top := open[len(open)-1]
			if elses[top] >= 0 {
				return nil, nil, fmt.Errorf("duplicate else at %d", pc)
			}
			elses[top] = int32(pc)
		case wasm.OpEnd:
			if len(open) == 0 {
				if pc != len(code)-1 {
					return nil, nil, fmt.Errorf("unexpected end at %d", pc)
				}
				continue
			}
			top := open[len(open)-1]
			open = open[:len(open)-1]
			ends[top] = int32(pc)
			if elses[top] >= 0 {
				ends[elses[top]] = int32(pc)
			}
		}
	}
	if len(open) > 0 || len(code) == 0 || code[len(code)-1].Opcode != wasm.OpEnd {
		return nil, nil, fmt.Errorf("unterminated function body")
	}
	return ends, elses, nil
}

// Invoke calls fn with args in the executor encoding and returns its
// results. caller is the instance the call enters through; host functions
// see its context. A nil caller falls back to fn's own module.
func (e *Engine) Invoke(ctx context.Context, caller *store.ModuleInstance, fn *store.Function, args []uint64) (results []uint64, err error) {
	if len(args) != len(fn.Type.Params) {
		return nil, errors.Arity(errors.PhaseCall, []string{fn.Name}, len(fn.Type.Params), len(args))
	}
	m := &machine{
		ctx:      ctx,
		done:     ctx.Done(),
		maxDepth: e.maxCallDepth,
		stack:    make([]uint64, 0, 64),
	}
	m.stack = append(m.stack, args...)

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("executor fault", zap.String("func", fn.Name), zap.Any("panic", r))
			results = nil
			err = errors.New(errors.PhaseCall, errors.KindInvalidState).
				Path(fn.Name).
				Detail("executor fault: %v", r).
				Build()
		}
	}()

	if caller == nil {
		caller = fn.Module
	}
	if err := m.call(fn, caller); err != nil {
		return nil, err
	}
	n := len(fn.Type.Results)
	results = make([]uint64, n)
	copy(results, m.stack[len(m.stack)-n:])
	return results, nil
}

// Release drops the compiled code of inst.
func (e *Engine) Release(inst *store.ModuleInstance) {
	inst.EngineState = nil
}

type label struct {
	height int
	arity  int
	// cont is the matching end for blocks and ifs, and the first body
	// instruction for loops.
	cont int
	loop bool
}

type machine struct {
	ctx      context.Context
	done     <-chan struct{}
	stack    []uint64
	depth    int
	maxDepth int
}

func (m *machine) push(v uint64) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() uint64 {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack = m.stack[:n]
	return v
}

func (m *machine) interrupted() error {
	if m.done == nil {
		return nil
	}
	select {
	case <-m.done:
		return &engine.Trap{Code: engine.TrapInterrupted, Cause: m.ctx.Err()}
	default:
		return nil
	}
}

// call runs fn with its arguments on top of the stack and leaves its
// results there. caller is the instance whose code issued the call.
func (m *machine) call(fn *store.Function, caller *store.ModuleInstance) error {
	if err := m.interrupted(); err != nil {
		return err
	}
	if fn.IsHost() {
		return m.callHost(fn, caller)
	}
	if m.depth >= m.maxDepth {
		return &engine.Trap{Code: engine.TrapCallStackExhausted, Func: fn.Name}
	}
	inst := fn.Module
	cm, ok := inst.EngineState.(*compiledModule)
	if !ok {
		return errors.New(errors.PhaseCall, errors.KindInvalidState).
			Path(fn.Name).
			Detail("module %q is not compiled", inst.Name).
			Build()
	}
	m.depth++
	err := m.execute(inst, cm.funcs[int(fn.Index)-cm.imported])
	m.depth--
	if err != nil {
		if trap, ok := err.(*engine.Trap); ok && trap.Func == "" {
			trap.Func = fn.Name
		}
		return err
	}
	return nil
}

func (m *machine) callHost(fn *store.Function, caller *store.ModuleInstance) (err error) {
	nparams, nresults := len(fn.Type.Params), len(fn.Type.Results)
	base := len(m.stack) - nparams

	var ic *store.InstanceContext
	if caller != nil {
		ic = caller.Context()
		defer ic.Enter(m.ctx)()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &engine.Trap{Code: engine.TrapHostFunction, Func: fn.Name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	if raw, ok := fn.Host.(store.RawHostFunction); ok {
		buf := make([]uint64, max(nparams, nresults))
		copy(buf, m.stack[base:])
		if err := raw.CallRaw(ic, buf); err != nil {
			return hostTrap(fn, err)
		}
		m.stack = append(m.stack[:base], buf[:nresults]...)
		return nil
	}

	args := make([]api.Value, nparams)
	for i, k := range fn.Type.Params {
		if args[i], err = api.FromRaw(k, m.stack[base+i]); err != nil {
			return hostTrap(fn, err)
		}
	}
	results, err := fn.Host.Call(ic, args)
	if err != nil {
		return hostTrap(fn, err)
	}
	if len(results) != nresults {
		return hostTrap(fn, errors.Arity(errors.PhaseHost, []string{fn.Name}, nresults, len(results)))
	}
	m.stack = m.stack[:base]
	for i, r := range results {
		if want := fn.Type.Results[i]; r.Kind() != want {
			return hostTrap(fn, errors.TypeMismatch(errors.PhaseHost, []string{fn.Name}, want.String(), r.Kind().String()))
		}
		m.push(r.Raw())
	}
	return nil
}

// hostTrap passes a host-raised trap through unchanged and wraps anything
// else.
func hostTrap(fn *store.Function, err error) error {
	if trap, ok := err.(*engine.Trap); ok {
		return trap
	}
	return &engine.Trap{Code: engine.TrapHostFunction, Func: fn.Name, Cause: err}
}

func trap(code engine.TrapCode) error {
	return &engine.Trap{Code: code}
}

// blockArity returns the parameter and result counts of a block type.
func blockArity(inst *store.ModuleInstance, bt int32) (params, results int) {
	switch {
	case bt == wasm.BlockTypeVoid:
		return 0, 0
	case bt < 0:
		return 0, 1
	}
	ft := inst.Types[bt]
	return len(ft.Params), len(ft.Results)
}

func (m *machine) execute(inst *store.ModuleInstance, cf *compiledFunc) error {
	base := len(m.stack) - cf.params
	locals := make([]uint64, cf.params+cf.locals)
	copy(locals, m.stack[base:])
	m.stack = m.stack[:base]

	code := cf.code
	labels := make([]label, 1, 8)
	labels[0] = label{height: base, arity: cf.results, cont: len(code) - 1}

	// branch unwinds to the label depth levels out and returns the next pc.
	branch := func(depth uint32) (int, error) {
		target := len(labels) - 1 - int(depth)
		lb := labels[target]
		if lb.arity > 0 {
			copy(m.stack[lb.height:], m.stack[len(m.stack)-lb.arity:])
		}
		m.stack = m.stack[:lb.height+lb.arity]
		if lb.loop {
			labels = labels[:target+1]
			return lb.cont, m.interrupted()
		}
		labels = labels[:target]
		return lb.cont + 1, nil
	}

	for pc := 0; pc < len(code); {
		ins := &code[pc]
		switch op := ins.Opcode; op {
		case wasm.OpUnreachable:
			return trap(engine.TrapUnreachable)

		case wasm.OpNop:

		case wasm.OpBlock, wasm.OpLoop:
			params, results := blockArity(inst, ins.Imm.(wasm.BlockImm).Type)
			lb := label{height: len(m.stack) - params, arity: results, cont: int(cf.ends[pc])}
			if op == wasm.OpLoop {
				lb = label{height: len(m.stack) - params, arity: params, cont: pc + 1, loop: true}
			}
			labels = append(labels, lb)

		case wasm.OpIf:
			params, results := blockArity(inst, ins.Imm.(wasm.BlockImm).Type)
			cond := uint32(m.pop())
			lb := label{height: len(m.stack) - params, arity: results, cont: int(cf.ends[pc])}
			switch {
			case cond != 0:
				labels = append(labels, lb)
			case cf.elses[pc] >= 0:
				labels = append(labels, lb)
				pc = int(cf.elses[pc]) + 1
				continue
			default:
				pc = int(cf.ends[pc]) + 1
				continue
			}

		case wasm.OpElse:
			// The then arm finished; skip the else arm and let end pop
			// the label.
			pc = int(cf.ends[pc])
			continue

		case wasm.OpEnd:
			labels = labels[:len(labels)-1]

		case wasm.OpBr:
			next, err := branch(ins.Imm.(wasm.BranchImm).LabelIdx)
			if err != nil {
				return err
			}
			pc = next
			continue

		case wasm.OpBrIf:
			if uint32(m.pop()) != 0 {
				next, err := branch(ins.Imm.(wasm.BranchImm).LabelIdx)
				if err != nil {
					return err
				}
				pc = next
				continue
			}

		case wasm.OpBrTable:
			imm := ins.Imm.(wasm.BrTableImm)
			i := uint32(m.pop())
			depth := imm.Default
			if uint64(i) < uint64(len(imm.Labels)) {
				depth = imm.Labels[i]
			}
			next, err := branch(depth)
			if err != nil {
				return err
			}
			pc = next
			continue

		case wasm.OpReturn:
			next, _ := branch(uint32(len(labels) - 1))
			pc = next
			continue

		case wasm.OpCall:
			fn := inst.Functions[ins.Imm.(wasm.CallImm).FuncIdx]
			if err := m.call(fn, inst); err != nil {
				return err
			}

		case wasm.OpCallIndirect:
			if err := m.callIndirect(inst, ins.Imm.(wasm.CallIndirectImm)); err != nil {
				return err
			}

		case wasm.OpDrop:
			m.stack = m.stack[:len(m.stack)-1]

		case wasm.OpSelect:
			cond := uint32(m.pop())
			b := m.pop()
			if cond == 0 {
				m.stack[len(m.stack)-1] = b
			}

		case wasm.OpLocalGet:
			m.push(locals[ins.Imm.(wasm.LocalImm).LocalIdx])
		case wasm.OpLocalSet:
			locals[ins.Imm.(wasm.LocalImm).LocalIdx] = m.pop()
		case wasm.OpLocalTee:
			locals[ins.Imm.(wasm.LocalImm).LocalIdx] = m.stack[len(m.stack)-1]

		case wasm.OpGlobalGet:
			m.push(inst.Globals[ins.Imm.(wasm.GlobalImm).GlobalIdx].Raw())
		case wasm.OpGlobalSet:
			inst.Globals[ins.Imm.(wasm.GlobalImm).GlobalIdx].SetRaw(m.pop())

		case wasm.OpMemorySize:
			m.push(uint64(inst.Memory.Length()))
		case wasm.OpMemoryGrow:
			delta := uint32(m.pop())
			prev, err := inst.Memory.Grow(delta)
			if err != nil {
				m.push(uint64(uint32(0xFFFFFFFF)))
			} else {
				m.push(uint64(prev))
			}

		case wasm.OpI32Const:
			m.push(uint64(uint32(ins.Imm.(wasm.I32Imm).Value)))
		case wasm.OpI64Const:
			m.push(uint64(ins.Imm.(wasm.I64Imm).Value))
		case wasm.OpF32Const:
			m.push(f32bits(ins.Imm.(wasm.F32Imm).Value))
		case wasm.OpF64Const:
			m.push(f64bits(ins.Imm.(wasm.F64Imm).Value))

		default:
			var err error
			switch {
			case op >= wasm.OpI32Load && op <= wasm.OpI64Load32U:
				err = m.load(inst.Memory, op, ins.Imm.(wasm.MemoryImm))
			case op >= wasm.OpI32Store && op <= wasm.OpI64Store32:
				err = m.store(inst.Memory, op, ins.Imm.(wasm.MemoryImm))
			case op >= wasm.OpI32Eqz && op <= wasm.OpF64ReinterpretI64:
				err = m.numeric(op)
			default:
				err = errors.New(errors.PhaseCall, errors.KindInvalidData).
					Detail("unsupported opcode 0x%02x", op).
					Build()
			}
			if err != nil {
				return err
			}
		}
		pc++
	}

	if n := cf.results; len(m.stack) != base+n {
		copy(m.stack[base:], m.stack[len(m.stack)-n:])
		m.stack = m.stack[:base+n]
	}
	return nil
}

func (m *machine) callIndirect(inst *store.ModuleInstance, imm wasm.CallIndirectImm) error {
	i := uint32(m.pop())
	tbl := inst.Table
	if tbl == nil || i >= tbl.Length() {
		return trap(engine.TrapTableOutOfBounds)
	}
	fn, err := tbl.Get(i)
	if err != nil {
		return trap(engine.TrapTableOutOfBounds)
	}
	if fn == nil {
		return trap(engine.TrapUninitializedElement)
	}
	if !fn.Type.Equal(inst.Types[imm.TypeIdx]) {
		return trap(engine.TrapIndirectCallTypeMismatch)
	}
	return m.call(fn, inst)
}
