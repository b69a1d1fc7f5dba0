package capi

import (
	"context"
	"sync"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/linker"
	"github.com/dejan-stankovic/wasmer/runtime"
	"github.com/dejan-stankovic/wasmer/store"
)

type instanceEntry struct {
	inst *runtime.Instance
	ctx  ContextHandle
}

func (e *instanceEntry) Drop() error {
	return e.inst.Close(context.Background())
}

type contextEntry struct {
	ic *store.InstanceContext
	// mem is the view handle handed out by InstanceContextMemory, created
	// on first use.
	mem MemoryHandle
}

// instantiation collects the context handles created for host calls made
// by a start function, before the instance has a handle of its own.
type instantiation struct {
	mu       sync.Mutex
	contexts []*store.InstanceContext
}

type instantiationKey struct{}

func (s *Session) instance(h InstanceHandle) (*instanceEntry, error) {
	e, ok := s.instances.Get(resourceHandle(h))
	if !ok {
		return nil, badHandle("instance", uint64(h))
	}
	return e, nil
}

// contextHandle returns the handle a host callback sees for ic. A call
// from a start function arrives before Instantiate has registered the
// instance; it gets a provisional handle that Instantiate keeps on success
// and drops on failure.
func (s *Session) contextHandle(ic *store.InstanceContext) ContextHandle {
	if ic == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byContext[ic]; ok {
		return h
	}
	pending, ok := ic.Context().Value(instantiationKey{}).(*instantiation)
	if !ok || ic.Instance() == nil {
		return 0
	}
	h, err := s.contexts.Insert(&contextEntry{ic: ic})
	if err != nil {
		return 0
	}
	ch := ContextHandle(h)
	s.byContext[ic] = ch
	pending.mu.Lock()
	pending.contexts = append(pending.contexts, ic)
	pending.mu.Unlock()
	return ch
}

// dropContext forgets ic and releases its context handle and memory view.
func (s *Session) dropContext(ic *store.InstanceContext) {
	s.mu.Lock()
	h, ok := s.byContext[ic]
	delete(s.byContext, ic)
	s.mu.Unlock()
	if !ok {
		return
	}
	ce, err := s.contexts.Remove(resourceHandle(h))
	if err != nil {
		return
	}
	s.mu.Lock()
	mem := ce.mem
	s.mu.Unlock()
	if mem != 0 {
		s.memories.Remove(resourceHandle(mem))
	}
}

// Validate reports whether data is a module the session's runtime accepts.
// It never touches the last-error channel.
func (s *Session) Validate(data []byte) bool {
	return s.rt.Validate(data)
}

// Instantiate validates, links and starts data against the import object
// h, which may be 0 for modules without imports. On failure no instance
// exists.
func (s *Session) Instantiate(data []byte, h ImportObjectHandle) (InstanceHandle, Result) {
	var im *linker.Imports
	if h != 0 {
		e, ok := s.imports.Get(resourceHandle(h))
		if !ok {
			return 0, s.fail(badHandle("import object", uint64(h)))
		}
		im = e.imports
	}

	pending := &instantiation{}
	ctx := context.WithValue(s.ctx, instantiationKey{}, pending)
	inst, err := s.rt.Instantiate(ctx, data, im)
	pending.mu.Lock()
	provisional := pending.contexts
	pending.mu.Unlock()
	if err != nil {
		for _, ic := range provisional {
			s.dropContext(ic)
		}
		return 0, s.fail(err)
	}

	entry := &instanceEntry{inst: inst}
	ih, err := s.instances.Insert(entry)
	if err != nil {
		s.dropContext(inst.Context())
		inst.Close(s.ctx)
		return 0, s.fail(errors.Wrap(errors.PhaseBoundary, errors.KindDestroyed, err, "session closed"))
	}

	s.mu.Lock()
	ch, ok := s.byContext[inst.Context()]
	s.mu.Unlock()
	if !ok {
		h, err := s.contexts.Insert(&contextEntry{ic: inst.Context()})
		if err != nil {
			s.instances.Remove(ih)
			inst.Close(s.ctx)
			return 0, s.fail(errors.Wrap(errors.PhaseBoundary, errors.KindDestroyed, err, "session closed"))
		}
		ch = ContextHandle(h)
		s.mu.Lock()
		s.byContext[inst.Context()] = ch
		s.mu.Unlock()
	}
	entry.ctx = ch
	return InstanceHandle(ih), OK
}

// InstanceCall invokes the exported function name. results must hold
// exactly one slot per declared result; they are written only on success.
// The instance cannot be destroyed while the call runs.
func (s *Session) InstanceCall(h InstanceHandle, name string, params, results []Value) Result {
	e, done, ok := s.instances.Borrow(resourceHandle(h))
	if !ok {
		return s.fail(badHandle("instance", uint64(h)))
	}
	defer done()

	args, err := toAPIValues(params)
	if err != nil {
		return s.fail(err)
	}
	out := make([]api.Value, len(results))
	if err := e.inst.CallInto(s.ctx, name, args, out); err != nil {
		return s.fail(err)
	}
	for i, v := range out {
		results[i] = fromAPI(v)
	}
	return OK
}

// InstanceExports lists the instance's exports in declaration order.
func (s *Session) InstanceExports(h InstanceHandle) ([]ExportDescriptor, Result) {
	e, err := s.instance(h)
	if err != nil {
		return nil, s.fail(err)
	}
	exports := e.inst.Exports()
	out := make([]ExportDescriptor, len(exports))
	for i, ex := range exports {
		out[i] = ExportDescriptor{Name: ex.Name, Kind: ex.Kind}
	}
	return out, OK
}

// InstanceDestroy releases the instance, its context handle, and its
// memory view handle. Memories, tables and globals it imported return to
// their owners.
func (s *Session) InstanceDestroy(h InstanceHandle) Result {
	e, err := s.instances.Remove(resourceHandle(h))
	if err != nil {
		return s.fail(removeErr("instance", uint64(h), err))
	}

	s.dropContext(e.inst.Context())
	if err := e.inst.Close(s.ctx); err != nil {
		return s.fail(err)
	}
	return OK
}

// InstanceContextGet returns the context handle host functions receive
// when this instance calls them.
func (s *Session) InstanceContextGet(h InstanceHandle) (ContextHandle, Result) {
	e, err := s.instance(h)
	if err != nil {
		return 0, s.fail(err)
	}
	return e.ctx, OK
}

func (s *Session) context(h ContextHandle) (*contextEntry, error) {
	e, ok := s.contexts.Get(resourceHandle(h))
	if !ok {
		return nil, badHandle("instance context", uint64(h))
	}
	return e, nil
}

// InstanceContextMemory returns a handle to memory idx of the context's
// instance. Only index 0 exists. The handle is a view: it stays valid
// until the instance is destroyed and MemoryDestroy refuses it. It also
// works from host functions called by the start function.
func (s *Session) InstanceContextMemory(h ContextHandle, idx uint32) (MemoryHandle, Result) {
	ce, err := s.context(h)
	if err != nil {
		return 0, s.fail(err)
	}
	if idx != 0 {
		return 0, s.fail(errors.New(errors.PhaseMemory, errors.KindNotFound).
			Detail("memory index %d out of range, only memory 0 exists", idx).
			Build())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ce.mem != 0 {
		return ce.mem, OK
	}
	mem, err := ce.ic.Memory(idx)
	if err != nil {
		return 0, s.fail(err)
	}
	mh, err := s.memories.Insert(&memoryEntry{mem: mem, view: true})
	if err != nil {
		return 0, s.fail(errors.Wrap(errors.PhaseBoundary, errors.KindDestroyed, err, "session closed"))
	}
	ce.mem = MemoryHandle(mh)
	return ce.mem, OK
}

// InstanceContextDataSet stores an embedder value on the context.
func (s *Session) InstanceContextDataSet(h ContextHandle, data any) Result {
	ce, err := s.context(h)
	if err != nil {
		return s.fail(err)
	}
	ce.ic.Data = data
	return OK
}

// InstanceContextDataGet returns the value set by InstanceContextDataSet.
func (s *Session) InstanceContextDataGet(h ContextHandle) (any, Result) {
	ce, err := s.context(h)
	if err != nil {
		return nil, s.fail(err)
	}
	return ce.ic.Data, OK
}
