package capi

import (
	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/linker"
	"github.com/dejan-stankovic/wasmer/store"
)

// HostFunc is a host function as the boundary sees it. ctx identifies the
// calling instance's context and is 0 when the function is invoked
// directly rather than from guest code. It returns one value per declared
// result; a returned error traps the guest.
type HostFunc func(ctx ContextHandle, args []Value) ([]Value, error)

type importEntry struct {
	imports *linker.Imports
}

func (e *importEntry) Drop() error {
	return e.imports.Close()
}

func (s *Session) importObject(h ImportObjectHandle) (*linker.Imports, error) {
	e, ok := s.imports.Get(resourceHandle(h))
	if !ok {
		return nil, badHandle("import object", uint64(h))
	}
	return e.imports, nil
}

// ImportObjectNew creates an empty import object.
func (s *Session) ImportObjectNew() (ImportObjectHandle, Result) {
	h, err := s.imports.Insert(&importEntry{imports: linker.NewImports()})
	if err != nil {
		return 0, s.fail(errors.Wrap(errors.PhaseBoundary, errors.KindDestroyed, err, "session closed"))
	}
	return ImportObjectHandle(h), OK
}

// ImportObjectDestroy frees an import object. Instances created from it
// keep working: they hold what they linked.
func (s *Session) ImportObjectDestroy(h ImportObjectHandle) Result {
	e, err := s.imports.Remove(resourceHandle(h))
	if err != nil {
		return s.fail(removeErr("import object", uint64(h), err))
	}
	if err := e.imports.Close(); err != nil {
		return s.fail(err)
	}
	return OK
}

// ImportsSetImportFunc binds fn as namespace.name with the given
// signature, replacing any earlier binding of the pair.
func (s *Session) ImportsSetImportFunc(h ImportObjectHandle, namespace, name string, fn HostFunc, params, results []ValueTag) Result {
	im, err := s.importObject(h)
	if err != nil {
		return s.fail(err)
	}
	if fn == nil {
		return s.fail(errors.InvalidInput(errors.PhaseHost, "host function is nil"))
	}
	pk, err := tagsToKinds(params)
	if err != nil {
		return s.fail(err)
	}
	rk, err := tagsToKinds(results)
	if err != nil {
		return s.fail(err)
	}

	cb := func(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
		in := make([]Value, len(args))
		for i, a := range args {
			in[i] = fromAPI(a)
		}
		out, err := fn(s.contextHandle(ic), in)
		if err != nil {
			return nil, err
		}
		return toAPIValues(out)
	}
	if err := im.RegisterFunction(namespace, name, cb, pk, rk); err != nil {
		return s.fail(err)
	}
	return OK
}

// ImportsSetImportMemory binds a memory at namespace.name. Instances
// importing it share it with the session; it cannot be destroyed until
// they are.
func (s *Session) ImportsSetImportMemory(h ImportObjectHandle, namespace, name string, mem MemoryHandle) Result {
	im, err := s.importObject(h)
	if err != nil {
		return s.fail(err)
	}
	m, err := s.memory(mem)
	if err != nil {
		return s.fail(err)
	}
	if err := im.Namespace(namespace).DefineMemory(name, m); err != nil {
		return s.fail(err)
	}
	return OK
}

// ImportsSetImportTable binds a table at namespace.name.
func (s *Session) ImportsSetImportTable(h ImportObjectHandle, namespace, name string, tbl TableHandle) Result {
	im, err := s.importObject(h)
	if err != nil {
		return s.fail(err)
	}
	t, err := s.tableOf(tbl)
	if err != nil {
		return s.fail(err)
	}
	if err := im.Namespace(namespace).DefineTable(name, t); err != nil {
		return s.fail(err)
	}
	return OK
}

// ImportsSetImportGlobal binds a global at namespace.name.
func (s *Session) ImportsSetImportGlobal(h ImportObjectHandle, namespace, name string, g GlobalHandle) Result {
	im, err := s.importObject(h)
	if err != nil {
		return s.fail(err)
	}
	gl, err := s.global(g)
	if err != nil {
		return s.fail(err)
	}
	if err := im.Namespace(namespace).DefineGlobal(name, gl); err != nil {
		return s.fail(err)
	}
	return OK
}

// ImportsSetInstance exposes every export of inst under namespace, so a
// later module can link against a running peer.
func (s *Session) ImportsSetInstance(h ImportObjectHandle, namespace string, inst InstanceHandle) Result {
	im, err := s.importObject(h)
	if err != nil {
		return s.fail(err)
	}
	e, err := s.instance(inst)
	if err != nil {
		return s.fail(err)
	}
	if err := im.DefineInstance(namespace, e.inst.Module()); err != nil {
		return s.fail(err)
	}
	return OK
}
