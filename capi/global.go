package capi

import (
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

type globalEntry struct {
	g *store.Global
}

func (e *globalEntry) Drop() error {
	if e.g.Destroyed() {
		return nil
	}
	return e.g.Destroy()
}

func (s *Session) global(h GlobalHandle) (*store.Global, error) {
	e, ok := s.globals.Get(resourceHandle(h))
	if !ok {
		return nil, badHandle("global", uint64(h))
	}
	if e.g.Destroyed() {
		return nil, errors.Destroyed(errors.PhaseGlobal, "global")
	}
	return e.g, nil
}

// GlobalNew creates a global whose kind is fixed by v's tag.
func (s *Session) GlobalNew(v Value, mutable bool) (GlobalHandle, Result) {
	av, err := v.toAPI()
	if err != nil {
		return 0, s.fail(err)
	}
	h, err := s.globals.Insert(&globalEntry{g: store.NewGlobal(av, mutable)})
	if err != nil {
		return 0, s.fail(errors.Wrap(errors.PhaseBoundary, errors.KindDestroyed, err, "session closed"))
	}
	return GlobalHandle(h), OK
}

// GlobalGet returns the current value.
func (s *Session) GlobalGet(h GlobalHandle) (Value, Result) {
	g, err := s.global(h)
	if err != nil {
		return Value{}, s.fail(err)
	}
	return fromAPI(g.Get()), OK
}

// GlobalSet replaces the value. Immutable globals reject every write;
// mutable ones reject a value of another kind.
func (s *Session) GlobalSet(h GlobalHandle, v Value) Result {
	g, err := s.global(h)
	if err != nil {
		return s.fail(err)
	}
	av, err := v.toAPI()
	if err != nil {
		return s.fail(err)
	}
	if err := g.Set(av); err != nil {
		return s.fail(err)
	}
	return OK
}

// GlobalGetDescriptor returns kind and mutability.
func (s *Session) GlobalGetDescriptor(h GlobalHandle) (GlobalDescriptor, Result) {
	g, err := s.global(h)
	if err != nil {
		return GlobalDescriptor{}, s.fail(err)
	}
	d := g.Descriptor()
	return GlobalDescriptor{Mutable: d.Mutable, Kind: ValueTag(d.Kind)}, OK
}

// GlobalDestroy frees a global. It fails while an instance imports it.
func (s *Session) GlobalDestroy(h GlobalHandle) Result {
	_, err := s.globals.RemoveIf(resourceHandle(h), func(e *globalEntry) error {
		return e.g.Destroy()
	})
	if err != nil {
		return s.fail(removeErr("global", uint64(h), err))
	}
	return OK
}
