package capi

import (
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

type tableEntry struct {
	tbl *store.Table
}

func (e *tableEntry) Drop() error {
	if e.tbl.Destroyed() {
		return nil
	}
	return e.tbl.Destroy()
}

func (s *Session) tableOf(h TableHandle) (*store.Table, error) {
	e, ok := s.tables.Get(resourceHandle(h))
	if !ok {
		return nil, badHandle("table", uint64(h))
	}
	return e.tbl, nil
}

// TableNew creates a table of limits.Min null elements.
func (s *Session) TableNew(limits Limits) (TableHandle, Result) {
	tbl, err := store.NewTable(limits.toAPI())
	if err != nil {
		return 0, s.fail(err)
	}
	h, err := s.tables.Insert(&tableEntry{tbl: tbl})
	if err != nil {
		return 0, s.fail(errors.Wrap(errors.PhaseBoundary, errors.KindDestroyed, err, "session closed"))
	}
	return TableHandle(h), OK
}

// TableGrow appends delta null elements. On failure the length is
// unchanged.
func (s *Session) TableGrow(h TableHandle, delta uint32) Result {
	tbl, err := s.tableOf(h)
	if err != nil {
		return s.fail(err)
	}
	if _, err := tbl.Grow(delta); err != nil {
		return s.fail(err)
	}
	return OK
}

// TableLength returns the element count, or 0 with a recorded error for
// an invalid handle.
func (s *Session) TableLength(h TableHandle) uint32 {
	tbl, err := s.tableOf(h)
	if err != nil {
		s.fail(err)
		return 0
	}
	return tbl.Length()
}

// TableDestroy frees a table. It fails while an instance imports it.
func (s *Session) TableDestroy(h TableHandle) Result {
	_, err := s.tables.RemoveIf(resourceHandle(h), func(e *tableEntry) error {
		return e.tbl.Destroy()
	})
	if err != nil {
		return s.fail(removeErr("table", uint64(h), err))
	}
	return OK
}
