package store

import (
	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
)

const (
	// MaxTableLimit is the largest limit a table type may declare.
	MaxTableLimit = 1<<32 - 1
	// MaxTableElements caps the slots a table may actually hold. Declared
	// maxima above it are accepted, growth past it is not.
	MaxTableElements = 10_000_000
)

// Table is a growable array of function references. Empty slots are nil.
type Table struct {
	lifecycle
	elems  []*Function
	limits api.Limits
}

// NewTable allocates limits.Min null slots.
func NewTable(limits api.Limits) (*Table, error) {
	if !limits.Valid(MaxTableLimit) {
		return nil, errors.InvalidLimits(errors.PhaseTable, limits.Min, limits.Max, MaxTableLimit)
	}
	if limits.Min > MaxTableElements {
		return nil, errors.InvalidLimits(errors.PhaseTable, limits.Min, nil, MaxTableElements)
	}
	return &Table{
		elems:  make([]*Function, limits.Min),
		limits: limits,
	}, nil
}

// Grow appends delta null slots and returns the previous length. A failed
// grow leaves the table unchanged.
func (t *Table) Grow(delta uint32) (uint32, error) {
	if err := t.check(errors.PhaseTable, "table"); err != nil {
		return 0, err
	}
	prev := t.Length()
	ceiling := t.limits.Ceiling(MaxTableElements)
	if uint64(prev)+uint64(delta) > ceiling {
		return prev, errors.GrowFailed(errors.PhaseTable, prev, delta, ceiling)
	}
	if delta > 0 {
		t.elems = append(t.elems, make([]*Function, delta)...)
	}
	return prev, nil
}

// Length returns the current number of slots.
func (t *Table) Length() uint32 {
	return uint32(len(t.elems))
}

// Limits returns the limits the table was created with.
func (t *Table) Limits() api.Limits {
	return t.limits
}

// Get returns the function in slot i, nil for an empty slot.
func (t *Table) Get(i uint32) (*Function, error) {
	if uint64(i) >= uint64(len(t.elems)) {
		return nil, errors.OutOfBounds(errors.PhaseTable, nil, uint64(i), uint64(len(t.elems)))
	}
	return t.elems[i], nil
}

// Set stores f (or nil) in slot i.
func (t *Table) Set(i uint32, f *Function) error {
	if uint64(i) >= uint64(len(t.elems)) {
		return errors.OutOfBounds(errors.PhaseTable, nil, uint64(i), uint64(len(t.elems)))
	}
	t.elems[i] = f
	return nil
}

// Destroy releases the slots. It fails while an instance still holds the
// table.
func (t *Table) Destroy() error {
	if err := t.destroy(errors.PhaseTable, "table"); err != nil {
		return err
	}
	t.elems = nil
	return nil
}

// Release drops one holder; an adopted table frees its slots when the last
// holder is gone.
func (t *Table) Release() {
	if t.release() {
		t.elems = nil
	}
}
