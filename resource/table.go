package resource

import (
	"sync"
)

// Table maps handles to typed values and notifies observers of their
// lifecycle.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{
		backend: NewLocalBackend(),
	}
}

// Insert adds a value and returns its handle.
func (t *Table) Insert(typeID uint32, value any) (Handle, error) {
	handle, err := t.backend.Create(typeID, value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return handle, nil
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected type.
func (t *Table) GetTyped(handle Handle, typeID uint32) (any, bool) {
	actualTypeID, ok := t.backend.TypeID(handle)
	if !ok || actualTypeID != typeID {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Borrow pins a value of the expected type until the returned function is
// called. Remove fails with ErrOutstandingBorrow meanwhile.
func (t *Table) Borrow(handle Handle, typeID uint32) (any, func(), bool) {
	value, ok := t.GetTyped(handle, typeID)
	if !ok || !t.backend.Borrow(handle) {
		return nil, nil, false
	}
	t.notify(Event{Type: EventBorrowed, Handle: handle, TypeID: typeID, Value: value})

	var once sync.Once
	return value, func() {
		once.Do(func() {
			t.backend.ReturnBorrow(handle)
			t.notify(Event{Type: EventBorrowReturned, Handle: handle, TypeID: typeID, Value: value})
		})
	}, true
}

// Remove drops a value of the expected type and returns it.
func (t *Table) Remove(handle Handle, typeID uint32) (any, error) {
	return t.RemoveIf(handle, typeID, nil)
}

// RemoveIf drops a value only if check accepts it; see LocalBackend.DropIf.
func (t *Table) RemoveIf(handle Handle, typeID uint32, check func(any) error) (any, error) {
	if actual, ok := t.backend.TypeID(handle); !ok || actual != typeID {
		return nil, ErrStaleHandle
	}
	value, err := t.backend.DropIf(handle, check)
	if err != nil {
		return nil, err
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return value, nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of active resources.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Close invalidates every handle and drops the remaining values; see
// LocalBackend.Close.
func (t *Table) Close() error {
	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// Typed is a view of a Table holding values of one type. Handles of other
// types are rejected as if stale.
type Typed[T any] struct {
	table  *Table
	typeID uint32
}

// NewTyped returns the view of table for typeID.
func NewTyped[T any](table *Table, typeID uint32) Typed[T] {
	return Typed[T]{table: table, typeID: typeID}
}

// Insert adds a value and returns its handle.
func (v Typed[T]) Insert(value T) (Handle, error) {
	return v.table.Insert(v.typeID, value)
}

// Get retrieves a value by handle.
func (v Typed[T]) Get(handle Handle) (T, bool) {
	raw, ok := v.table.GetTyped(handle, v.typeID)
	if !ok {
		var zero T
		return zero, false
	}
	return raw.(T), true
}

// Borrow pins a value; see Table.Borrow.
func (v Typed[T]) Borrow(handle Handle) (T, func(), bool) {
	raw, done, ok := v.table.Borrow(handle, v.typeID)
	if !ok {
		var zero T
		return zero, nil, false
	}
	return raw.(T), done, true
}

// Remove drops a value and returns it.
func (v Typed[T]) Remove(handle Handle) (T, error) {
	raw, err := v.table.Remove(handle, v.typeID)
	if err != nil {
		var zero T
		return zero, err
	}
	return raw.(T), nil
}

// RemoveIf drops a value once check, typically the value's own teardown,
// succeeds. On a check error the handle stays valid.
func (v Typed[T]) RemoveIf(handle Handle, check func(T) error) (T, error) {
	raw, err := v.table.RemoveIf(handle, v.typeID, func(value any) error {
		return check(value.(T))
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return raw.(T), nil
}

// Each iterates over the values of this type.
func (v Typed[T]) Each(fn func(Handle, T) bool) {
	v.table.backend.Each(func(h Handle, typeID uint32, value any) bool {
		if typeID != v.typeID {
			return true
		}
		return fn(h, value.(T))
	})
}
