package resource

import (
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

var (
	ErrClosed            = errors.New("resource backend closed")
	ErrStaleHandle       = errors.New("stale or unknown handle")
	ErrOutstandingBorrow = errors.New("cannot drop resource with outstanding borrows")
)

// arenas hands out arena tags. Tags repeat only after 65536 backends.
var arenas atomic.Uint32

// LocalBackend is an in-memory generational arena with borrow tracking.
type LocalBackend struct {
	entries  []entry
	freeList []uint32
	mu       sync.RWMutex
	arena    uint16
	closed   bool
}

type entry struct {
	value       any
	typeID      uint32
	gen         uint16
	borrowCount uint32
	valid       bool
}

// NewLocalBackend creates a new in-memory backend with its own arena tag.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
		arena:    uint16(arenas.Add(1)),
	}
}

// lookup returns the live entry for handle. Callers hold b.mu.
func (b *LocalBackend) lookup(handle Handle) (*entry, bool) {
	slot, ok := handle.slot()
	if !ok || handle.arena() != b.arena || int(slot) >= len(b.entries) {
		return nil, false
	}
	e := &b.entries[slot]
	if !e.valid || e.gen != handle.generation() {
		return nil, false
	}
	return e, true
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(typeID uint32, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	if n := len(b.freeList); n > 0 {
		slot := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		e := &b.entries[slot]
		e.value, e.typeID, e.valid = value, typeID, true
		return makeHandle(b.arena, slot, e.gen), nil
	}

	if uint64(len(b.entries)) >= math.MaxUint32 {
		return 0, errors.New("resource backend full")
	}
	b.entries = append(b.entries, entry{typeID: typeID, value: value, valid: true})
	return makeHandle(b.arena, uint32(len(b.entries)-1), 0), nil
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// TypeID returns the type ID for a handle.
func (b *LocalBackend) TypeID(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return 0, false
	}
	return e.typeID, true
}

// Drop removes a resource and returns its value. The slot's generation
// moves on, so handle and every copy of it stay invalid afterwards.
func (b *LocalBackend) Drop(handle Handle) (any, error) {
	return b.DropIf(handle, nil)
}

// DropIf is Drop guarded by check, which runs under the backend lock
// before the slot is released. A check error leaves the handle live.
func (b *LocalBackend) DropIf(handle Handle, check func(any) error) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, ErrStaleHandle
	}
	if e.borrowCount > 0 {
		return nil, ErrOutstandingBorrow
	}
	if check != nil {
		if err := check(e.value); err != nil {
			return nil, err
		}
	}

	value := e.value
	e.valid = false
	e.value = nil
	if e.gen < math.MaxUint16 {
		e.gen++
		slot, _ := handle.slot()
		b.freeList = append(b.freeList, slot)
	}
	// A slot whose generation is exhausted is retired rather than reused.
	return value, nil
}

// Borrow increments the borrow count for a handle.
func (b *LocalBackend) Borrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok {
		return false
	}
	e.borrowCount++
	return true
}

// ReturnBorrow decrements the borrow count for a handle.
func (b *LocalBackend) ReturnBorrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok || e.borrowCount == 0 {
		return false
	}
	e.borrowCount--
	return true
}

// Close invalidates every handle. Remaining values implementing Dropper
// are dropped in ascending type ID order, then slot order within a type;
// their errors are combined.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var live []entry
	for i := range b.entries {
		if b.entries[i].valid {
			live = append(live, b.entries[i])
		}
	}
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	sort.SliceStable(live, func(i, j int) bool { return live[i].typeID < live[j].typeID })

	var err error
	for _, e := range live {
		if d, ok := e.value.(Dropper); ok {
			err = multierr.Append(err, d.Drop())
		}
	}
	return err
}

// Len returns the number of active resources.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all active resources.
func (b *LocalBackend) Each(fn func(Handle, uint32, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(makeHandle(b.arena, uint32(i), e.gen), e.typeID, e.value) {
				break
			}
		}
	}
}
