package capi

import (
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

type memoryEntry struct {
	mem *store.Memory
	// view is set for an instance's memory reached through its context;
	// such handles never destroy the memory.
	view bool
}

func (e *memoryEntry) Drop() error {
	if e.view || e.mem.Destroyed() {
		return nil
	}
	return e.mem.Destroy()
}

func (s *Session) memory(h MemoryHandle) (*store.Memory, error) {
	e, ok := s.memories.Get(resourceHandle(h))
	if !ok {
		return nil, badHandle("memory", uint64(h))
	}
	if e.mem.Destroyed() {
		return nil, errors.Destroyed(errors.PhaseMemory, "memory")
	}
	return e.mem, nil
}

// MemoryNew creates a zeroed memory of limits.Min pages owned by the
// caller until MemoryDestroy.
func (s *Session) MemoryNew(limits Limits) (MemoryHandle, Result) {
	mem, err := store.NewMemory(limits.toAPI(), store.WithLimitPages(s.rt.Config().MemoryLimitPages))
	if err != nil {
		return 0, s.fail(err)
	}
	h, err := s.memories.Insert(&memoryEntry{mem: mem})
	if err != nil {
		return 0, s.fail(errors.Wrap(errors.PhaseBoundary, errors.KindDestroyed, err, "session closed"))
	}
	return MemoryHandle(h), OK
}

// MemoryGrow adds delta pages. On failure the size is unchanged.
func (s *Session) MemoryGrow(h MemoryHandle, delta uint32) Result {
	mem, err := s.memory(h)
	if err != nil {
		return s.fail(err)
	}
	if _, err := mem.Grow(delta); err != nil {
		return s.fail(err)
	}
	return OK
}

// MemoryLength returns the size in pages, or 0 with a recorded error for
// an invalid handle.
func (s *Session) MemoryLength(h MemoryHandle) uint32 {
	mem, err := s.memory(h)
	if err != nil {
		s.fail(err)
		return 0
	}
	return mem.Length()
}

// MemoryData returns the live buffer. Any grow, by the host or by guest
// code, may move it: re-fetch after growth instead of keeping the slice.
func (s *Session) MemoryData(h MemoryHandle) []byte {
	mem, err := s.memory(h)
	if err != nil {
		s.fail(err)
		return nil
	}
	return mem.Data()
}

// MemoryDataLength returns the buffer size in bytes.
func (s *Session) MemoryDataLength(h MemoryHandle) uint32 {
	mem, err := s.memory(h)
	if err != nil {
		s.fail(err)
		return 0
	}
	return mem.DataLength()
}

// MemoryDestroy frees a memory created with MemoryNew. It fails while an
// instance imports the memory, and for handles obtained from an instance
// context.
func (s *Session) MemoryDestroy(h MemoryHandle) Result {
	_, err := s.memories.RemoveIf(resourceHandle(h), func(e *memoryEntry) error {
		if e.view {
			return errors.New(errors.PhaseMemory, errors.KindInvalidState).
				Detail("memory belongs to an instance and is freed with it").
				Build()
		}
		return e.mem.Destroy()
	})
	if err != nil {
		return s.fail(removeErr("memory", uint64(h), err))
	}
	return OK
}
