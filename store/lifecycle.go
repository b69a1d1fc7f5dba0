package store

import (
	"sync"

	"github.com/dejan-stankovic/wasmer/errors"
)

// lifecycle tracks who holds a memory, table, or global.
//
// Objects created by the host have no holders and are released with
// Destroy. Instances Acquire every object they import and Adopt every
// object they declare; Release drops a hold, and an adopted object frees
// itself once the last holder lets go.
type lifecycle struct {
	mu        sync.Mutex
	holders   int
	adopted   bool
	destroyed bool
}

// Acquire records an additional holder. It fails once the object has been
// destroyed.
func (l *lifecycle) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return errors.ErrDestroyed
	}
	l.holders++
	return nil
}

// Adopt makes the caller the owning holder: the object frees itself when
// the last holder releases it.
func (l *lifecycle) Adopt() {
	l.mu.Lock()
	l.adopted = true
	l.holders++
	l.mu.Unlock()
}

// Holders returns the number of instances currently holding the object.
func (l *lifecycle) Holders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders
}

// Destroyed reports whether the object has been released.
func (l *lifecycle) Destroyed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyed
}

// release drops one hold and reports whether the caller must free storage.
func (l *lifecycle) release() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders > 0 {
		l.holders--
	}
	if l.adopted && l.holders == 0 && !l.destroyed {
		l.destroyed = true
		return true
	}
	return false
}

// destroy marks an unshared object destroyed.
func (l *lifecycle) destroy(phase errors.Phase, what string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return errors.Destroyed(phase, what)
	}
	if l.holders > 0 {
		return errors.InUse(phase, what, l.holders)
	}
	l.destroyed = true
	return nil
}

func (l *lifecycle) check(phase errors.Phase, what string) error {
	if l.Destroyed() {
		return errors.Destroyed(phase, what)
	}
	return nil
}
