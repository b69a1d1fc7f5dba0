package store

import (
	"encoding/binary"

	"github.com/dejan-stankovic/wasmer"
	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
)

const (
	// PageSize is the size of a linear memory page in bytes.
	PageSize = 65536

	// MaxPages is the page count of a full 32-bit address space.
	MaxPages = 65536

	pageBits = 16
)

var (
	_ wasmer.Memory      = (*Memory)(nil)
	_ wasmer.MemorySizer = (*Memory)(nil)
)

// Memory is a page-granular linear memory.
//
// The slice returned by Data is a live view of the buffer. Grow may move the
// buffer; views taken before a Grow must not be used afterwards.
type Memory struct {
	lifecycle
	buf     []byte
	limits  api.Limits
	ceiling uint32
}

// MemoryOption configures NewMemory.
type MemoryOption func(*Memory)

// WithLimitPages caps growth at n pages even when the declared maximum is
// larger or absent.
func WithLimitPages(n uint32) MemoryOption {
	return func(m *Memory) {
		if n < m.ceiling {
			m.ceiling = n
		}
	}
}

// NewMemory allocates a zeroed memory of limits.Min pages.
func NewMemory(limits api.Limits, opts ...MemoryOption) (*Memory, error) {
	if !limits.Valid(MaxPages) {
		return nil, errors.InvalidLimits(errors.PhaseMemory, limits.Min, limits.Max, MaxPages)
	}
	m := &Memory{
		limits:  limits,
		ceiling: uint32(limits.Ceiling(MaxPages)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if limits.Min > m.ceiling {
		return nil, errors.InvalidLimits(errors.PhaseMemory, limits.Min, nil, uint64(m.ceiling))
	}
	m.buf = make([]byte, uint64(limits.Min)<<pageBits)
	return m, nil
}

// Grow adds delta zeroed pages and returns the previous size in pages.
// A failed grow leaves the memory unchanged.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	if err := m.check(errors.PhaseMemory, "memory"); err != nil {
		return 0, err
	}
	prev := m.Length()
	if uint64(prev)+uint64(delta) > uint64(m.ceiling) {
		return prev, errors.GrowFailed(errors.PhaseMemory, prev, delta, uint64(m.ceiling))
	}
	if delta > 0 {
		m.buf = append(m.buf, make([]byte, uint64(delta)<<pageBits)...)
	}
	return prev, nil
}

// Length returns the current size in pages.
func (m *Memory) Length() uint32 {
	return uint32(uint64(len(m.buf)) >> pageBits)
}

// Data returns the live buffer. See the type documentation for aliasing.
func (m *Memory) Data() []byte {
	return m.buf
}

// DataLength returns the buffer size in bytes. A full 4GiB memory reports
// its length saturated to the largest uint32.
func (m *Memory) DataLength() uint32 {
	if uint64(len(m.buf)) > 1<<32-1 {
		return 1<<32 - 1
	}
	return uint32(len(m.buf))
}

// Size returns the buffer size in bytes.
func (m *Memory) Size() uint32 {
	return m.DataLength()
}

// Limits returns the limits the memory was created with.
func (m *Memory) Limits() api.Limits {
	return m.limits
}

// MaxPages returns the effective growth ceiling in pages.
func (m *Memory) MaxPages() uint32 {
	return m.ceiling
}

// Destroy releases the buffer. It fails while an instance still holds the
// memory.
func (m *Memory) Destroy() error {
	if err := m.destroy(errors.PhaseMemory, "memory"); err != nil {
		return err
	}
	m.buf = nil
	return nil
}

// Release drops one holder; an adopted memory frees its buffer when the
// last holder is gone.
func (m *Memory) Release() {
	if m.release() {
		m.buf = nil
	}
}

func (m *Memory) bounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.buf)) {
		return errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset)+uint64(length), uint64(len(m.buf)))
	}
	return nil
}

// Read returns a view of length bytes at offset.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	if err := m.bounds(offset, length); err != nil {
		return nil, err
	}
	end := uint64(offset) + uint64(length)
	return m.buf[offset:end:end], nil
}

// Write copies data into memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if uint64(len(data)) > 1<<32-1 {
		return errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset)+uint64(len(data)), uint64(len(m.buf)))
	}
	if err := m.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.buf[offset:], data)
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	if err := m.bounds(offset, 1); err != nil {
		return 0, err
	}
	return m.buf[offset], nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	if err := m.bounds(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.buf[offset:]), nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if err := m.bounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	if err := m.bounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.buf[offset:]), nil
}

func (m *Memory) WriteU8(offset uint32, v uint8) error {
	if err := m.bounds(offset, 1); err != nil {
		return err
	}
	m.buf[offset] = v
	return nil
}

func (m *Memory) WriteU16(offset uint32, v uint16) error {
	if err := m.bounds(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.buf[offset:], v)
	return nil
}

func (m *Memory) WriteU32(offset uint32, v uint32) error {
	if err := m.bounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], v)
	return nil
}

func (m *Memory) WriteU64(offset uint32, v uint64) error {
	if err := m.bounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.buf[offset:], v)
	return nil
}
