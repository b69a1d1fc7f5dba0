package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
)

func TestNewMemory(t *testing.T) {
	tests := []struct {
		name    string
		limits  api.Limits
		opts    []MemoryOption
		wantErr bool
		pages   uint32
		ceiling uint32
	}{
		{name: "min only", limits: api.NewLimits(2), pages: 2, ceiling: MaxPages},
		{name: "bounded", limits: api.NewBoundedLimits(1, 3), pages: 1, ceiling: 3},
		{name: "zero pages", limits: api.NewLimits(0), pages: 0, ceiling: MaxPages},
		{name: "min above max", limits: api.NewBoundedLimits(4, 3), wantErr: true},
		{name: "min above 4GiB", limits: api.NewLimits(MaxPages + 1), wantErr: true},
		{name: "max above 4GiB", limits: api.NewBoundedLimits(1, MaxPages+1), wantErr: true},
		{name: "limit option", limits: api.NewLimits(1), opts: []MemoryOption{WithLimitPages(8)}, pages: 1, ceiling: 8},
		{name: "limit below min", limits: api.NewLimits(4), opts: []MemoryOption{WithLimitPages(2)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMemory(tt.limits, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrLimits)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pages, m.Length())
			assert.Equal(t, tt.pages*PageSize, m.DataLength())
			assert.Equal(t, tt.ceiling, m.MaxPages())
			for _, b := range m.Data() {
				if b != 0 {
					t.Fatal("new memory is not zeroed")
				}
			}
		})
	}
}

// Growing a {min:1, max:1} memory fails and leaves it at one page.
func TestMemoryGrowAtMaximum(t *testing.T) {
	m, err := NewMemory(api.NewBoundedLimits(1, 1))
	require.NoError(t, err)

	_, err = m.Grow(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLimits)
	assert.Equal(t, uint32(1), m.Length())
}

func TestMemoryGrowZeroFills(t *testing.T) {
	m, err := NewMemory(api.NewBoundedLimits(1, 4))
	require.NoError(t, err)
	require.NoError(t, m.WriteU32(PageSize-4, 0xDEADBEEF))

	prev, err := m.Grow(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), prev)
	assert.Equal(t, uint32(3), m.Length())

	v, err := m.ReadU32(PageSize - 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
	for _, b := range m.Data()[PageSize:] {
		if b != 0 {
			t.Fatal("grown pages are not zeroed")
		}
	}

	prev, err = m.Grow(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), prev)
}

// A view taken before Grow keeps the old length and no longer tracks the
// memory.
func TestMemoryDataStaleAfterGrow(t *testing.T) {
	m, err := NewMemory(api.NewLimits(1))
	require.NoError(t, err)

	before := m.Data()
	require.Len(t, before, PageSize)

	_, err = m.Grow(1)
	require.NoError(t, err)

	after := m.Data()
	assert.Len(t, before, PageSize, "old view must not change length")
	assert.Len(t, after, 2*PageSize)

	require.NoError(t, m.WriteU8(PageSize+1, 7))
	assert.Equal(t, byte(7), after[PageSize+1])
}

func TestMemoryBounds(t *testing.T) {
	m, err := NewMemory(api.NewLimits(1))
	require.NoError(t, err)

	require.NoError(t, m.Write(PageSize-3, []byte{1, 2, 3}))
	got, err := m.Read(PageSize-3, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, m.WriteU64(8, 0x0102030405060708))
	u16, err := m.ReadU16(8)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0708), u16)
	u64, err := m.ReadU64(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	require.NoError(t, m.WriteU16(20, 0xBEEF))
	u8, err := m.ReadU8(20)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xEF), u8)

	for name, fn := range map[string]func() error{
		"read past end":  func() error { _, err := m.Read(PageSize-2, 3); return err },
		"read overflow":  func() error { _, err := m.Read(0xFFFFFFFF, 2); return err },
		"write past end": func() error { return m.Write(PageSize, []byte{0}) },
		"u32 at end":     func() error { _, err := m.ReadU32(PageSize - 3); return err },
		"u64 at end":     func() error { return m.WriteU64(PageSize-7, 1) },
		"u8 at end":      func() error { return m.WriteU8(PageSize, 1) },
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, fn(), errors.ErrOutOfBounds)
		})
	}
}

func TestMemoryGrowProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		min := rapid.Uint32Range(0, 4).Draw(t, "min")
		var limits api.Limits
		hasMax := rapid.Bool().Draw(t, "hasMax")
		if hasMax {
			limits = api.NewBoundedLimits(min, rapid.Uint32Range(min, 16).Draw(t, "max"))
		} else {
			limits = api.NewLimits(min)
		}
		m, err := NewMemory(limits, WithLimitPages(32))
		if err != nil {
			t.Fatalf("NewMemory: %v", err)
		}

		deltas := rapid.SliceOfN(rapid.Uint32Range(0, 6), 0, 12).Draw(t, "deltas")
		for _, d := range deltas {
			before := m.Length()
			prev, err := m.Grow(d)
			wantFail := uint64(before)+uint64(d) > uint64(m.MaxPages())
			if wantFail {
				if err == nil {
					t.Fatalf("Grow(%d) at %d/%d succeeded", d, before, m.MaxPages())
				}
				if m.Length() != before {
					t.Fatalf("failed Grow changed length %d -> %d", before, m.Length())
				}
				continue
			}
			if err != nil {
				t.Fatalf("Grow(%d) at %d: %v", d, before, err)
			}
			if prev != before || m.Length() != before+d {
				t.Fatalf("Grow(%d): prev=%d length=%d, want %d and %d", d, prev, m.Length(), before, before+d)
			}
			if m.DataLength() != m.Length()*PageSize {
				t.Fatalf("DataLength %d does not match %d pages", m.DataLength(), m.Length())
			}
		}
	})
}

func TestMemoryGrowOverflow(t *testing.T) {
	m, err := NewMemory(api.NewLimits(1))
	require.NoError(t, err)
	_, err = m.Grow(0xFFFFFFFF)
	assert.ErrorIs(t, err, errors.ErrLimits)
	assert.Equal(t, uint32(1), m.Length())
}
