package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
)

func TestTableCreateAndGrow(t *testing.T) {
	tbl, err := NewTable(api.NewBoundedLimits(2, 4))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tbl.Length())

	for i := uint32(0); i < tbl.Length(); i++ {
		f, err := tbl.Get(i)
		require.NoError(t, err)
		assert.Nil(t, f, "slot %d should start empty", i)
	}

	prev, err := tbl.Grow(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), prev)
	assert.Equal(t, uint32(4), tbl.Length())

	_, err = tbl.Grow(1)
	assert.ErrorIs(t, err, errors.ErrLimits)
	assert.Equal(t, uint32(4), tbl.Length())
}

func TestTableInvalidLimits(t *testing.T) {
	_, err := NewTable(api.NewBoundedLimits(3, 1))
	assert.ErrorIs(t, err, errors.ErrLimits)
}

func TestTableElementCeiling(t *testing.T) {
	_, err := NewTable(api.NewLimits(MaxTableElements + 1))
	assert.ErrorIs(t, err, errors.ErrLimits)
	_, err = NewTable(api.NewLimits(0xFFFFFFFF))
	assert.ErrorIs(t, err, errors.ErrLimits)

	// A declared maximum past the ceiling is legal; growth still stops there.
	tbl, err := NewTable(api.NewBoundedLimits(0, 0xFFFFFFFF))
	require.NoError(t, err)
	_, err = tbl.Grow(MaxTableElements + 1)
	assert.ErrorIs(t, err, errors.ErrLimits)
	assert.Zero(t, tbl.Length())
}

// Grow by the full counter range must neither wrap nor allocate.
func TestTableGrowOverflow(t *testing.T) {
	tbl, err := NewTable(api.NewLimits(3))
	require.NoError(t, err)

	prev, err := tbl.Grow(0xFFFFFFFF)
	assert.ErrorIs(t, err, errors.ErrLimits)
	assert.Equal(t, uint32(3), prev)
	assert.Equal(t, uint32(3), tbl.Length())

	_, err = tbl.Grow(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), tbl.Length())
}

func TestTableGetSet(t *testing.T) {
	tbl, err := NewTable(api.NewLimits(1))
	require.NoError(t, err)

	f := &Function{Name: "f", Type: api.FuncType{Results: []api.Kind{api.KindI32}}}
	require.NoError(t, tbl.Set(0, f))
	got, err := tbl.Get(0)
	require.NoError(t, err)
	assert.Same(t, f, got)

	assert.ErrorIs(t, tbl.Set(1, f), errors.ErrOutOfBounds)
	_, err = tbl.Get(1)
	assert.ErrorIs(t, err, errors.ErrOutOfBounds)

	require.NoError(t, tbl.Set(0, nil))
	got, _ = tbl.Get(0)
	assert.Nil(t, got)
}

func TestTableGrowProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		min := rapid.Uint32Range(0, 8).Draw(t, "min")
		max := rapid.Uint32Range(min, 64).Draw(t, "max")
		tbl, err := NewTable(api.NewBoundedLimits(min, max))
		if err != nil {
			t.Fatalf("NewTable: %v", err)
		}
		for _, d := range rapid.SliceOfN(rapid.Uint32Range(0, 20), 0, 10).Draw(t, "deltas") {
			before := tbl.Length()
			_, err := tbl.Grow(d)
			if uint64(before)+uint64(d) > uint64(max) {
				if err == nil || tbl.Length() != before {
					t.Fatalf("Grow(%d) at %d/%d: err=%v length=%d", d, before, max, err, tbl.Length())
				}
				continue
			}
			if err != nil || tbl.Length() != before+d {
				t.Fatalf("Grow(%d) at %d: err=%v length=%d", d, before, err, tbl.Length())
			}
		}
	})
}
