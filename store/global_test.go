package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
)

// An immutable i32 global created with 5 rejects set(9) and still reads 5.
func TestGlobalImmutableRejectsSet(t *testing.T) {
	g := NewGlobal(api.I32(5), false)

	err := g.Set(api.I32(9))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMutability)
	assert.True(t, g.Get().Equal(api.I32(5)))
}

func TestGlobalSet(t *testing.T) {
	tests := []struct {
		name    string
		mutable bool
		set     api.Value
		want    error
	}{
		{"same kind", true, api.I64(-3), nil},
		{"wrong kind", true, api.I32(1), errors.ErrType},
		{"float into int", true, api.F64(1), errors.ErrType},
		{"immutable same kind", false, api.I64(-3), errors.ErrMutability},
		{"immutable wrong kind", false, api.F32(1), errors.ErrMutability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGlobal(api.I64(7), tt.mutable)
			err := g.Set(tt.set)
			if tt.want == nil {
				require.NoError(t, err)
				assert.True(t, g.Get().Equal(tt.set))
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, g.Get().Equal(api.I64(7)), "failed set changed the value")
		})
	}
}

func TestGlobalDescriptor(t *testing.T) {
	g := NewGlobal(api.F32(1.5), true)
	assert.Equal(t, api.GlobalDescriptor{Mutable: true, Kind: api.KindF32}, g.Descriptor())
	assert.Equal(t, "mut f32", g.Descriptor().String())
}

func TestGlobalRaw(t *testing.T) {
	g := NewGlobal(api.I32(0), true)
	g.SetRaw(0xFFFFFFFF_FFFFFFFF)
	v, err := g.Get().AsI32()
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)
	assert.Equal(t, uint64(0xFFFFFFFF), g.Raw())
}

func TestGlobalTypeIsFixed(t *testing.T) {
	kinds := []api.Kind{api.KindI32, api.KindI64, api.KindF32, api.KindF64}
	rapid.Check(t, func(t *rapid.T) {
		own := rapid.SampledFrom(kinds).Draw(t, "own")
		other := rapid.SampledFrom(kinds).Draw(t, "other")
		mutable := rapid.Bool().Draw(t, "mutable")
		bits := rapid.Uint64().Draw(t, "bits")

		initial, _ := api.FromRaw(own, 42)
		g := NewGlobal(initial, mutable)
		next, _ := api.FromRaw(other, bits)
		err := g.Set(next)

		switch {
		case !mutable:
			if !errors.Is(err, errors.ErrMutability) {
				t.Fatalf("immutable Set error = %v", err)
			}
		case own != other:
			if !errors.Is(err, errors.ErrType) {
				t.Fatalf("mismatched Set error = %v", err)
			}
		default:
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			if !g.Get().Equal(next) {
				t.Fatal("Set did not store the value")
			}
			return
		}
		if !g.Get().Equal(initial) {
			t.Fatal("failed Set changed the value")
		}
		if g.Kind() != own {
			t.Fatal("kind changed")
		}
	})
}
