package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/internal/wasmtest"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

func ptrTo[T any](v T) *T { return &v }

func logImports(t *testing.T) *Imports {
	t.Helper()
	im := NewImports()
	require.NoError(t, im.Namespace("env").DefineGoFunc("log", func(int32) {}))
	return im
}

func TestLinkFunction(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "log", []wasm.ValType{wasmtest.I32}, nil)

	res, err := Link(b.Module(), logImports(t))
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, "env.log", res.Functions[0].Name)
	assert.True(t, res.Functions[0].IsHost())
}

func TestLinkNilImports(t *testing.T) {
	res, err := Link(wasmtest.New().Module(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Functions)

	b := wasmtest.New()
	b.ImportFunc("env", "log", []wasm.ValType{wasmtest.I32}, nil)
	_, err = Link(b.Module(), nil)
	assert.ErrorIs(t, err, errors.ErrLink)
}

func TestLinkCollectsAllMissing(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "log", []wasm.ValType{wasmtest.I32}, nil)
	b.ImportFunc("env", "abort", nil, nil)
	b.ImportMemory("env", "memory", 1, nil)
	b.ImportGlobal("wasi", "flag", wasmtest.I32, false)

	_, err := Link(b.Module(), logImports(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLink)

	var unresolved *errors.UnresolvedImportsError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []errors.UnresolvedImport{
		{Namespace: "env", Name: "abort", Kind: "func"},
		{Namespace: "env", Name: "memory", Kind: "memory"},
		{Namespace: "wasi", Name: "flag", Kind: "global"},
	}, unresolved.Imports)
}

func TestLinkMismatch(t *testing.T) {
	mem1, err := store.NewMemory(api.NewLimits(1))
	require.NoError(t, err)
	mem2of3, err := store.NewMemory(api.NewBoundedLimits(2, 3))
	require.NoError(t, err)
	tbl, err := store.NewTable(api.NewBoundedLimits(1, 10))
	require.NoError(t, err)

	im := NewImports()
	env := im.Namespace("env")
	require.NoError(t, env.DefineGoFunc("f", func(int64) int32 { return 0 }))
	require.NoError(t, env.DefineMemory("mem1", mem1))
	require.NoError(t, env.DefineMemory("mem2of3", mem2of3))
	require.NoError(t, env.DefineTable("tbl", tbl))
	require.NoError(t, env.DefineGlobal("g", store.NewGlobal(api.I32(0), false)))
	require.NoError(t, env.DefineGlobal("gmut", store.NewGlobal(api.I32(0), true)))

	tests := []struct {
		name  string
		build func(b *wasmtest.Builder)
		ok    bool
	}{
		{"func signature", func(b *wasmtest.Builder) { b.ImportFunc("env", "f", []wasm.ValType{wasmtest.I32}, []wasm.ValType{wasmtest.I32}) }, false},
		{"func ok", func(b *wasmtest.Builder) { b.ImportFunc("env", "f", []wasm.ValType{wasmtest.I64}, []wasm.ValType{wasmtest.I32}) }, true},
		{"func as memory", func(b *wasmtest.Builder) { b.ImportMemory("env", "f", 0, nil) }, false},
		{"memory ok", func(b *wasmtest.Builder) { b.ImportMemory("env", "mem1", 1, nil) }, true},
		{"memory too small", func(b *wasmtest.Builder) { b.ImportMemory("env", "mem1", 2, nil) }, false},
		{"memory needs max", func(b *wasmtest.Builder) { b.ImportMemory("env", "mem1", 1, ptrTo(uint32(4))) }, false},
		{"memory max fits", func(b *wasmtest.Builder) { b.ImportMemory("env", "mem2of3", 1, ptrTo(uint32(4))) }, true},
		{"memory max too large", func(b *wasmtest.Builder) { b.ImportMemory("env", "mem2of3", 1, ptrTo(uint32(2))) }, false},
		{"table ok", func(b *wasmtest.Builder) { b.ImportTable("env", "tbl", 1, ptrTo(uint32(10))) }, true},
		{"table too small", func(b *wasmtest.Builder) { b.ImportTable("env", "tbl", 2, nil) }, false},
		{"global ok", func(b *wasmtest.Builder) { b.ImportGlobal("env", "g", wasmtest.I32, false) }, true},
		{"global kind", func(b *wasmtest.Builder) { b.ImportGlobal("env", "g", wasmtest.F32, false) }, false},
		{"global mutability", func(b *wasmtest.Builder) { b.ImportGlobal("env", "gmut", wasmtest.I32, false) }, false},
		{"global mutable ok", func(b *wasmtest.Builder) { b.ImportGlobal("env", "gmut", wasmtest.I32, true) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := wasmtest.New()
			tt.build(b)
			_, err := Link(b.Module(), im)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrLink)

			var le *errors.Error
			require.True(t, errors.As(err, &le))
			assert.Equal(t, errors.PhaseLink, le.Phase)
			assert.NotEmpty(t, le.Expected)
			assert.NotEmpty(t, le.Actual)
		})
	}
}

func TestLinkDestroyedObjects(t *testing.T) {
	mem, err := store.NewMemory(api.NewLimits(1))
	require.NoError(t, err)
	im := NewImports()
	require.NoError(t, im.Namespace("env").DefineMemory("memory", mem))
	require.NoError(t, mem.Destroy())

	b := wasmtest.New()
	b.ImportMemory("env", "memory", 1, nil)
	_, err = Link(b.Module(), im)
	assert.ErrorIs(t, err, errors.ErrDestroyed)

	require.NoError(t, im.Close())
	_, err = Link(wasmtest.New().Module(), im)
	assert.ErrorIs(t, err, errors.ErrDestroyed)
}

func TestDefineInstance(t *testing.T) {
	peer := store.NewModuleInstance("peer", &wasm.Module{})
	mem, err := store.NewMemory(api.NewLimits(1))
	require.NoError(t, err)
	g := store.NewGlobal(api.I64(9), false)
	f := &store.Function{Name: "peer.run", Module: peer}
	peer.Memory = mem
	peer.Globals = []*store.Global{g}
	peer.Functions = []*store.Function{f}
	peer.Exports["memory"] = store.Export{Name: "memory", Kind: api.ExternMemory}
	peer.Exports["g"] = store.Export{Name: "g", Kind: api.ExternGlobal}
	peer.Exports["run"] = store.Export{Name: "run", Kind: api.ExternFunc}

	im := NewImports()
	require.NoError(t, im.DefineInstance("peer", peer))
	assert.Equal(t, []string{"g", "memory", "run"}, im.Namespace("peer").Names())

	b, ok := im.Lookup("peer", "run")
	require.True(t, ok)
	assert.Same(t, f, b.Func)
	b, _ = im.Lookup("peer", "memory")
	assert.Same(t, mem, b.Memory)

	assert.ErrorIs(t, im.DefineInstance("", peer), errors.ErrInvalidInput)
	assert.ErrorIs(t, im.DefineInstance("peer", nil), errors.ErrInvalidInput)
}
