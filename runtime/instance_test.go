package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/internal/wasmtest"
	"github.com/dejan-stankovic/wasmer/lasterror"
	"github.com/dejan-stankovic/wasmer/linker"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

var i32 = []wasm.ValType{wasmtest.I32}

func mustInstantiate(t *testing.T, rt *Runtime, data []byte, imports *linker.Imports) *Instance {
	t.Helper()
	inst, err := rt.Instantiate(context.Background(), data, imports)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	t.Cleanup(func() { inst.Close(context.Background()) })
	return inst
}

func TestCall(t *testing.T) {
	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, wasmtest.AddModule(), nil)

	tests := []struct {
		name   string
		fn     string
		params []api.Value
		want   []api.Value
		err    error
	}{
		{name: "ok", fn: "add", params: []api.Value{api.I32(2), api.I32(40)}, want: []api.Value{api.I32(42)}},
		{name: "wraps", fn: "add", params: []api.Value{api.I32(-1), api.I32(1)}, want: []api.Value{api.I32(0)}},
		{name: "unknown export", fn: "sub", err: errors.ErrNotFound},
		{name: "too few params", fn: "add", params: []api.Value{api.I32(1)}, err: errors.ErrArity},
		{name: "too many params", fn: "add", params: []api.Value{api.I32(1), api.I32(2), api.I32(3)}, err: errors.ErrArity},
		{name: "wrong kind", fn: "add", params: []api.Value{api.I32(1), api.I64(2)}, err: errors.ErrType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, ch := lasterror.WithChannel(context.Background())
			got, err := inst.Call(ctx, tt.fn, tt.params...)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				msg, ok := ch.Message()
				require.True(t, ok)
				assert.Equal(t, err.Error(), msg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, ch.Length())
		})
	}
}

func TestCallTypeErrorNamesParameter(t *testing.T) {
	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, wasmtest.AddModule(), nil)

	_, err := inst.Call(context.Background(), "add", api.I32(1), api.F32(2))
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindTypeMismatch, e.Kind)
	assert.Equal(t, []string{"add", "param 1"}, e.Path)
	assert.Equal(t, "i32", e.Expected)
	assert.Equal(t, "f32", e.Actual)
}

func TestCallTrap(t *testing.T) {
	b := wasmtest.New()
	div := b.Func([]wasm.ValType{wasmtest.I32, wasmtest.I32}, i32, nil,
		wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.Op(wasm.OpI32DivS))
	b.ExportFunc("div", div)

	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, b.Bytes(), nil)
	ctx, ch := lasterror.WithChannel(context.Background())

	got, err := inst.Call(ctx, "div", api.I32(7), api.I32(2))
	require.NoError(t, err)
	assert.Equal(t, []api.Value{api.I32(3)}, got)

	_, err = inst.Call(ctx, "div", api.I32(1), api.I32(0))
	require.ErrorIs(t, err, errors.ErrTrap)
	require.ErrorIs(t, err, engine.NewTrap(engine.TrapIntegerDivideByZero))
	msg, ok := ch.Message()
	require.True(t, ok)
	assert.Contains(t, msg, "div")

	// A trap leaves the instance usable.
	got, err = inst.Call(ctx, "div", api.I32(9), api.I32(3))
	require.NoError(t, err)
	assert.Equal(t, []api.Value{api.I32(3)}, got)
	assert.Equal(t, StateReady, inst.State())
}

func TestCallInto(t *testing.T) {
	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, wasmtest.AddModule(), nil)
	ctx := context.Background()

	results := make([]api.Value, 1)
	require.NoError(t, inst.CallInto(ctx, "add", []api.Value{api.I32(20), api.I32(22)}, results))
	assert.Equal(t, api.I32(42), results[0])

	err := inst.CallInto(ctx, "add", []api.Value{api.I32(1), api.I32(2)}, make([]api.Value, 2))
	assert.ErrorIs(t, err, errors.ErrArity)

	err = inst.CallInto(ctx, "missing", nil, nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCallCancelled(t *testing.T) {
	b := wasmtest.New()
	spin := b.Func(nil, nil, nil,
		wasmtest.Loop(wasm.BlockTypeVoid), wasmtest.Br(0), wasmtest.Op(wasm.OpEnd))
	b.ExportFunc("spin", spin)

	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, b.Bytes(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inst.Call(ctx, "spin")
	assert.ErrorIs(t, err, errors.ErrTrap)
	assert.ErrorIs(t, err, engine.NewTrap(engine.TrapInterrupted))
}

func TestClosedInstance(t *testing.T) {
	rt := newRuntime(t)
	ctx, ch := lasterror.WithChannel(context.Background())
	inst, err := rt.Instantiate(ctx, wasmtest.MemoryModule(1, nil, nil), nil)
	require.NoError(t, err)

	mem, err := inst.Memory()
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx))

	assert.True(t, mem.Destroyed(), "declared memory outlived its only holder")
	_, err = inst.Call(ctx, "anything")
	assert.ErrorIs(t, err, errors.ErrDestroyed)
	assert.Positive(t, ch.Length())
	_, err = inst.Memory()
	assert.ErrorIs(t, err, errors.ErrDestroyed)
	_, err = inst.Global("g")
	assert.ErrorIs(t, err, errors.ErrDestroyed)
}

func TestExports(t *testing.T) {
	b := wasmtest.New().Memory(1, nil).Table(2, nil)
	g := b.Global(wasmtest.I64, true, wasm.I64ConstExpr(-3))
	f := b.Func(nil, i32, nil, wasmtest.I32Const(1))
	b.ExportFunc("one", f)
	b.Export("memory", wasm.KindMemory, 0)
	b.Export("table", wasm.KindTable, 0)
	b.Export("g", wasm.KindGlobal, g)
	b.ExportFunc("also_one", f)

	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, b.Bytes(), nil)

	assert.Equal(t, []Export{
		{Name: "one", Kind: api.ExternFunc},
		{Name: "memory", Kind: api.ExternMemory},
		{Name: "table", Kind: api.ExternTable},
		{Name: "g", Kind: api.ExternGlobal},
		{Name: "also_one", Kind: api.ExternFunc},
	}, inst.Exports())

	ft, ok := inst.ExportedFunction("also_one")
	require.True(t, ok)
	assert.True(t, ft.Equal(api.FuncType{Results: []api.Kind{api.KindI32}}), "got %s", ft)
	_, ok = inst.ExportedFunction("memory")
	assert.False(t, ok)

	glob, err := inst.Global("g")
	require.NoError(t, err)
	assert.Equal(t, api.I64(-3), glob.Get())
	require.NoError(t, glob.Set(api.I64(8)))
	assert.Equal(t, api.I64(8), glob.Get())

	tbl, err := inst.Table()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tbl.Length())
}

func TestSharedHostMemory(t *testing.T) {
	ctx := context.Background()
	mem, err := store.NewMemory(api.NewLimits(1))
	require.NoError(t, err)
	imports := linker.NewImports()
	require.NoError(t, imports.Namespace("env").DefineMemory("memory", mem))

	b := wasmtest.New()
	b.ImportMemory("env", "memory", 1, nil)
	poke := b.Func([]wasm.ValType{wasmtest.I32, wasmtest.I32}, nil, nil,
		wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.Store(wasm.OpI32Store, 0))
	b.ExportFunc("poke", poke)

	rt := newRuntime(t)
	inst, err := rt.Instantiate(ctx, b.Bytes(), imports)
	require.NoError(t, err)

	_, err = inst.Call(ctx, "poke", api.I32(8), api.I32(0x01020304))
	require.NoError(t, err)
	v, err := mem.ReadU32(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), v)

	own, err := inst.Memory()
	require.NoError(t, err)
	assert.Same(t, mem, own)

	assert.ErrorIs(t, mem.Destroy(), errors.ErrInUse)
	require.NoError(t, inst.Close(ctx))
	assert.False(t, mem.Destroyed(), "host memory freed by instance")
	require.NoError(t, mem.Destroy())
	assert.ErrorIs(t, mem.Destroy(), errors.ErrDestroyed)
}

func TestDestroyedImportRejected(t *testing.T) {
	g := store.NewGlobal(api.I32(1), false)
	imports := linker.NewImports()
	require.NoError(t, imports.Namespace("env").DefineGlobal("g", g))
	require.NoError(t, g.Destroy())

	b := wasmtest.New()
	b.ImportGlobal("env", "g", wasmtest.I32, false)

	rt := newRuntime(t)
	_, err := rt.Instantiate(context.Background(), b.Bytes(), imports)
	assert.ErrorIs(t, err, errors.ErrDestroyed)
}

func TestStartReadsImportedGlobal(t *testing.T) {
	base := store.NewGlobal(api.I32(41), false)
	imports := linker.NewImports()
	require.NoError(t, imports.Namespace("env").DefineGlobal("base", base))

	b := wasmtest.New()
	in := b.ImportGlobal("env", "base", wasmtest.I32, false)
	counter := b.Global(wasmtest.I32, true, wasm.GlobalGetExpr(in))
	start := b.Func(nil, nil, nil,
		wasmtest.GlobalGet(counter), wasmtest.I32Const(1), wasmtest.Op(wasm.OpI32Add),
		wasmtest.GlobalSet(counter))
	b.Start(start)
	b.Export("counter", wasm.KindGlobal, counter)

	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, b.Bytes(), imports)

	g, err := inst.Global("counter")
	require.NoError(t, err)
	assert.Equal(t, api.I32(42), g.Get())
	assert.Equal(t, api.I32(41), base.Get())
	assert.Equal(t, 1, base.Holders())
}

func TestPeerInstanceImports(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	pb := wasmtest.New().Memory(1, nil)
	add := pb.Func([]wasm.ValType{wasmtest.I32, wasmtest.I32}, i32, nil,
		wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.Op(wasm.OpI32Add))
	pb.ExportFunc("add", add)
	pb.Export("memory", wasm.KindMemory, 0)
	pb.Data(0, []byte{7})
	peer, err := rt.Instantiate(ctx, pb.Bytes(), nil)
	require.NoError(t, err)

	imports := linker.NewImports()
	require.NoError(t, imports.DefineInstance("peer", peer.Module()))

	b := wasmtest.New()
	padd := b.ImportFunc("peer", "add", []wasm.ValType{wasmtest.I32, wasmtest.I32}, i32)
	b.ImportMemory("peer", "memory", 1, nil)
	sum := b.Func(nil, i32, nil, wasmtest.I32Const(2), wasmtest.I32Const(3), wasmtest.Call(padd))
	first := b.Func(nil, i32, nil, wasmtest.I32Const(0), wasmtest.Load(wasm.OpI32Load8U, 0))
	b.ExportFunc("sum", sum)
	b.ExportFunc("first", first)
	inst := mustInstantiate(t, rt, b.Bytes(), imports)

	got, err := inst.Call(ctx, "sum")
	require.NoError(t, err)
	assert.Equal(t, []api.Value{api.I32(5)}, got)

	shared, err := peer.Memory()
	require.NoError(t, err)
	assert.Equal(t, 2, shared.Holders())

	require.NoError(t, peer.Close(ctx))
	assert.False(t, shared.Destroyed(), "memory freed while still imported")
	got, err = inst.Call(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, []api.Value{api.I32(7)}, got)

	_, err = inst.Call(ctx, "sum")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalidState, e.Kind)

	require.NoError(t, inst.Close(ctx))
	assert.True(t, shared.Destroyed())
}

func TestMemoryGrowthAliasing(t *testing.T) {
	b := wasmtest.New().Memory(1, nil)
	grow := b.Func(i32, i32, nil, wasmtest.LocalGet(0), wasmtest.MemoryGrow())
	poke := b.Func([]wasm.ValType{wasmtest.I32, wasmtest.I32}, nil, nil,
		wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.Store(wasm.OpI32Store8, 0))
	b.ExportFunc("grow", grow)
	b.ExportFunc("poke", poke)

	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, b.Bytes(), nil)
	ctx := context.Background()

	mem, err := inst.Memory()
	require.NoError(t, err)
	before := mem.Data()
	require.Len(t, before, store.PageSize)

	got, err := inst.Call(ctx, "grow", api.I32(1))
	require.NoError(t, err)
	assert.Equal(t, []api.Value{api.I32(1)}, got)
	assert.Equal(t, uint32(2), mem.Length())

	_, err = inst.Call(ctx, "poke", api.I32(store.PageSize+5), api.I32(0x5A))
	require.NoError(t, err)
	after := mem.Data()
	require.Len(t, after, 2*store.PageSize)
	assert.Equal(t, byte(0x5A), after[store.PageSize+5])

	// Host growth is visible to the guest.
	prev, err := mem.Grow(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), prev)
	_, err = inst.Call(ctx, "poke", api.I32(2*store.PageSize), api.I32(1))
	require.NoError(t, err)
}

func TestInstanceContextData(t *testing.T) {
	type tally struct{ n int32 }

	imports := linker.NewImports()
	require.NoError(t, imports.RegisterFunction("env", "log",
		func(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
			n, err := args[0].AsI32()
			if err != nil {
				return nil, err
			}
			ic.Data.(*tally).n += n
			return nil, nil
		},
		[]api.Kind{api.KindI32}, nil))

	rt := newRuntime(t)
	inst := mustInstantiate(t, rt, wasmtest.LogModule(), imports)
	tl := &tally{}
	inst.Context().Data = tl

	for range 3 {
		_, err := inst.Call(context.Background(), "run")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(126), tl.n)
}
