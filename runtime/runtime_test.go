package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/internal/wasmtest"
	"github.com/dejan-stankovic/wasmer/lasterror"
	"github.com/dejan-stankovic/wasmer/linker"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close(context.Background()) })
	return rt
}

func TestValidateTruncatedInput(t *testing.T) {
	ctx, ch := lasterror.WithChannel(context.Background())
	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	defer rt.Close(ctx)

	if rt.Validate([]byte{0x00, 0x61, 0x73}) {
		t.Fatal("truncated input validated")
	}
	if !rt.Validate(wasmtest.AddModule()) {
		t.Fatal("add module rejected")
	}
	if n := ch.Length(); n != 0 {
		t.Errorf("Validate recorded an error of length %d", n)
	}
}

func TestHostFunctionCalledOnce(t *testing.T) {
	ctx, ch := lasterror.WithChannel(context.Background())
	rt := newRuntime(t)

	var seen []int32
	imports := linker.NewImports()
	err := imports.RegisterFunction("env", "log",
		func(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
			n, err := args[0].AsI32()
			if err != nil {
				return nil, err
			}
			seen = append(seen, n)
			return nil, nil
		},
		[]api.Kind{api.KindI32}, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, err := rt.Instantiate(ctx, wasmtest.LogModule(), imports)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer inst.Close(ctx)

	results, err := inst.Call(ctx, "run")
	if err != nil {
		t.Fatalf("call run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("run returned %v", results)
	}
	if len(seen) != 1 || seen[0] != 42 {
		t.Errorf("log observed %v, want [42]", seen)
	}
	if _, ok := ch.Message(); ok {
		t.Error("successful path recorded an error")
	}

	// The import object may go away without affecting the instance.
	if err := imports.Close(); err != nil {
		t.Fatalf("close imports: %v", err)
	}
	if _, err := inst.Call(ctx, "run"); err != nil {
		t.Fatalf("call after imports closed: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("log observed %d calls, want 2", len(seen))
	}
}

func TestInstanceMemoryGrowBound(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	one := uint32(1)
	inst, err := rt.Instantiate(ctx, wasmtest.MemoryModule(1, &one, []byte("hi")), nil)
	require.NoError(t, err)
	defer inst.Close(ctx)

	mem, err := inst.Memory()
	require.NoError(t, err)
	_, err = mem.Grow(1)
	assert.ErrorIs(t, err, errors.ErrLimits)
	assert.Equal(t, uint32(1), mem.Length())
	assert.Equal(t, []byte("hi"), mem.Data()[:2])
}

func TestInstantiateFailures(t *testing.T) {
	tests := []struct {
		name    string
		data    func() []byte
		imports func(t *testing.T) *linker.Imports
		want    error
		// loose skips the wazero pass, which rejects some segments early.
		loose bool
	}{
		{
			name: "invalid bytes",
			data: func() []byte { return []byte{0x00, 0x61, 0x73} },
			want: errors.ErrValidation,
		},
		{
			name: "missing import",
			data: wasmtest.LogModule,
			want: errors.ErrLink,
		},
		{
			name: "import signature mismatch",
			data: wasmtest.LogModule,
			imports: func(t *testing.T) *linker.Imports {
				im := linker.NewImports()
				require.NoError(t, im.DefineFunc("env", "log", func(int64) {}))
				return im
			},
			want: errors.ErrLink,
		},
		{
			name: "import kind mismatch",
			data: wasmtest.LogModule,
			imports: func(t *testing.T) *linker.Imports {
				im := linker.NewImports()
				require.NoError(t, im.Namespace("env").DefineGlobal("log", store.NewGlobal(api.I32(0), false)))
				return im
			},
			want: errors.ErrLink,
		},
		{
			name: "data segment out of bounds",
			data: func() []byte {
				b := wasmtest.New().Memory(1, nil)
				b.Data(store.PageSize-1, []byte{1, 2})
				return b.Bytes()
			},
			want:  errors.ErrTrap,
			loose: true,
		},
		{
			name: "element segment out of bounds",
			data: func() []byte {
				b := wasmtest.New().Table(1, nil)
				f := b.Func(nil, nil, nil)
				b.Elem(1, f)
				return b.Bytes()
			},
			want:  errors.ErrTrap,
			loose: true,
		},
		{
			name: "start function traps",
			data: func() []byte {
				b := wasmtest.New()
				b.Start(b.Func(nil, nil, nil, wasmtest.Op(wasm.OpUnreachable)))
				return b.Bytes()
			},
			want: engine.NewTrap(engine.TrapUnreachable),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, ch := lasterror.WithChannel(context.Background())
			var opts []Option
			if tt.loose {
				opts = append(opts, WithConfig(Config{}))
			}
			rt := newRuntime(t, opts...)
			var imports *linker.Imports
			if tt.imports != nil {
				imports = tt.imports(t)
			}

			inst, err := rt.Instantiate(ctx, tt.data(), imports)
			require.Error(t, err)
			assert.Nil(t, inst)
			assert.ErrorIs(t, err, tt.want)

			msg, ok := ch.Message()
			require.True(t, ok, "error not recorded")
			assert.Equal(t, err.Error(), msg)
			assert.Equal(t, len(msg), ch.Length())
		})
	}
}

func TestMissingImportsAreAllReported(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "a", nil, nil)
	b.ImportGlobal("env", "b", wasmtest.I32, false)

	rt := newRuntime(t)
	_, err := rt.Instantiate(context.Background(), b.Bytes(), linker.NewImports())

	var unresolved *errors.UnresolvedImportsError
	require.ErrorAs(t, err, &unresolved)
	assert.Len(t, unresolved.Imports, 2)
}

func TestFailedSegmentsLeaveImportsUntouched(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	mem, err := store.NewMemory(api.NewLimits(1))
	require.NoError(t, err)
	imports := linker.NewImports()
	require.NoError(t, imports.Namespace("env").DefineMemory("memory", mem))

	b := wasmtest.New()
	b.ImportMemory("env", "memory", 1, nil)
	b.Data(0, []byte{0xAA})
	b.Data(store.PageSize, []byte{0xBB})

	_, err = rt.Instantiate(ctx, b.Bytes(), imports)
	require.ErrorIs(t, err, engine.NewTrap(engine.TrapMemoryOutOfBounds))
	assert.Equal(t, byte(0), mem.Data()[0], "first segment written despite failure")
	assert.Equal(t, 0, mem.Holders(), "hold leaked by failed instantiation")
	assert.NoError(t, mem.Destroy())
}

func TestStateTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rt := newRuntime(t, WithLogger(zap.New(core)))
	ctx := context.Background()

	transitions := func() []string {
		var out []string
		for _, e := range logs.FilterMessage("instance state").AllUntimed() {
			out = append(out, e.ContextMap()["to"].(string))
		}
		logs.TakeAll()
		return out
	}

	inst, err := rt.Instantiate(ctx, wasmtest.AddModule(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateReady, inst.State())
	assert.Equal(t, []string{"validating", "linking", "ready"}, transitions())

	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx))
	assert.Equal(t, StateDestroyed, inst.State())
	assert.Equal(t, []string{"destroyed"}, transitions())

	_, err = rt.Instantiate(ctx, []byte("junk"), nil)
	require.Error(t, err)
	assert.Equal(t, []string{"validating", "failed"}, transitions())

	_, err = rt.Instantiate(ctx, wasmtest.LogModule(), nil)
	require.Error(t, err)
	assert.Equal(t, []string{"validating", "linking", "failed"}, transitions())
}

func TestMemoryLimitConfig(t *testing.T) {
	ctx := context.Background()
	data := wasmtest.MemoryModule(2, nil, nil)

	strict := newRuntime(t, WithConfig(Config{MemoryLimitPages: 1, StrictValidation: true}))
	_, err := strict.Instantiate(ctx, data, nil)
	assert.ErrorIs(t, err, errors.ErrValidation)

	loose := newRuntime(t, WithConfig(Config{MemoryLimitPages: 1}))
	_, err = loose.Instantiate(ctx, data, nil)
	assert.ErrorIs(t, err, errors.ErrLimits)

	inst, err := loose.Instantiate(ctx, wasmtest.MemoryModule(1, nil, nil), nil)
	require.NoError(t, err)
	mem, err := inst.Memory()
	require.NoError(t, err)
	_, err = mem.Grow(1)
	assert.ErrorIs(t, err, errors.ErrLimits, "declared max absent, runtime limit applies")

	_, err = New(ctx, WithConfig(Config{MemoryLimitPages: store.MaxPages + 1}))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestInstantiateAfterClose(t *testing.T) {
	ctx, ch := lasterror.WithChannel(context.Background())
	rt, err := New(ctx)
	require.NoError(t, err)
	require.NoError(t, rt.Close(ctx))
	require.NoError(t, rt.Close(ctx))

	_, err = rt.Instantiate(ctx, wasmtest.AddModule(), nil)
	assert.ErrorIs(t, err, errors.ErrDestroyed)
	assert.Positive(t, ch.Length())
}

type countingExecutor struct {
	engine.Executor
	compiled, released int
}

func (c *countingExecutor) Compile(ctx context.Context, mi *store.ModuleInstance) error {
	c.compiled++
	return c.Executor.Compile(ctx, mi)
}

func (c *countingExecutor) Release(mi *store.ModuleInstance) {
	c.released++
	c.Executor.Release(mi)
}

func TestCustomExecutorAndValidator(t *testing.T) {
	ctx := context.Background()
	def := newRuntime(t)
	exec := &countingExecutor{Executor: def.executor}
	rt := newRuntime(t, WithExecutor(exec), WithValidator(engine.StructuralValidator{}))

	inst, err := rt.Instantiate(ctx, wasmtest.AddModule(), nil)
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx))
	assert.Equal(t, 1, exec.compiled)
	assert.Equal(t, 1, exec.released)
}
