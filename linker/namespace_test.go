package linker

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

func TestNamespaceGetOrCreate(t *testing.T) {
	im := NewImports()
	env := im.Namespace("env")
	if env != im.Namespace("env") {
		t.Fatal("Namespace should return the same namespace for the same name")
	}
	if env.Name() != "env" {
		t.Errorf("Name() = %q, want env", env.Name())
	}
	im.Namespace("wasi")
	assert.Equal(t, []string{"env", "wasi"}, im.Namespaces())
}

func TestRegisterFunctionLastWins(t *testing.T) {
	im := NewImports()
	first := func(*store.InstanceContext, []api.Value) ([]api.Value, error) { return []api.Value{api.I32(1)}, nil }
	second := func(*store.InstanceContext, []api.Value) ([]api.Value, error) { return []api.Value{api.I32(2)}, nil }

	require.NoError(t, im.RegisterFunction("env", "f", first, nil, []api.Kind{api.KindI32}))
	require.NoError(t, im.RegisterFunction("env", "f", second, nil, []api.Kind{api.KindI32}))
	assert.Equal(t, 1, im.Namespace("env").Len())

	b, ok := im.Lookup("env", "f")
	require.True(t, ok)
	out, err := b.Func.Host.Call(nil, nil)
	require.NoError(t, err)
	assert.True(t, out[0].Equal(api.I32(2)), "later registration must win")
}

func TestRegisterFunctionErrors(t *testing.T) {
	noop := func(*store.InstanceContext, []api.Value) ([]api.Value, error) { return nil, nil }
	tests := []struct {
		name    string
		ns      string
		fn      HostCallback
		params  []api.Kind
		wantErr error
	}{
		{name: "empty namespace", ns: "", fn: noop, wantErr: errors.ErrInvalidInput},
		{name: "nil callback", ns: "env", fn: nil, wantErr: errors.ErrInvalidInput},
		{name: "bad tag", ns: "env", fn: noop, params: []api.Kind{api.Kind(9)}, wantErr: errors.ErrType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := NewImports()
			err := im.RegisterFunction(tt.ns, "f", tt.fn, tt.params, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			_, ok := im.Lookup(tt.ns, "f")
			assert.False(t, ok)
		})
	}
}

func TestDefineAfterClose(t *testing.T) {
	im := NewImports()
	env := im.Namespace("env")
	require.NoError(t, im.Close())
	require.NoError(t, im.Close(), "second Close is a no-op")

	mem, err := store.NewMemory(api.NewLimits(1))
	require.NoError(t, err)
	assert.ErrorIs(t, env.DefineMemory("memory", mem), errors.ErrDestroyed)
	assert.Empty(t, im.Namespaces())
}

func TestRawHostFunction(t *testing.T) {
	h, err := NewRawHostFunction(func(_ *store.InstanceContext, stack []uint64) error {
		a, b := int32(stack[0]), int32(stack[1])
		stack[0] = api.I32(a * b).Raw()
		return nil
	}, []api.Kind{api.KindI32, api.KindI32}, []api.Kind{api.KindI32})
	require.NoError(t, err)

	out, err := h.Call(nil, []api.Value{api.I32(-3), api.I32(7)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Equal(api.I32(-21)), "got %v", out[0])
}

func TestGoFunctionSignatures(t *testing.T) {
	tests := []struct {
		name    string
		fn      any
		want    string
		wantErr bool
	}{
		{name: "no args", fn: func() {}, want: "() -> ()"},
		{name: "numbers", fn: func(int32, int64, float32, float64) uint32 { return 0 }, want: "(i32, i64, f32, f64) -> (i32)"},
		{name: "instance context", fn: func(*store.InstanceContext, int32) {}, want: "(i32) -> ()"},
		{name: "context", fn: func(context.Context, uint64) (int64, error) { return 0, nil }, want: "(i64) -> (i64)"},
		{name: "multi value", fn: func() (int32, float64) { return 0, 0 }, want: "() -> (i32, f64)"},
		{name: "string param", fn: func(string) {}, wantErr: true},
		{name: "int result", fn: func() int { return 0 }, wantErr: true},
		{name: "variadic", fn: func(...int32) {}, wantErr: true},
		{name: "not a func", fn: 42, wantErr: true},
		{name: "nil", fn: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewGoFunction(tt.fn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Type().String())
		})
	}
}

func TestGoFunctionCall(t *testing.T) {
	h, err := NewGoFunction(func(a uint32, b float32, c int64) (int32, float64) {
		return int32(a) - 1, float64(b) + float64(c)
	})
	require.NoError(t, err)

	out, err := h.Call(nil, []api.Value{api.I32(-1), api.F32(1.5), api.I64(2)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Equal(api.I32(-2)), "got %v", out[0])
	assert.True(t, out[1].Equal(api.F64(3.5)), "got %v", out[1])

	stack := []uint64{math.MaxUint32, uint64(math.Float32bits(2)), 5}
	require.NoError(t, h.CallRaw(nil, stack))
	assert.Equal(t, uint64(math.MaxUint32-1), stack[0])
	assert.Equal(t, math.Float64bits(7), stack[1])
}

func TestGoFunctionError(t *testing.T) {
	boom := stderrors.New("boom")
	h, err := NewGoFunction(func() (int32, error) { return 0, boom })
	require.NoError(t, err)
	_, err = h.Call(nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestGoFunctionReceivesContext(t *testing.T) {
	type key struct{}
	inst := store.NewModuleInstance("guest", &wasm.Module{})
	ic := inst.Context()
	restore := ic.Enter(context.WithValue(context.Background(), key{}, "v"))
	defer restore()

	var seen any
	var seenIC *store.InstanceContext
	withCtx, err := NewGoFunction(func(ctx context.Context) { seen = ctx.Value(key{}) })
	require.NoError(t, err)
	withIC, err := NewGoFunction(func(ic *store.InstanceContext) { seenIC = ic })
	require.NoError(t, err)

	_, err = withCtx.Call(ic, nil)
	require.NoError(t, err)
	_, err = withIC.Call(ic, nil)
	require.NoError(t, err)
	assert.Equal(t, "v", seen)
	assert.Same(t, ic, seenIC)
}

type mathHost struct{ calls int }

func (h *mathHost) Namespace() string { return "math" }

func (h *mathHost) AddOne(v int32) int32 { h.calls++; return v + 1 }

func (h *mathHost) GetHTTPStatus() int32 { return 200 }

type explicitHost struct{}

func (explicitHost) Namespace() string { return "x" }

func (explicitHost) Register() map[string]any {
	return map[string]any{"odd.name": func() int64 { return 7 }}
}

func TestRegisterHost(t *testing.T) {
	im := NewImports()
	h := &mathHost{}
	require.NoError(t, im.RegisterHost(h))
	assert.Equal(t, []string{"add_one", "get_http_status"}, im.Namespace("math").Names())

	b, ok := im.Lookup("math", "add_one")
	require.True(t, ok)
	out, err := b.Func.Host.Call(nil, []api.Value{api.I32(41)})
	require.NoError(t, err)
	assert.True(t, out[0].Equal(api.I32(42)))
	assert.Equal(t, 1, h.calls)

	require.NoError(t, im.RegisterHost(explicitHost{}))
	_, ok = im.Lookup("x", "odd.name")
	assert.True(t, ok)
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Log", "log"},
		{"WriteString", "write_string"},
		{"GetHTTPStatus", "get_http_status"},
		{"ID", "id"},
		{"ParseURL", "parse_url"},
		{"already_snake", "already_snake"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
