package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/internal/wasmtest"
	"github.com/dejan-stankovic/wasmer/wasm"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		kind    api.Kind
		in      string
		want    api.Value
		wantErr bool
	}{
		{api.KindI32, "42", api.I32(42), false},
		{api.KindI32, " -7 ", api.I32(-7), false},
		{api.KindI32, "0xff", api.I32(255), false},
		{api.KindI32, "4294967295", api.I32(-1), false},
		{api.KindI32, "4294967296", api.Value{}, true},
		{api.KindI32, "x", api.Value{}, true},
		{api.KindI64, "-9223372036854775808", api.I64(-1 << 63), false},
		{api.KindI64, "18446744073709551615", api.I64(-1), false},
		{api.KindF32, "1.5", api.F32(1.5), false},
		{api.KindF64, "-0.25", api.F64(-0.25), false},
		{api.KindF64, "one", api.Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.in, func(t *testing.T) {
			got, err := parseValue(tt.kind, tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestLoadAndCall(t *testing.T) {
	ctx := context.Background()
	opts := options{stub: true}
	l, err := loadBytes(ctx, wasmtest.AddModule(), opts, zaptest.NewLogger(t), &bytes.Buffer{})
	require.NoError(t, err)
	defer l.close(ctx)

	require.Len(t, l.functions(), 1)
	assert.Equal(t, "add(i32, i32) -> (i32)", l.exports[0].signature())
	assert.Empty(t, l.entryPoint())

	args, err := l.parseArgs("add", []string{"40", "2"})
	require.NoError(t, err)
	results, err := l.inst.Call(ctx, "add", args...)
	require.NoError(t, err)
	assert.Equal(t, "(i32:42)", formatValues(results))

	_, err = l.parseArgs("add", []string{"1"})
	assert.Error(t, err)
	_, err = l.parseArgs("sub", nil)
	assert.Error(t, err)
}

func TestStubImports(t *testing.T) {
	i32 := []wasm.ValType{wasmtest.I32}
	b := wasmtest.New()
	logFn := b.ImportFunc("env", "log", i32, i32)
	run := b.Func(nil, i32, nil,
		wasmtest.I32Const(9), wasmtest.Call(logFn))
	b.ExportFunc("main", run)

	ctx := context.Background()
	var out bytes.Buffer
	l, err := loadBytes(ctx, b.Bytes(), options{stub: true}, zaptest.NewLogger(t), &out)
	require.NoError(t, err)
	defer l.close(ctx)

	assert.Equal(t, "main", l.entryPoint())
	results, err := l.inst.Call(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "(i32:0)", formatValues(results))
	assert.Equal(t, "[env.log] (i32:9)\n", out.String())
}

func TestUnstubbedImportFails(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "log", []wasm.ValType{wasmtest.I32}, nil)

	_, err := loadBytes(context.Background(), b.Bytes(), options{}, zaptest.NewLogger(t), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env")
}
