package wasm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dejan-stankovic/wasmer/wasm"
)

func ptrTo[T any](v T) *T { return &v }

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

func body(instrs ...wasm.Instruction) []byte {
	return wasm.EncodeInstructions(append(instrs, wasm.Instruction{Opcode: wasm.OpEnd}))
}

// sampleModule imports env.log, declares memory, a table, globals, and an
// exported run function that calls the import.
func sampleModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "log", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "base", Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32}}},
		},
		Funcs:    []uint32{1},
		Tables:   []wasm.TableType{{ElemType: wasm.ElemTypeFunc, Limits: wasm.Limits{Min: 2}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: ptrTo(uint32(4))}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI64, Mutable: true}, Init: wasm.I64ConstExpr(-7)},
			{Type: wasm.GlobalType{ValType: wasm.ValI32}, Init: wasm.GlobalGetExpr(0)},
		},
		Exports: []wasm.Export{
			{Name: "run", Kind: wasm.KindFunc, Idx: 1},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Elements: []wasm.Element{{Offset: wasm.I32ConstExpr(1), FuncIdxs: []uint32{1}}},
		Code: []wasm.FuncBody{{
			Locals: []wasm.LocalEntry{{Count: 2, ValType: wasm.ValF64}},
			Code: body(
				wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 42}},
				wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}},
			),
		}},
		Data: []wasm.DataSegment{{Offset: wasm.I32ConstExpr(8), Init: []byte("hello")}},
		CustomSections: []wasm.CustomSection{{Name: "name", Data: []byte{1, 2, 3}}},
	}
}

func TestParseMinimalModule(t *testing.T) {
	m, err := wasm.ParseModule(header)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil module")
	}
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"invalid magic", []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}, wasm.ErrInvalidMagic},
		{"invalid version", []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}, wasm.ErrInvalidVersion},
		{"truncated", []byte{0x00, 0x61, 0x73}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.ParseModule(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	orig := sampleModule()
	parsed, err := wasm.ParseModuleValidate(orig.Encode())
	if err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}
	if diff := cmp.Diff(orig, parsed, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(parsed.Encode(), orig.Encode()) {
		t.Error("re-encoding is not stable")
	}
}

func TestParseSectionOrder(t *testing.T) {
	// memory section (5) before type section (1)
	data := append([]byte{}, header...)
	data = append(data, 0x05, 0x03, 0x01, 0x00, 0x01)
	data = append(data, 0x01, 0x01, 0x00)

	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected out of order error")
	}
	var pe *wasm.ParseError
	if !errors.As(err, &pe) || pe.Section != "section header" {
		t.Errorf("error = %v, want section header parse error", err)
	}
}

func TestParseRejectsMalformedSections(t *testing.T) {
	tests := []struct {
		name    string
		section []byte
	}{
		{"unknown section", []byte{0x0C, 0x01, 0x00}},
		{"section overruns input", []byte{0x01, 0x10, 0x00}},
		{"huge vector length", []byte{0x01, 0x05, 0xff, 0xff, 0xff, 0xff, 0x0f}},
		{"bad func form", []byte{0x01, 0x04, 0x01, 0x5f, 0x00, 0x00}},
		{"v128 param", []byte{0x01, 0x05, 0x01, 0x60, 0x01, 0x7b, 0x00}},
		{"funcref param", []byte{0x01, 0x05, 0x01, 0x60, 0x01, 0x70, 0x00}},
		{"min exceeds max", []byte{0x05, 0x04, 0x01, 0x01, 0x02, 0x01}},
		{"shared memory flag", []byte{0x05, 0x04, 0x01, 0x03, 0x01, 0x01}},
		{"trailing bytes", []byte{0x05, 0x04, 0x01, 0x00, 0x01, 0xAA}},
		{"function without code", []byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00, 0x03, 0x02, 0x01, 0x00}},
		{"bad export kind", []byte{0x07, 0x05, 0x01, 0x01, 'x', 0x04, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(append([]byte{}, header...), tt.section...)
			if _, err := wasm.ParseModule(data); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseCodeMustEndWithEnd(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{{Code: []byte{wasm.OpNop}}},
	}
	if _, err := wasm.ParseModule(m.Encode()); err == nil {
		t.Error("expected error for body without end")
	}
}

func TestParseTooManyLocals(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{{
			Locals: []wasm.LocalEntry{{Count: wasm.MaxLocals, ValType: wasm.ValI32}, {Count: 1, ValType: wasm.ValI64}},
			Code:   body(),
		}},
	}
	if _, err := wasm.ParseModule(m.Encode()); err == nil {
		t.Error("expected error for too many locals")
	}
}

func TestValidateRejectsPrefixedOpcodes(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{{Code: []byte{0xFD, wasm.OpEnd}}},
	}
	data := m.Encode()
	_, err := wasm.ParseModuleValidate(data)
	if err == nil {
		t.Fatal("expected error for SIMD prefix")
	}
}

func TestModuleIndexSpaces(t *testing.T) {
	m := sampleModule()
	if got := m.NumFuncs(); got != 2 {
		t.Errorf("NumFuncs = %d, want 2", got)
	}
	if got := m.NumGlobals(); got != 3 {
		t.Errorf("NumGlobals = %d, want 3", got)
	}
	if ft := m.GetFuncType(0); ft == nil || len(ft.Params) != 1 {
		t.Errorf("GetFuncType(0) = %v", ft)
	}
	if ft := m.GetFuncType(1); ft == nil || len(ft.Params) != 0 {
		t.Errorf("GetFuncType(1) = %v", ft)
	}
	if ft := m.GetFuncType(9); ft != nil {
		t.Errorf("GetFuncType(9) = %v, want nil", ft)
	}
	if gt := m.GlobalTypeAt(1); gt == nil || gt.ValType != wasm.ValI64 {
		t.Errorf("GlobalTypeAt(1) = %v", gt)
	}
	if _, ok := m.ExportByName("run"); !ok {
		t.Error("ExportByName(run) not found")
	}
	if idx := m.AddType(wasm.FuncType{}); idx != 1 {
		t.Errorf("AddType reused index = %d, want 1", idx)
	}
}
