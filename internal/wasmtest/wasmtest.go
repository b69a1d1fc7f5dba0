// Package wasmtest assembles small modules for tests.
package wasmtest

import (
	"github.com/dejan-stankovic/wasmer/wasm"
)

const (
	I32 = wasm.ValI32
	I64 = wasm.ValI64
	F32 = wasm.ValF32
	F64 = wasm.ValF64
)

// Builder accumulates a module. Function, global, table and memory indices
// returned by its methods account for imports added before them, so add
// imports first.
type Builder struct {
	m wasm.Module
}

func New() *Builder {
	return &Builder{}
}

// Sig returns the index of a function type, adding it if absent.
func (b *Builder) Sig(params, results []wasm.ValType) uint32 {
	return b.m.AddType(wasm.FuncType{Params: params, Results: results})
}

func (b *Builder) ImportFunc(module, name string, params, results []wasm.ValType) uint32 {
	idx := uint32(b.m.NumFuncs())
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: b.Sig(params, results)},
	})
	return idx
}

func (b *Builder) ImportMemory(module, name string, min uint32, max *uint32) {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc: wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{
			Limits: wasm.Limits{Min: min, Max: max},
		}},
	})
}

func (b *Builder) ImportTable(module, name string, min uint32, max *uint32) {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc: wasm.ImportDesc{Kind: wasm.KindTable, Table: &wasm.TableType{
			ElemType: wasm.ElemTypeFunc,
			Limits:   wasm.Limits{Min: min, Max: max},
		}},
	})
}

func (b *Builder) ImportGlobal(module, name string, vt wasm.ValType, mutable bool) uint32 {
	idx := uint32(b.m.NumGlobals())
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: vt, Mutable: mutable}},
	})
	return idx
}

// Func declares a function whose body is code followed by end.
func (b *Builder) Func(params, results []wasm.ValType, locals []wasm.ValType, code ...wasm.Instruction) uint32 {
	idx := uint32(b.m.NumFuncs())
	b.m.Funcs = append(b.m.Funcs, b.Sig(params, results))
	var entries []wasm.LocalEntry
	for _, vt := range locals {
		if n := len(entries); n > 0 && entries[n-1].ValType == vt {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: vt})
	}
	b.m.Code = append(b.m.Code, wasm.FuncBody{Locals: entries, Code: Body(code...)})
	return idx
}

func (b *Builder) Memory(min uint32, max *uint32) *Builder {
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: min, Max: max}})
	return b
}

func (b *Builder) Table(min uint32, max *uint32) *Builder {
	b.m.Tables = append(b.m.Tables, wasm.TableType{ElemType: wasm.ElemTypeFunc, Limits: wasm.Limits{Min: min, Max: max}})
	return b
}

// Global declares a global initialized by the constant expression init,
// e.g. wasm.I32ConstExpr(5).
func (b *Builder) Global(vt wasm.ValType, mutable bool, init []byte) uint32 {
	idx := uint32(b.m.NumGlobals())
	b.m.Globals = append(b.m.Globals, wasm.Global{Type: wasm.GlobalType{ValType: vt, Mutable: mutable}, Init: init})
	return idx
}

func (b *Builder) Export(name string, kind byte, idx uint32) *Builder {
	b.m.Exports = append(b.m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
	return b
}

func (b *Builder) ExportFunc(name string, idx uint32) *Builder {
	return b.Export(name, wasm.KindFunc, idx)
}

func (b *Builder) Start(idx uint32) *Builder {
	b.m.Start = &idx
	return b
}

func (b *Builder) Data(offset int32, data []byte) *Builder {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Offset: wasm.I32ConstExpr(offset), Init: data})
	return b
}

func (b *Builder) Elem(offset int32, funcs ...uint32) *Builder {
	b.m.Elements = append(b.m.Elements, wasm.Element{Offset: wasm.I32ConstExpr(offset), FuncIdxs: funcs})
	return b
}

// Module returns the assembled module. The builder must not be used
// afterwards.
func (b *Builder) Module() *wasm.Module {
	return &b.m
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	return b.m.Encode()
}

// Body encodes instructions and appends the terminating end.
func Body(code ...wasm.Instruction) []byte {
	return wasm.EncodeInstructions(append(code, wasm.Instruction{Opcode: wasm.OpEnd}))
}

// Instruction shorthands.

func Op(op byte) wasm.Instruction { return wasm.Instruction{Opcode: op} }

func I32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func I64Const(v int64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}
}

func F32Const(v float32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: v}}
}

func F64Const(v float64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}}
}

func LocalGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: i}}
}

func LocalSet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: i}}
}

func LocalTee(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: i}}
}

func GlobalGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: i}}
}

func GlobalSet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: i}}
}

func Call(f uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: f}}
}

func CallIndirect(typeIdx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: typeIdx}}
}

func Block(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: bt}}
}

func Loop(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: bt}}
}

func If(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: bt}}
}

func Br(depth uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: depth}}
}

func BrIf(depth uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: depth}}
}

func BrTable(def uint32, labels ...uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: labels, Default: def}}
}

// Load and Store use natural alignment.
func Load(op byte, offset uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: op, Imm: wasm.MemoryImm{Offset: offset, Align: wasm.NaturalAlignment(op)}}
}

func Store(op byte, offset uint32) wasm.Instruction {
	return Load(op, offset)
}

func MemorySize() wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{}}
}

func MemoryGrow() wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}}
}

// LogModule imports env.log of type (i32) -> () and exports run, which
// calls log(42) once.
func LogModule() []byte {
	b := New()
	log := b.ImportFunc("env", "log", []wasm.ValType{I32}, nil)
	run := b.Func(nil, nil, nil, I32Const(42), Call(log))
	b.ExportFunc("run", run)
	return b.Bytes()
}

// AddModule exports add of type (i32, i32) -> i32.
func AddModule() []byte {
	b := New()
	add := b.Func([]wasm.ValType{I32, I32}, []wasm.ValType{I32}, nil,
		LocalGet(0), LocalGet(1), Op(wasm.OpI32Add))
	b.ExportFunc("add", add)
	return b.Bytes()
}

// MemoryModule declares a memory of min..max pages, exports it as memory,
// and writes data at offset 0.
func MemoryModule(min uint32, max *uint32, data []byte) []byte {
	b := New().Memory(min, max)
	b.Export("memory", wasm.KindMemory, 0)
	if len(data) > 0 {
		b.Data(0, data)
	}
	return b.Bytes()
}
