package wasm

import (
	"errors"
	"fmt"
	"math"

	"github.com/dejan-stankovic/wasmer/wasm/internal/binary"
)

// ErrConstExpr reports a malformed or non-constant initializer expression.
var ErrConstExpr = errors.New("invalid constant expression")

// ConstExpr is a decoded MVP constant expression: a single t.const or
// global.get followed by end.
type ConstExpr struct {
	// Value holds the constant's raw bits. 32-bit values are zero-extended.
	Value     uint64
	GlobalIdx uint32
	Size      int // encoded length including the end opcode
	Opcode    byte
}

// IsGlobalGet reports whether the expression reads an imported global.
func (c ConstExpr) IsGlobalGet() bool {
	return c.Opcode == OpGlobalGet
}

// Type returns the result type of a t.const expression. For global.get the
// type depends on the referenced global, so ok is false.
func (c ConstExpr) Type() (ValType, bool) {
	switch c.Opcode {
	case OpI32Const:
		return ValI32, true
	case OpI64Const:
		return ValI64, true
	case OpF32Const:
		return ValF32, true
	case OpF64Const:
		return ValF64, true
	}
	return 0, false
}

// DecodeConstExpr decodes the constant expression at the start of data.
// Trailing bytes after the end opcode are ignored; Size tells the caller
// how much was consumed.
func DecodeConstExpr(data []byte) (ConstExpr, error) {
	r := binary.NewReader(data)
	op, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, fmt.Errorf("%w: empty", ErrConstExpr)
	}

	c := ConstExpr{Opcode: op}
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(uint32(v))
	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(v)
	case OpF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(math.Float32bits(v))
	case OpF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = math.Float64bits(v)
	case OpGlobalGet:
		if c.GlobalIdx, err = r.ReadU32(); err != nil {
			return ConstExpr{}, err
		}
	default:
		return ConstExpr{}, fmt.Errorf("%w: opcode 0x%02x is not constant", ErrConstExpr, op)
	}

	end, err := r.ReadByte()
	if err != nil || end != OpEnd {
		return ConstExpr{}, fmt.Errorf("%w: missing end opcode", ErrConstExpr)
	}
	c.Size = r.Position()
	return c, nil
}

// I32ConstExpr encodes `i32.const v; end`.
func I32ConstExpr(v int32) []byte {
	w := binary.NewWriter()
	w.Byte(OpI32Const)
	w.WriteS32(v)
	w.Byte(OpEnd)
	return w.Bytes()
}

// I64ConstExpr encodes `i64.const v; end`.
func I64ConstExpr(v int64) []byte {
	w := binary.NewWriter()
	w.Byte(OpI64Const)
	w.WriteS64(v)
	w.Byte(OpEnd)
	return w.Bytes()
}

// F32ConstExpr encodes `f32.const v; end`.
func F32ConstExpr(v float32) []byte {
	w := binary.NewWriter()
	w.Byte(OpF32Const)
	w.WriteF32(v)
	w.Byte(OpEnd)
	return w.Bytes()
}

// F64ConstExpr encodes `f64.const v; end`.
func F64ConstExpr(v float64) []byte {
	w := binary.NewWriter()
	w.Byte(OpF64Const)
	w.WriteF64(v)
	w.Byte(OpEnd)
	return w.Bytes()
}

// GlobalGetExpr encodes `global.get idx; end`.
func GlobalGetExpr(idx uint32) []byte {
	w := binary.NewWriter()
	w.Byte(OpGlobalGet)
	w.WriteU32(idx)
	w.Byte(OpEnd)
	return w.Bytes()
}
