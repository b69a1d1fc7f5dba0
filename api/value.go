package api

import (
	"fmt"
	"math"

	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/dejan-stankovic/wasmer/errors"
)

// Kind tags one of the four core numeric types. The numbering follows the
// boundary's value tag enumeration, not the wasm binary encoding.
type Kind uint32

const (
	KindI32 Kind = iota
	KindI64
	KindF32
	KindF64
)

// Valid reports whether k is one of the four recognized kinds.
func (k Kind) Valid() bool {
	return k <= KindF64
}

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// ValueType returns the wasm binary encoding of k.
func (k Kind) ValueType() wazeroapi.ValueType {
	switch k {
	case KindI32:
		return wazeroapi.ValueTypeI32
	case KindI64:
		return wazeroapi.ValueTypeI64
	case KindF32:
		return wazeroapi.ValueTypeF32
	case KindF64:
		return wazeroapi.ValueTypeF64
	}
	return 0
}

// KindOf maps a wasm value type byte to its Kind.
func KindOf(vt wazeroapi.ValueType) (Kind, bool) {
	switch vt {
	case wazeroapi.ValueTypeI32:
		return KindI32, true
	case wazeroapi.ValueTypeI64:
		return KindI64, true
	case wazeroapi.ValueTypeF32:
		return KindF32, true
	case wazeroapi.ValueTypeF64:
		return KindF64, true
	}
	return 0, false
}

// Value is a typed value crossing the host/guest boundary. The zero Value
// is I32 zero. Values are built only through the per-kind constructors, so
// the tag always describes the payload.
type Value struct {
	kind Kind
	bits uint64
}

func I32(v int32) Value {
	return Value{kind: KindI32, bits: wazeroapi.EncodeI32(v)}
}

func I64(v int64) Value {
	return Value{kind: KindI64, bits: wazeroapi.EncodeI64(v)}
}

func F32(v float32) Value {
	return Value{kind: KindF32, bits: wazeroapi.EncodeF32(v)}
}

func F64(v float64) Value {
	return Value{kind: KindF64, bits: wazeroapi.EncodeF64(v)}
}

// Zero returns the zero value of kind k.
func Zero(k Kind) Value {
	return Value{kind: k}
}

// FromRaw builds a Value from the executor's uint64 stack encoding. An
// unrecognized kind is rejected, never coerced.
func FromRaw(k Kind, raw uint64) (Value, error) {
	switch k {
	case KindI32, KindF32:
		return Value{kind: k, bits: raw & math.MaxUint32}, nil
	case KindI64, KindF64:
		return Value{kind: k, bits: raw}, nil
	}
	return Value{}, errors.New(errors.PhaseValue, errors.KindTypeMismatch).
		Expected("i32, i64, f32 or f64").
		Actual(k.String()).
		Detail("unrecognized value tag").
		Value(uint32(k)).
		Build()
}

// Kind returns the tag of v.
func (v Value) Kind() Kind {
	return v.kind
}

// Raw returns the uint64 stack encoding of v.
func (v Value) Raw() uint64 {
	return v.bits
}

func (v Value) mismatch(want Kind) error {
	return errors.TypeMismatch(errors.PhaseValue, nil, want.String(), v.kind.String())
}

func (v Value) AsI32() (int32, error) {
	if v.kind != KindI32 {
		return 0, v.mismatch(KindI32)
	}
	return wazeroapi.DecodeI32(v.bits), nil
}

func (v Value) AsI64() (int64, error) {
	if v.kind != KindI64 {
		return 0, v.mismatch(KindI64)
	}
	return int64(v.bits), nil
}

func (v Value) AsF32() (float32, error) {
	if v.kind != KindF32 {
		return 0, v.mismatch(KindF32)
	}
	return wazeroapi.DecodeF32(v.bits), nil
}

func (v Value) AsF64() (float64, error) {
	if v.kind != KindF64 {
		return 0, v.mismatch(KindF64)
	}
	return wazeroapi.DecodeF64(v.bits), nil
}

// Equal compares tags and bit patterns, so NaN payloads compare equal to
// themselves and +0 differs from -0.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.bits == o.bits
}

func (v Value) String() string {
	switch v.kind {
	case KindI32:
		return fmt.Sprintf("i32:%d", wazeroapi.DecodeI32(v.bits))
	case KindI64:
		return fmt.Sprintf("i64:%d", int64(v.bits))
	case KindF32:
		return fmt.Sprintf("f32:%v", wazeroapi.DecodeF32(v.bits))
	case KindF64:
		return fmt.Sprintf("f64:%v", wazeroapi.DecodeF64(v.bits))
	}
	return fmt.Sprintf("%s:%#x", v.kind, v.bits)
}

// Encode converts a native Go number into a Value. Unsigned integers map to
// the signed kind of the same width with the same bits.
func Encode(x any) (Value, error) {
	switch n := x.(type) {
	case Value:
		return n, nil
	case int32:
		return I32(n), nil
	case uint32:
		return I32(int32(n)), nil
	case int64:
		return I64(n), nil
	case uint64:
		return I64(int64(n)), nil
	case float32:
		return F32(n), nil
	case float64:
		return F64(n), nil
	}
	return Value{}, errors.New(errors.PhaseValue, errors.KindTypeMismatch).
		Expected("int32, int64, float32 or float64").
		Actual(fmt.Sprintf("%T", x)).
		Build()
}

// Decode returns the native Go number held by v, failing when v is not of
// kind k.
func Decode(v Value, k Kind) (any, error) {
	switch k {
	case KindI32:
		return v.AsI32()
	case KindI64:
		return v.AsI64()
	case KindF32:
		return v.AsF32()
	case KindF64:
		return v.AsF64()
	}
	return nil, errors.New(errors.PhaseValue, errors.KindTypeMismatch).
		Actual(k.String()).
		Detail("unrecognized value tag").
		Build()
}

// Kinds returns the tags of vs.
func Kinds(vs []Value) []Kind {
	out := make([]Kind, len(vs))
	for i, v := range vs {
		out[i] = v.kind
	}
	return out
}
