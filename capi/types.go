package capi

import (
	"math"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/resource"
)

// Result is the status every fallible boundary operation returns. On Error
// the reason is in the session's last-error channel.
type Result int32

const (
	OK    Result = 1
	Error Result = 2
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Error:
		return "error"
	}
	return "result(?)"
}

// ValueTag discriminates Value.
type ValueTag uint32

const (
	TagI32 ValueTag = ValueTag(api.KindI32)
	TagI64 ValueTag = ValueTag(api.KindI64)
	TagF32 ValueTag = ValueTag(api.KindF32)
	TagF64 ValueTag = ValueTag(api.KindF64)
)

func (t ValueTag) String() string {
	return api.Kind(t).String()
}

// Value is a tagged number as it crosses the boundary. Bits holds the
// integer (sign-extended to 64 bits for I32) or the IEEE 754 bit pattern.
// Values built by hand are untrusted: an unknown tag is rejected, never
// coerced.
type Value struct {
	Tag  ValueTag
	Bits uint64
}

func I32(v int32) Value   { return Value{Tag: TagI32, Bits: uint64(int64(v))} }
func I64(v int64) Value   { return Value{Tag: TagI64, Bits: uint64(v)} }
func F32(v float32) Value { return Value{Tag: TagF32, Bits: uint64(math.Float32bits(v))} }
func F64(v float64) Value { return Value{Tag: TagF64, Bits: math.Float64bits(v)} }

func (v Value) toAPI() (api.Value, error) {
	switch v.Tag {
	case TagI32:
		return api.I32(int32(v.Bits)), nil
	case TagI64:
		return api.I64(int64(v.Bits)), nil
	case TagF32:
		return api.F32(math.Float32frombits(uint32(v.Bits))), nil
	case TagF64:
		return api.F64(math.Float64frombits(v.Bits)), nil
	}
	return api.Value{}, errors.New(errors.PhaseValue, errors.KindTypeMismatch).
		Expected("i32, i64, f32 or f64").
		Actual(api.Kind(v.Tag).String()).
		Detail("unrecognized value tag %d", uint32(v.Tag)).
		Build()
}

func fromAPI(v api.Value) Value {
	switch v.Kind() {
	case api.KindI32:
		n, _ := v.AsI32()
		return I32(n)
	case api.KindI64:
		n, _ := v.AsI64()
		return I64(n)
	case api.KindF32:
		f, _ := v.AsF32()
		return F32(f)
	default:
		f, _ := v.AsF64()
		return F64(f)
	}
}

func toAPIValues(vs []Value) ([]api.Value, error) {
	out := make([]api.Value, len(vs))
	for i, v := range vs {
		av, err := v.toAPI()
		if err != nil {
			return nil, err
		}
		out[i] = av
	}
	return out, nil
}

func tagsToKinds(tags []ValueTag) ([]api.Kind, error) {
	out := make([]api.Kind, len(tags))
	for i, t := range tags {
		k := api.Kind(t)
		if !k.Valid() {
			return nil, errors.InvalidInput(errors.PhaseValue, "unrecognized value tag "+k.String())
		}
		out[i] = k
	}
	return out, nil
}

// Limits bounds a memory in pages or a table in elements.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

func (l Limits) toAPI() api.Limits {
	if l.HasMax {
		return api.NewBoundedLimits(l.Min, l.Max)
	}
	return api.NewLimits(l.Min)
}

// GlobalDescriptor is a global's type without its value.
type GlobalDescriptor struct {
	Mutable bool
	Kind    ValueTag
}

// ExportDescriptor names one export of an instance.
type ExportDescriptor struct {
	Name string
	Kind api.ExternKind
}

// Handles name objects owned by a Session. A handle from another session,
// or one whose object was destroyed, is rejected.
type (
	MemoryHandle       resource.Handle
	TableHandle        resource.Handle
	GlobalHandle       resource.Handle
	InstanceHandle     resource.Handle
	ImportObjectHandle resource.Handle
	ContextHandle      resource.Handle
)

func resourceHandle[H ~uint64](h H) resource.Handle {
	return resource.Handle(h)
}

// Type IDs order Session.Close: instances release their holds before the
// host objects they import are destroyed.
const (
	typeInstance uint32 = iota + 1
	typeContext
	typeImportObject
	typeGlobal
	typeTable
	typeMemory
)

var typeNames = map[uint32]string{
	typeInstance:     "instance",
	typeContext:      "instance context",
	typeImportObject: "import object",
	typeGlobal:       "global",
	typeTable:        "table",
	typeMemory:       "memory",
}
