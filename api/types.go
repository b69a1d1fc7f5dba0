package api

import (
	"strings"

	wazeroapi "github.com/tetratelabs/wazero/api"
)

// Limits bounds the size of a memory (in pages) or a table (in elements).
type Limits struct {
	Max *uint32
	Min uint32
}

// NewLimits returns limits with no maximum.
func NewLimits(min uint32) Limits {
	return Limits{Min: min}
}

// NewBoundedLimits returns limits with both bounds set.
func NewBoundedLimits(min, max uint32) Limits {
	return Limits{Min: min, Max: &max}
}

// Valid reports whether min <= max and both fit under ceiling.
func (l Limits) Valid(ceiling uint64) bool {
	if uint64(l.Min) > ceiling {
		return false
	}
	if l.Max != nil {
		return l.Min <= *l.Max && uint64(*l.Max) <= ceiling
	}
	return true
}

// Ceiling returns the effective maximum: Max when set, otherwise fallback.
func (l Limits) Ceiling(fallback uint64) uint64 {
	if l.Max != nil && uint64(*l.Max) < fallback {
		return uint64(*l.Max)
	}
	return fallback
}

// GlobalDescriptor describes a global without exposing its value.
type GlobalDescriptor struct {
	Mutable bool
	Kind    Kind
}

func (d GlobalDescriptor) String() string {
	if d.Mutable {
		return "mut " + d.Kind.String()
	}
	return d.Kind.String()
}

// FuncType is a function signature.
type FuncType struct {
	Params  []Kind
	Results []Kind
}

// Equal reports whether both signatures have identical parameter and
// result kinds.
func (f FuncType) Equal(o FuncType) bool {
	return kindsEqual(f.Params, o.Params) && kindsEqual(f.Results, o.Results)
}

func kindsEqual(a, b []Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders the signature as "(i32, i64) -> (f32)".
func (f FuncType) String() string {
	var b strings.Builder
	writeKinds(&b, f.Params)
	b.WriteString(" -> ")
	writeKinds(&b, f.Results)
	return b.String()
}

func writeKinds(b *strings.Builder, ks []Kind) {
	b.WriteByte('(')
	for i, k := range ks {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
	}
	b.WriteByte(')')
}

// FuncTypeOf converts wasm value type bytes into a FuncType.
func FuncTypeOf(params, results []wazeroapi.ValueType) (FuncType, bool) {
	ps, ok := kindsOf(params)
	if !ok {
		return FuncType{}, false
	}
	rs, ok := kindsOf(results)
	if !ok {
		return FuncType{}, false
	}
	return FuncType{Params: ps, Results: rs}, true
}

func kindsOf(vts []wazeroapi.ValueType) ([]Kind, bool) {
	out := make([]Kind, len(vts))
	for i, vt := range vts {
		k, ok := KindOf(vt)
		if !ok {
			return nil, false
		}
		out[i] = k
	}
	return out, true
}

// ExternKind identifies the kind of an import or export. Values match the
// wasm binary encoding.
type ExternKind byte

const (
	ExternFunc   = ExternKind(wazeroapi.ExternTypeFunc)
	ExternTable  = ExternKind(wazeroapi.ExternTypeTable)
	ExternMemory = ExternKind(wazeroapi.ExternTypeMemory)
	ExternGlobal = ExternKind(wazeroapi.ExternTypeGlobal)
)

func (k ExternKind) String() string {
	return wazeroapi.ExternTypeName(wazeroapi.ExternType(k))
}
