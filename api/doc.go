// Package api defines the typed values and descriptors that cross the
// host/guest boundary.
//
// A Value is a tagged union over the four core numeric types. It can only be
// built through I32, I64, F32 and F64 (or FromRaw, which validates the tag),
// and reading it as the wrong kind returns a type_mismatch error instead of
// reinterpreting bits:
//
//	v := api.I32(5)
//	n, err := v.AsI32()  // 5, nil
//	_, err = v.AsF64()   // [value] type_mismatch: expected f64, got i32
//
// Float values keep their exact bit pattern, so NaN payloads survive a round
// trip and Equal compares them by bits.
package api
