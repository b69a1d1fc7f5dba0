// Package errors provides structured error types for the embedding core.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Kind values form the failure taxonomy of the boundary:
// validation, link, limits, type_mismatch, mutability, not_found, arity and
// trap, plus a few boundary specific kinds (in_use, destroyed).
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseGlobal, errors.KindTypeMismatch).
//		Path("counter").
//		Expected("i32").
//		Actual("f64").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Immutable(errors.PhaseGlobal, nil)
//	err := errors.GrowFailed(errors.PhaseMemory, 1, 1, 1)
//
// Sentinels match by kind regardless of phase:
//
//	if errors.Is(err, errors.ErrLimits) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
