package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate    Phase = "validate"    // bytecode validation
	PhaseDecode      Phase = "decode"      // binary decoding
	PhaseLink        Phase = "link"        // import resolution
	PhaseInstantiate Phase = "instantiate" // allocation and segment initialization
	PhaseCall        Phase = "call"        // exported function invocation
	PhaseMemory      Phase = "memory"      // linear memory operations
	PhaseTable       Phase = "table"       // table operations
	PhaseGlobal      Phase = "global"      // global cell operations
	PhaseValue       Phase = "value"       // typed value conversion
	PhaseHost        Phase = "host"        // host function registration
	PhaseBoundary    Phase = "boundary"    // handle based boundary
)

// Kind categorizes the error
type Kind string

const (
	KindValidation   Kind = "validation"
	KindLink         Kind = "link"
	KindLimits       Kind = "limits"
	KindTypeMismatch Kind = "type_mismatch"
	KindMutability   Kind = "mutability"
	KindNotFound     Kind = "not_found"
	KindArity        Kind = "arity"
	KindTrap         Kind = "trap"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindInvalidInput Kind = "invalid_input"
	KindInUse        Kind = "in_use"
	KindDestroyed    Kind = "destroyed"
	KindInvalidState Kind = "invalid_state"
	KindRegistration Kind = "registration"
	KindInvalidData  Kind = "invalid_data"

	// KindInvalidHandle marks a boundary handle that is stale, forged, or
	// of the wrong object type.
	KindInvalidHandle Kind = "invalid_handle"
)

// Sentinels for errors.Is. They carry no phase, so they match any error of
// the same kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrLink         = &Error{Kind: KindLink}
	ErrLimits       = &Error{Kind: KindLimits}
	ErrType         = &Error{Kind: KindTypeMismatch}
	ErrMutability   = &Error{Kind: KindMutability}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrArity        = &Error{Kind: KindArity}
	ErrTrap         = &Error{Kind: KindTrap}
	ErrOutOfBounds  = &Error{Kind: KindOutOfBounds}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrInUse        = &Error{Kind: KindInUse}
	ErrDestroyed    = &Error{Kind: KindDestroyed}

	ErrInvalidHandle = &Error{Kind: KindInvalidHandle}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Expected string
	Actual   string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	typed := e.Expected != "" || e.Actual != ""
	if typed {
		b.WriteString(": ")
		switch {
		case e.Expected != "" && e.Actual != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
			b.WriteString(", got ")
			b.WriteString(e.Actual)
		case e.Expected != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
		default:
			b.WriteString("got ")
			b.WriteString(e.Actual)
		}
	}

	if e.Detail != "" {
		if typed {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Is is errors.Is from the standard library, re-exported so callers that
// import this package as errors need not alias it.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the path of the offending item, e.g. namespace and name
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Expected sets the expected type or value description
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Actual sets the observed type or value description
func (b *Builder) Actual(s string) *Builder {
	b.err.Actual = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Validation wraps a validator rejection
func Validation(cause error) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindValidation,
		Detail: "module failed validation",
		Cause:  cause,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, expected, actual string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		Expected: expected,
		Actual:   actual,
	}
}

// Immutable creates a mutability error for a write to a constant cell
func Immutable(phase Phase, path []string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMutability,
		Path:   path,
		Detail: "cannot set an immutable global",
	}
}

// InvalidLimits reports a limits descriptor whose minimum exceeds its maximum
// or the ceiling of the object kind.
func InvalidLimits(phase Phase, min uint32, max *uint32, ceiling uint64) *Error {
	detail := fmt.Sprintf("minimum %d exceeds ceiling %d", min, ceiling)
	if max != nil {
		if uint64(*max) > ceiling {
			detail = fmt.Sprintf("maximum %d exceeds ceiling %d", *max, ceiling)
		} else if min > *max {
			detail = fmt.Sprintf("minimum %d exceeds maximum %d", min, *max)
		}
	}
	return &Error{
		Phase:  phase,
		Kind:   KindLimits,
		Detail: detail,
		Value:  min,
	}
}

// GrowFailed reports a growth request that would exceed the maximum or
// overflow the size counter.
func GrowFailed(phase Phase, current, delta uint32, max uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLimits,
		Detail: fmt.Sprintf("cannot grow from %d by %d: maximum is %d", current, delta, max),
		Value:  delta,
	}
}

// Arity creates an argument or result count mismatch error
func Arity(phase Phase, path []string, want, got int) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindArity,
		Path:     path,
		Expected: fmt.Sprintf("%d values", want),
		Actual:   fmt.Sprintf("%d", got),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Trap wraps a guest execution fault
func Trap(phase Phase, path []string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Path:   path,
		Detail: "execution trapped",
		Cause:  cause,
	}
}

// Destroyed reports use of an object after it was released
func Destroyed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDestroyed,
		Detail: fmt.Sprintf("%s has been destroyed", what),
	}
}

// InUse reports an attempt to release an object other instances still share
func InUse(phase Phase, what string, holders int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInUse,
		Detail: fmt.Sprintf("%s is still imported by %d instance(s)", what, holders),
		Value:  holders,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedImport represents a single import slot the registry could not satisfy
type UnresolvedImport struct {
	Namespace string // e.g., "env"
	Name      string // e.g., "log"
	Kind      string // func, table, memory or global
}

// UnresolvedImportsError is returned when linking fails because one or
// more imports have no binding.
type UnresolvedImportsError struct {
	Imports []UnresolvedImport
}

// NewUnresolvedImportsError creates an error from a list of "namespace.name" keys
func NewUnresolvedImportsError(keys []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Imports: make([]UnresolvedImport, 0, len(keys)),
	}
	for _, key := range keys {
		ns, name := parseImportKey(key)
		result.Imports = append(result.Imports, UnresolvedImport{
			Namespace: ns,
			Name:      name,
		})
	}
	return result
}

// Add appends an unresolved import slot
func (e *UnresolvedImportsError) Add(namespace, name, kind string) {
	e.Imports = append(e.Imports, UnresolvedImport{Namespace: namespace, Name: name, Kind: kind})
}

func parseImportKey(key string) (namespace, name string) {
	ns, n, found := strings.Cut(key, ".")
	if found {
		return ns, n
	}
	return key, ""
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] link: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[link] link: %d unresolved import(s):", len(e.Imports)))

	// Group by namespace for cleaner output
	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		entry := imp.Name
		if imp.Kind != "" {
			entry += " (" + imp.Kind + ")"
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], entry)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":")
		for _, entry := range byNS[ns] {
			b.WriteString("\n    - ")
			b.WriteString(entry)
		}
	}

	return b.String()
}

// Is reports whether target matches this error type or the link sentinel
func (e *UnresolvedImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *UnresolvedImportsError:
		return true
	case *Error:
		return t.Kind == KindLink && (t.Phase == "" || t.Phase == PhaseLink)
	}
	return false
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Path:   []string{namespace, name},
		Detail: fmt.Sprintf("register %s.%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation wraps a failure while allocating or initializing an instance
func Instantiation(kind Kind, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   kind,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// ParseFailed creates a decoding error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
