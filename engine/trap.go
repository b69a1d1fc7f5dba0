package engine

import (
	"fmt"
)

// TrapCode identifies why guest execution was aborted.
type TrapCode uint8

const (
	TrapUnreachable TrapCode = iota + 1
	TrapIntegerDivideByZero
	TrapIntegerOverflow
	TrapInvalidConversion
	TrapMemoryOutOfBounds
	TrapTableOutOfBounds
	TrapUninitializedElement
	TrapIndirectCallTypeMismatch
	TrapCallStackExhausted
	TrapHostFunction
	TrapInterrupted
)

var trapMessages = [...]string{
	TrapUnreachable:              "unreachable executed",
	TrapIntegerDivideByZero:      "integer divide by zero",
	TrapIntegerOverflow:          "integer overflow",
	TrapInvalidConversion:        "invalid conversion to integer",
	TrapMemoryOutOfBounds:        "out of bounds memory access",
	TrapTableOutOfBounds:         "undefined element",
	TrapUninitializedElement:     "uninitialized element",
	TrapIndirectCallTypeMismatch: "indirect call type mismatch",
	TrapCallStackExhausted:       "call stack exhausted",
	TrapHostFunction:             "host function failed",
	TrapInterrupted:              "execution interrupted",
}

func (c TrapCode) String() string {
	if int(c) < len(trapMessages) && trapMessages[c] != "" {
		return trapMessages[c]
	}
	return fmt.Sprintf("trap(%d)", uint8(c))
}

// Trap is a guest execution fault. Func names the function that was
// executing when it can be determined; Cause holds a host function's error
// or recovered panic.
type Trap struct {
	Cause error
	Func  string
	Code  TrapCode
}

// NewTrap returns a trap with the given code.
func NewTrap(code TrapCode) *Trap {
	return &Trap{Code: code}
}

func (t *Trap) Error() string {
	msg := "wasm trap: " + t.Code.String()
	if t.Func != "" {
		msg += " in " + t.Func
	}
	if t.Cause != nil {
		msg += ": " + t.Cause.Error()
	}
	return msg
}

func (t *Trap) Unwrap() error {
	return t.Cause
}

// Is matches any *Trap with the same code, or any *Trap when the target
// code is zero.
func (t *Trap) Is(target error) bool {
	o, ok := target.(*Trap)
	if !ok {
		return false
	}
	return o.Code == 0 || o.Code == t.Code
}
