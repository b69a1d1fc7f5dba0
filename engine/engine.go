package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

// Validator decides whether a byte sequence is a well-formed module.
type Validator interface {
	Validate(ctx context.Context, data []byte) error
}

// Executor runs module code.
//
// Compile prepares every module function of inst; the executor may keep
// private state in inst.EngineState. Invoke calls fn on behalf of caller,
// the instance whose export or start function is being run, with arguments
// in the uint64 encoding of api.Value.Raw, and returns its results the same
// way; a host function reached directly receives caller's context. Guest
// faults are returned as *Trap. Release drops what Compile built.
type Executor interface {
	Compile(ctx context.Context, inst *store.ModuleInstance) error
	Invoke(ctx context.Context, caller *store.ModuleInstance, fn *store.Function, args []uint64) ([]uint64, error)
	Release(inst *store.ModuleInstance)
}

// StructuralValidator decodes the module and checks its sections, index
// spaces, limits, exports, start function, constant expressions and the
// block structure of function bodies. It does not type check operand
// stacks; chain it with WazeroValidator for that.
type StructuralValidator struct{}

func (StructuralValidator) Validate(_ context.Context, data []byte) error {
	if _, err := wasm.ParseModuleValidate(data); err != nil {
		Logger().Debug("structural validation failed", zap.Error(err))
		return errors.Validation(err)
	}
	return nil
}

type chain []Validator

// Chain runs validators in order and returns the first failure.
func Chain(validators ...Validator) Validator {
	return chain(validators)
}

func (c chain) Validate(ctx context.Context, data []byte) error {
	for _, v := range c {
		if err := v.Validate(ctx, data); err != nil {
			return err
		}
	}
	return nil
}
