package runtime

import (
	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/engine/interp"
	"github.com/dejan-stankovic/wasmer/store"
)

// Config holds runtime-wide limits.
type Config struct {
	// MemoryLimitPages caps every memory a module declares, regardless of
	// its declared maximum. 0 means the full 65536 pages.
	MemoryLimitPages uint32

	// MaxCallDepth bounds guest call nesting for the default executor.
	MaxCallDepth int

	// StrictValidation type checks function bodies with wazero in
	// addition to the structural checks.
	StrictValidation bool
}

// DefaultConfig returns the configuration New uses when no WithConfig
// option is given.
func DefaultConfig() Config {
	return Config{
		MemoryLimitPages: store.MaxPages,
		MaxCallDepth:     interp.DefaultMaxCallDepth,
		StrictValidation: true,
	}
}

// Option configures a Runtime.
type Option func(*Runtime)

func WithConfig(cfg Config) Option {
	return func(r *Runtime) {
		r.cfg = cfg
	}
}

// WithLogger sets the logger for the runtime and its default executor.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// WithValidator replaces the validator chain built from Config.
func WithValidator(v engine.Validator) Option {
	return func(r *Runtime) {
		r.validator = v
	}
}

// WithExecutor replaces the default interpreter.
func WithExecutor(e engine.Executor) Option {
	return func(r *Runtime) {
		r.executor = e
	}
}
