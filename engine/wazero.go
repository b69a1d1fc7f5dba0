package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/errors"
)

// Config holds configuration for the wazero-backed validator.
type Config struct {
	// MemoryLimitPages rejects modules whose memory minimum exceeds this many
	// 64KiB pages. 0 means the full 65536 pages.
	MemoryLimitPages uint32
}

// WazeroValidator validates modules by compiling them with a wazero
// interpreter runtime restricted to the MVP feature set plus mutable
// globals and multi-value. Compilation type checks every function body.
// Safe for concurrent use.
type WazeroValidator struct {
	runtime wazero.Runtime
	mu      sync.RWMutex
	closed  bool
}

// NewWazeroValidator creates a validator. cfg may be nil.
func NewWazeroValidator(ctx context.Context, cfg *Config) *WazeroValidator {
	runtimeCfg := wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(api.CoreFeaturesV1 | api.CoreFeatureMultiValue)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &WazeroValidator{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
}

func (v *WazeroValidator) Validate(ctx context.Context, data []byte) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return errors.Destroyed(errors.PhaseValidate, "validator")
	}

	compiled, err := v.runtime.CompileModule(ctx, data)
	if err != nil {
		Logger().Debug("wazero rejected module", zap.Error(err))
		return errors.Validation(err)
	}
	return compiled.Close(ctx)
}

// Close releases the wazero runtime. Validate fails afterwards.
func (v *WazeroValidator) Close(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.runtime.Close(ctx)
}
