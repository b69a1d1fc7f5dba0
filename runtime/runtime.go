package runtime

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/engine/interp"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

// Runtime validates and instantiates modules. It is safe for concurrent
// use; the instances it creates are not.
type Runtime struct {
	validator engine.Validator
	executor  engine.Executor
	log       *zap.Logger
	closers   []func(context.Context) error
	cfg       Config
	seq       atomic.Uint64
	mu        sync.Mutex
	closed    bool
}

func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{cfg: DefaultConfig(), log: Logger()}
	for _, opt := range opts {
		opt(r)
	}

	if r.cfg.MemoryLimitPages > store.MaxPages {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, "memory limit exceeds 65536 pages")
	}
	if r.cfg.MemoryLimitPages == 0 {
		r.cfg.MemoryLimitPages = store.MaxPages
	}

	if r.validator == nil {
		if r.cfg.StrictValidation {
			wz := engine.NewWazeroValidator(ctx, &engine.Config{MemoryLimitPages: r.cfg.MemoryLimitPages})
			r.closers = append(r.closers, wz.Close)
			r.validator = engine.Chain(engine.StructuralValidator{}, wz)
		} else {
			r.validator = engine.StructuralValidator{}
		}
	}
	if r.executor == nil {
		r.executor = interp.New(
			interp.WithMaxCallDepth(r.cfg.MaxCallDepth),
			interp.WithLogger(r.log),
		)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Runtime) Config() Config {
	return r.cfg
}

// Logger returns the logger the runtime and its instances write to.
func (r *Runtime) Logger() *zap.Logger {
	return r.log
}

// Validate reports whether data is a module this runtime would accept. It
// never records into an error channel.
func (r *Runtime) Validate(data []byte) bool {
	return r.validator.Validate(context.Background(), data) == nil
}

// Close releases the validator. Instances created by the runtime stay
// usable, but Instantiate fails afterwards.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	for _, c := range r.closers {
		err = multierr.Append(err, c(ctx))
	}
	return err
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
