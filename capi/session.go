package capi

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/lasterror"
	"github.com/dejan-stankovic/wasmer/resource"
	"github.com/dejan-stankovic/wasmer/runtime"
	"github.com/dejan-stankovic/wasmer/store"
)

// Session is one calling context of the boundary. It owns a runtime, the
// objects created through it, and the last-error channel every failing
// operation writes to. Sessions are independent: concurrent sessions never
// observe each other's errors or handles.
type Session struct {
	rt    *runtime.Runtime
	ctx   context.Context
	errs  *lasterror.Channel
	log   *zap.Logger
	table *resource.Table

	memories  resource.Typed[*memoryEntry]
	tables    resource.Typed[*tableEntry]
	globals   resource.Typed[*globalEntry]
	instances resource.Typed[*instanceEntry]
	imports   resource.Typed[*importEntry]
	contexts  resource.Typed[*contextEntry]

	// byContext maps the context a host function receives back to the
	// handle its callback sees.
	mu        sync.Mutex
	byContext map[*store.InstanceContext]ContextHandle
	closed    bool
}

// NewSession creates a session. ctx bounds every call made through it;
// cancelling it interrupts running guest code.
func NewSession(ctx context.Context, opts ...runtime.Option) (*Session, error) {
	ctx, errs := lasterror.WithChannel(ctx)
	rt, err := runtime.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		rt:        rt,
		ctx:       ctx,
		errs:      errs,
		log:       rt.Logger(),
		table:     resource.NewTable(),
		byContext: make(map[*store.InstanceContext]ContextHandle),
	}
	s.memories = resource.NewTyped[*memoryEntry](s.table, typeMemory)
	s.tables = resource.NewTyped[*tableEntry](s.table, typeTable)
	s.globals = resource.NewTyped[*globalEntry](s.table, typeGlobal)
	s.instances = resource.NewTyped[*instanceEntry](s.table, typeInstance)
	s.imports = resource.NewTyped[*importEntry](s.table, typeImportObject)
	s.contexts = resource.NewTyped[*contextEntry](s.table, typeContext)

	s.table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		if e.Type == resource.EventCreated || e.Type == resource.EventDropped {
			s.log.Debug("handle "+e.Type.String(),
				zap.String("type", typeNames[e.TypeID]),
				zap.Uint64("handle", uint64(e.Handle)))
		}
	}))
	return s, nil
}

// Runtime exposes the session's runtime.
func (s *Session) Runtime() *runtime.Runtime {
	return s.rt
}

// fail records err as the session's last error and returns Error.
func (s *Session) fail(err error) Result {
	s.errs.Record(err)
	s.log.Debug("boundary call failed", zap.Error(err))
	return Error
}

func badHandle(what string, h uint64) error {
	return errors.New(errors.PhaseBoundary, errors.KindInvalidHandle).
		Detail("invalid %s handle %#x", what, h).
		Build()
}

// removeErr translates arena failures into boundary errors. Errors from
// the object's own teardown pass through.
func removeErr(what string, h uint64, err error) error {
	switch {
	case errors.Is(err, resource.ErrOutstandingBorrow):
		return errors.New(errors.PhaseBoundary, errors.KindInUse).
			Detail("%s %#x is in use by a running call", what, h).
			Build()
	case errors.Is(err, resource.ErrStaleHandle), errors.Is(err, resource.ErrClosed):
		return badHandle(what, h)
	}
	return err
}

// Close destroys every object the session still owns: instances first,
// then import objects, then host globals, tables and memories. The
// session is unusable afterwards. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return multierr.Combine(
		s.table.Close(),
		s.rt.Close(s.ctx),
	)
}
