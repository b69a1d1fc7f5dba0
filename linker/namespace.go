package linker

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

// Binding is one importable item. Exactly one of Func, Memory, Table and
// Global is set, matching Kind.
type Binding struct {
	Func   *store.Function
	Memory *store.Memory
	Table  *store.Table
	Global *store.Global
	Name   string
	Kind   api.ExternKind
}

// Namespace holds the bindings of one import module name, e.g. "env".
// Defining a name that already exists replaces the previous binding.
type Namespace struct {
	bindings map[string]*Binding
	owner    *Imports
	name     string
	mu       sync.RWMutex
}

// Name returns the namespace name.
func (ns *Namespace) Name() string {
	return ns.name
}

func (ns *Namespace) define(b *Binding) error {
	if b.Name == "" {
		return errors.InvalidInput(errors.PhaseHost, "import name cannot be empty")
	}
	if ns.owner.Closed() {
		return errors.Destroyed(errors.PhaseHost, "import object")
	}
	ns.mu.Lock()
	_, replaced := ns.bindings[b.Name]
	ns.bindings[b.Name] = b
	ns.mu.Unlock()

	Logger().Debug("import defined",
		zap.String("namespace", ns.name),
		zap.String("name", b.Name),
		zap.Stringer("kind", b.Kind),
		zap.Bool("replaced", replaced))
	return nil
}

// DefineHostFunction binds h under name.
func (ns *Namespace) DefineHostFunction(name string, h store.HostFunction) error {
	if h == nil {
		return errors.InvalidInput(errors.PhaseHost, "host function is nil")
	}
	fn := store.NewHostFunction(ns.name+"."+name, h)
	return ns.define(&Binding{Name: name, Kind: api.ExternFunc, Func: fn})
}

// DefineFunc binds a value-slice callback with an explicit signature.
func (ns *Namespace) DefineFunc(name string, fn HostCallback, params, results []api.Kind) error {
	h, err := NewHostFunction(fn, params, results)
	if err != nil {
		return errors.Registration(errors.PhaseHost, ns.name, name, err)
	}
	return ns.DefineHostFunction(name, h)
}

// DefineRawFunc binds a stack-based callback with an explicit signature.
func (ns *Namespace) DefineRawFunc(name string, fn RawHostCallback, params, results []api.Kind) error {
	h, err := NewRawHostFunction(fn, params, results)
	if err != nil {
		return errors.Registration(errors.PhaseHost, ns.name, name, err)
	}
	return ns.DefineHostFunction(name, h)
}

// DefineGoFunc binds a Go function whose signature is derived by
// reflection; see NewGoFunction.
func (ns *Namespace) DefineGoFunc(name string, fn any) error {
	h, err := NewGoFunction(fn)
	if err != nil {
		return errors.Registration(errors.PhaseHost, ns.name, name, err)
	}
	return ns.DefineHostFunction(name, h)
}

// DefineFunction binds an existing function, such as an export of another
// instance.
func (ns *Namespace) DefineFunction(name string, f *store.Function) error {
	if f == nil {
		return errors.InvalidInput(errors.PhaseHost, "function is nil")
	}
	return ns.define(&Binding{Name: name, Kind: api.ExternFunc, Func: f})
}

func (ns *Namespace) DefineMemory(name string, m *store.Memory) error {
	if m == nil {
		return errors.InvalidInput(errors.PhaseHost, "memory is nil")
	}
	return ns.define(&Binding{Name: name, Kind: api.ExternMemory, Memory: m})
}

func (ns *Namespace) DefineTable(name string, t *store.Table) error {
	if t == nil {
		return errors.InvalidInput(errors.PhaseHost, "table is nil")
	}
	return ns.define(&Binding{Name: name, Kind: api.ExternTable, Table: t})
}

func (ns *Namespace) DefineGlobal(name string, g *store.Global) error {
	if g == nil {
		return errors.InvalidInput(errors.PhaseHost, "global is nil")
	}
	return ns.define(&Binding{Name: name, Kind: api.ExternGlobal, Global: g})
}

// Get returns the binding for name, or nil.
func (ns *Namespace) Get(name string) *Binding {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.bindings[name]
}

// Names returns the bound names in sorted order.
func (ns *Namespace) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	names := make([]string, 0, len(ns.bindings))
	for n := range ns.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bindings.
func (ns *Namespace) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.bindings)
}
