package linker

import (
	"sort"
	"sync"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
)

// Imports is an import object: host bindings grouped by namespace, used to
// satisfy the imports of the modules it links. Safe for concurrent use.
type Imports struct {
	namespaces map[string]*Namespace
	closed     bool
	mu         sync.RWMutex
}

// NewImports returns an empty import object.
func NewImports() *Imports {
	return &Imports{namespaces: make(map[string]*Namespace)}
}

// Namespace returns the namespace called name, creating it on first use.
func (im *Imports) Namespace(name string) *Namespace {
	im.mu.Lock()
	defer im.mu.Unlock()
	if ns, ok := im.namespaces[name]; ok {
		return ns
	}
	ns := &Namespace{
		name:     name,
		owner:    im,
		bindings: make(map[string]*Binding),
	}
	im.namespaces[name] = ns
	return ns
}

// RegisterFunction binds fn as namespace.name with the given signature. A
// later registration of the same pair replaces this one.
func (im *Imports) RegisterFunction(namespace, name string, fn HostCallback, params, results []api.Kind) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	return im.Namespace(namespace).DefineFunc(name, fn, params, results)
}

// DefineFunc binds a Go function at namespace.name; see NewGoFunction.
func (im *Imports) DefineFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	return im.Namespace(namespace).DefineGoFunc(name, fn)
}

// DefineInstance exposes every export of inst under namespace, so another
// module can import from it.
func (im *Imports) DefineInstance(namespace string, inst *store.ModuleInstance) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if inst == nil {
		return errors.InvalidInput(errors.PhaseHost, "instance is nil")
	}
	ns := im.Namespace(namespace)
	names := make([]string, 0, len(inst.Exports))
	for n := range inst.Exports {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		var err error
		switch inst.Exports[n].Kind {
		case api.ExternFunc:
			f, _ := inst.ExportedFunction(n)
			err = ns.DefineFunction(n, f)
		case api.ExternMemory:
			m, _ := inst.ExportedMemory(n)
			err = ns.DefineMemory(n, m)
		case api.ExternTable:
			t, _ := inst.ExportedTable(n)
			err = ns.DefineTable(n, t)
		case api.ExternGlobal:
			g, _ := inst.ExportedGlobal(n)
			err = ns.DefineGlobal(n, g)
		}
		if err != nil {
			return errors.Registration(errors.PhaseHost, namespace, n, err)
		}
	}
	return nil
}

// Lookup returns the binding for namespace.name.
func (im *Imports) Lookup(namespace, name string) (*Binding, bool) {
	im.mu.RLock()
	ns, ok := im.namespaces[namespace]
	im.mu.RUnlock()
	if !ok {
		return nil, false
	}
	b := ns.Get(name)
	return b, b != nil
}

// Namespaces returns the namespace names in sorted order.
func (im *Imports) Namespaces() []string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	out := make([]string, 0, len(im.namespaces))
	for n := range im.namespaces {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Closed reports whether Close has been called.
func (im *Imports) Closed() bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.closed
}

// Close drops every binding. Instances already linked keep what they
// resolved; host memories, tables and globals stay owned by the host.
// Closing twice is a no-op.
func (im *Imports) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.closed {
		return nil
	}
	im.closed = true
	im.namespaces = make(map[string]*Namespace)
	return nil
}
