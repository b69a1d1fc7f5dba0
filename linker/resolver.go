package linker

import (
	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

// Resolved holds the bindings chosen for a module's imports, in import
// order within each index space.
type Resolved struct {
	Memory    *store.Memory
	Table     *store.Table
	Functions []*store.Function
	Globals   []*store.Global
}

// Link resolves every import of m against imports. A nil imports behaves
// as an empty import object.
//
// Every missing binding is collected into one
// *errors.UnresolvedImportsError. A binding of the wrong kind or type fails
// immediately with a link error naming the expected and actual types.
// Memories and tables match when their current size covers the declared
// minimum and, if the import declares a maximum, the bound item has a
// maximum no larger. Globals match on kind and mutability.
func Link(m *wasm.Module, imports *Imports) (*Resolved, error) {
	if imports != nil && imports.Closed() {
		return nil, errors.Destroyed(errors.PhaseLink, "import object")
	}

	res := &Resolved{}
	var missing errors.UnresolvedImportsError
	for _, imp := range m.Imports {
		want := api.ExternKind(imp.Desc.Kind)

		var b *Binding
		if imports != nil {
			b, _ = imports.Lookup(imp.Module, imp.Name)
		}
		if b == nil {
			missing.Add(imp.Module, imp.Name, want.String())
			continue
		}
		if b.Kind != want {
			return nil, kindMismatch(imp.Module, imp.Name, want, b.Kind)
		}

		var err error
		switch want {
		case api.ExternFunc:
			err = res.linkFunc(m, imp, b.Func)
		case api.ExternMemory:
			err = res.linkMemory(imp, b.Memory)
		case api.ExternTable:
			err = res.linkTable(imp, b.Table)
		case api.ExternGlobal:
			err = res.linkGlobal(imp, b.Global)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(missing.Imports) > 0 {
		Logger().Debug("unresolved imports", zap.Int("count", len(missing.Imports)))
		return nil, &missing
	}
	Logger().Debug("imports resolved",
		zap.Int("functions", len(res.Functions)),
		zap.Int("globals", len(res.Globals)),
		zap.Bool("memory", res.Memory != nil),
		zap.Bool("table", res.Table != nil))
	return res, nil
}

func (r *Resolved) linkFunc(m *wasm.Module, imp wasm.Import, f *store.Function) error {
	ft := m.TypeAt(imp.Desc.TypeIdx)
	if ft == nil {
		return errors.NotFound(errors.PhaseLink, "type", imp.Module+"."+imp.Name)
	}
	want := store.FuncTypeOf(*ft)
	if !f.Type.Equal(want) {
		return typeMismatch(imp.Module, imp.Name, want.String(), f.Type.String(), "function signature mismatch")
	}
	r.Functions = append(r.Functions, f)
	return nil
}

func (r *Resolved) linkMemory(imp wasm.Import, mem *store.Memory) error {
	if mem.Destroyed() {
		return errors.Destroyed(errors.PhaseLink, "memory "+imp.Module+"."+imp.Name)
	}
	want := api.Limits{Min: imp.Desc.Memory.Limits.Min, Max: imp.Desc.Memory.Limits.Max}
	have := api.Limits{Min: mem.Length(), Max: mem.Limits().Max}
	if !limitsMatch(want, have) {
		return typeMismatch(imp.Module, imp.Name, limitsString(want), limitsString(have), "memory limits mismatch")
	}
	r.Memory = mem
	return nil
}

func (r *Resolved) linkTable(imp wasm.Import, t *store.Table) error {
	if t.Destroyed() {
		return errors.Destroyed(errors.PhaseLink, "table "+imp.Module+"."+imp.Name)
	}
	want := api.Limits{Min: imp.Desc.Table.Limits.Min, Max: imp.Desc.Table.Limits.Max}
	have := api.Limits{Min: t.Length(), Max: t.Limits().Max}
	if !limitsMatch(want, have) {
		return typeMismatch(imp.Module, imp.Name, limitsString(want), limitsString(have), "table limits mismatch")
	}
	r.Table = t
	return nil
}

func (r *Resolved) linkGlobal(imp wasm.Import, g *store.Global) error {
	if g.Destroyed() {
		return errors.Destroyed(errors.PhaseLink, "global "+imp.Module+"."+imp.Name)
	}
	kind, _ := store.KindOf(imp.Desc.Global.ValType)
	want := api.GlobalDescriptor{Kind: kind, Mutable: imp.Desc.Global.Mutable}
	if have := g.Descriptor(); have != want {
		return typeMismatch(imp.Module, imp.Name, want.String(), have.String(), "global type mismatch")
	}
	r.Globals = append(r.Globals, g)
	return nil
}

// limitsMatch reports whether an item sized by have may satisfy an import
// declared with want.
func limitsMatch(want, have api.Limits) bool {
	if have.Min < want.Min {
		return false
	}
	if want.Max == nil {
		return true
	}
	return have.Max != nil && *have.Max <= *want.Max
}
