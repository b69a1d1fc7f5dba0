package store

import (
	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
)

// Global is a typed storage cell. Its kind is fixed at creation.
type Global struct {
	lifecycle
	value   api.Value
	mutable bool
}

// NewGlobal creates a global holding v.
func NewGlobal(v api.Value, mutable bool) *Global {
	return &Global{value: v, mutable: mutable}
}

// Get returns the current value.
func (g *Global) Get() api.Value {
	return g.value
}

// Set replaces the value. An immutable global rejects every write before
// the kind is compared.
func (g *Global) Set(v api.Value) error {
	if err := g.check(errors.PhaseGlobal, "global"); err != nil {
		return err
	}
	if !g.mutable {
		return errors.Immutable(errors.PhaseGlobal, nil)
	}
	if v.Kind() != g.value.Kind() {
		return errors.TypeMismatch(errors.PhaseGlobal, nil, g.value.Kind().String(), v.Kind().String())
	}
	g.value = v
	return nil
}

// Descriptor returns the kind and mutability without the value.
func (g *Global) Descriptor() api.GlobalDescriptor {
	return api.GlobalDescriptor{Mutable: g.mutable, Kind: g.value.Kind()}
}

// Kind returns the fixed value kind.
func (g *Global) Kind() api.Kind {
	return g.value.Kind()
}

// Mutable reports whether Set is permitted.
func (g *Global) Mutable() bool {
	return g.mutable
}

// Raw returns the value in the executor's stack encoding.
func (g *Global) Raw() uint64 {
	return g.value.Raw()
}

// SetRaw stores a value in the executor's stack encoding. The caller has
// already validated mutability and kind.
func (g *Global) SetRaw(raw uint64) {
	v, _ := api.FromRaw(g.value.Kind(), raw)
	g.value = v
}

// Destroy releases the cell. It fails while an instance still holds it.
func (g *Global) Destroy() error {
	return g.destroy(errors.PhaseGlobal, "global")
}

// Release drops one holder.
func (g *Global) Release() {
	g.release()
}
