package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/circuit/internal/ir"
)

// Constructor builds a block's behavior by registering subscriptions on the
// builder. It runs once per placement; returning an error aborts the
// placement.
type Constructor func(b *Builder) error

type registryEntry struct {
	def  *ir.BlockDef
	ctor Constructor
}

// Registry is the explicit block type → (definition, constructor) dispatch
// table. It is filled once at startup and read-only afterwards.
type Registry struct {
	entries map[string]registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds a block type. Names must be unique.
func (r *Registry) Register(def *ir.BlockDef, ctor Constructor) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("register: block definition needs a name")
	}
	if ctor == nil {
		return fmt.Errorf("register %s: nil constructor", def.Name)
	}
	if _, dup := r.entries[def.Name]; dup {
		return fmt.Errorf("register %s: block type already registered", def.Name)
	}
	r.entries[def.Name] = registryEntry{def: def, ctor: ctor}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def *ir.BlockDef, ctor Constructor) {
	if err := r.Register(def, ctor); err != nil {
		panic(err)
	}
}

// Lookup returns the definition of a block type.
func (r *Registry) Lookup(blockType string) (*ir.BlockDef, bool) {
	e, ok := r.entries[blockType]
	return e.def, ok
}

// Types returns registered block type names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) entry(blockType string) (registryEntry, bool) {
	e, ok := r.entries[blockType]
	return e, ok
}
