// Package blocks provides the built-in block types: an embedded CUE catalog
// of definitions and the constructor dispatch table that gives each type
// its behavior.
package blocks

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/circuit/internal/compiler"
	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
)

//go:embed catalog.cue
var catalogSource []byte

// Domain errors that burn a block.
var (
	ErrDivisionByZero    = errors.New("division by zero")
	ErrNonFinite         = errors.New("non-finite result")
	ErrAddressOutOfRange = errors.New("memory address out of range")
)

// constructors is the explicit block type → behavior table. Every entry
// must have a definition in catalog.cue and vice versa.
var constructors = map[string]engine.Constructor{
	"constant":   constant,
	"arithmetic": arithmetic,
	"not":        not,
	"and":        and,
	"memory":     memory,
	"timer":      timer,
	"pid":        pid,
	"sensor":     sensor,
	"button":     button,
	"overclock":  overclock,
	"speaker":    speaker,
	"light":      light,
	"emitter":    emitter,
}

var builtin = sync.OnceValues(func() (*compiler.Catalog, error) {
	return compiler.CompileSource("catalog.cue", catalogSource)
})

// Catalog returns the compiled built-in catalog.
func Catalog() (*compiler.Catalog, error) {
	return builtin()
}

// Constructor returns the behavior of a built-in block type.
func Constructor(blockType string) (engine.Constructor, bool) {
	c, ok := constructors[blockType]
	return c, ok
}

// Register adds every built-in block type to r.
func Register(r *engine.Registry) error {
	cat, err := Catalog()
	if err != nil {
		return fmt.Errorf("built-in catalog: %w", err)
	}
	return RegisterCatalog(r, cat)
}

// RegisterCatalog registers the definitions of cat, pairing each with the
// built-in constructor of the same name. A catalog may re-declare built-in
// types (different defaults, clamps, labels) but cannot introduce types
// without a constructor.
func RegisterCatalog(r *engine.Registry, cat *compiler.Catalog) error {
	var errs []error
	for _, def := range cat.Defs() {
		ctor, ok := constructors[def.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("block type %q has no constructor", def.Name))
			continue
		}
		if err := r.Register(def, ctor); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewRegistry returns a registry holding every built-in block type.
func NewRegistry() (*engine.Registry, error) {
	r := engine.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

func enumInput(ctx *engine.Context, name, def string) string {
	if v, ok := ctx.Input(name); ok {
		if e, ok := v.(ir.EnumValue); ok {
			return string(e)
		}
	}
	return def
}
