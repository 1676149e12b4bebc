package compiler

import (
	"errors"
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/circuit/internal/ir"
)

// Catalog is a compiled, validated set of block definitions keyed by type
// name. Immutable after construction.
type Catalog struct {
	defs  map[string]*ir.BlockDef
	order []string
}

// NewCatalog validates defs and indexes them by name. Duplicate names and
// validation failures are reported together.
func NewCatalog(defs []*ir.BlockDef) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*ir.BlockDef, len(defs))}
	var errs []error
	for _, def := range defs {
		if _, dup := c.defs[def.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   "block." + def.Name,
				Message: fmt.Sprintf("duplicate block type %q", def.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		for _, ve := range Validate(def) {
			errs = append(errs, ve)
		}
		c.defs[def.Name] = def
		c.order = append(c.order, def.Name)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Lookup returns the definition of a block type.
func (c *Catalog) Lookup(name string) (*ir.BlockDef, bool) {
	def, ok := c.defs[name]
	return def, ok
}

// Names returns block type names in declaration order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.order)
}

// Defs returns definitions in declaration order.
func (c *Catalog) Defs() []*ir.BlockDef {
	out := make([]*ir.BlockDef, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.defs[name])
	}
	return out
}

// CompileCatalog compiles every block under the top-level "block" field
// of v. All compile errors are collected.
func CompileCatalog(v cue.Value) ([]*ir.BlockDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	bv := v.LookupPath(cue.ParsePath("block"))
	if !bv.Exists() {
		return nil, &CompileError{Field: "block", Message: "catalog declares no blocks", Pos: v.Pos()}
	}
	iter, err := bv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []*ir.BlockDef
	var errs []error
	for iter.Next() {
		def, err := CompileBlock(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("block %s: %w", iter.Selector().Unquoted(), err))
			continue
		}
		defs = append(defs, def)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

// CompileSource compiles and validates a single CUE catalog document.
func CompileSource(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	defs, err := CompileCatalog(v)
	if err != nil {
		return nil, err
	}
	return NewCatalog(defs)
}
