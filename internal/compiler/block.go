// Package compiler compiles CUE block catalogs into block definitions and
// validates them.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/circuit/internal/ir"
)

// CompileBlock parses a CUE value into a BlockDef.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the block struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`block: lamp: { input: ..., output: ... }`)
//	def, err := CompileBlock(v.LookupPath(cue.ParsePath("block.lamp")))
//
// When inputOrder or outputOrder is omitted, connectors keep the order in
// which they are declared in the source.
func CompileBlock(v cue.Value) (*ir.BlockDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &ir.BlockDef{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = unquote(labels[len(labels)-1])
	}

	var declaredIn, declaredOut []string
	var err error
	def.Inputs, declaredIn, err = parseConnectors(v, "input")
	if err != nil {
		return nil, err
	}
	def.Outputs, declaredOut, err = parseConnectors(v, "output")
	if err != nil {
		return nil, err
	}

	if def.InputOrder, err = parseStringList(v, "inputOrder"); err != nil {
		return nil, err
	}
	if def.InputOrder == nil {
		def.InputOrder = declaredIn
	}
	if def.OutputOrder, err = parseStringList(v, "outputOrder"); err != nil {
		return nil, err
	}
	if def.OutputOrder == nil {
		def.OutputOrder = declaredOut
	}

	if mv := v.LookupPath(cue.ParsePath("maxPerMachine")); mv.Exists() {
		n, err := mv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		def.MaxPerMachine = int(n)
	}
	if sv := v.LookupPath(cue.ParsePath("speedControl")); sv.Exists() {
		if def.SpeedControl, err = sv.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return def, nil
}

// parseConnectors extracts the connectors under field, returning them with
// their declaration order.
func parseConnectors(v cue.Value, field string) (map[string]ir.ConnectorDef, []string, error) {
	out := make(map[string]ir.ConnectorDef)
	cv := v.LookupPath(cue.ParsePath(field))
	if !cv.Exists() {
		return out, nil, nil
	}
	iter, err := cv.Fields()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}
	var order []string
	for iter.Next() {
		name := iter.Selector().Unquoted()
		conn, err := parseConnector(iter.Value(), field+"."+name)
		if err != nil {
			return nil, nil, err
		}
		out[name] = conn
		order = append(order, name)
	}
	return out, order, nil
}

func parseConnector(v cue.Value, path string) (ir.ConnectorDef, error) {
	var c ir.ConnectorDef
	var err error
	if c.DisplayName, err = optionalString(v, "displayName"); err != nil {
		return c, err
	}
	if c.Tooltip, err = optionalString(v, "tooltip"); err != nil {
		return c, err
	}
	if c.ConnectorHidden, err = optionalBool(v, "connectorHidden"); err != nil {
		return c, err
	}
	if c.ConfigHidden, err = optionalBool(v, "configHidden"); err != nil {
		return c, err
	}
	if c.EnumValues, err = parseStringList(v, "enumValues"); err != nil {
		return c, err
	}

	c.Types = make(map[ir.Kind]ir.TypeDef)
	tv := v.LookupPath(cue.ParsePath("types"))
	if !tv.Exists() {
		return c, nil
	}
	iter, err := tv.Fields()
	if err != nil {
		return c, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		k, err := ir.ParseKind(label)
		if err != nil || !k.IsPrimitive() {
			return c, &CompileError{
				Field:   path + ".types." + label,
				Message: fmt.Sprintf("unknown value kind %q", label),
				Pos:     iter.Value().Pos(),
			}
		}
		td, err := parseTypeDef(iter.Value())
		if err != nil {
			return c, err
		}
		c.Types[k] = td
	}
	return c, nil
}

func parseTypeDef(v cue.Value) (ir.TypeDef, error) {
	var td ir.TypeDef
	if cv := v.LookupPath(cue.ParsePath("config")); cv.Exists() {
		p, err := toPayload(cv)
		if err != nil {
			return td, err
		}
		td.Default = p
	}
	if cv := v.LookupPath(cue.ParsePath("clamp")); cv.Exists() {
		var c ir.Clamp
		var err error
		if c.Min, err = cv.LookupPath(cue.ParsePath("min")).Float64(); err != nil {
			return td, formatCUEError(err)
		}
		if c.Max, err = cv.LookupPath(cue.ParsePath("max")).Float64(); err != nil {
			return td, formatCUEError(err)
		}
		if sv := cv.LookupPath(cue.ParsePath("step")); sv.Exists() {
			if c.Step, err = sv.Float64(); err != nil {
				return td, formatCUEError(err)
			}
		}
		td.Clamp = &c
	}
	if cv := v.LookupPath(cue.ParsePath("control")); cv.Exists() {
		td.Control = &ir.ControlDef{}
		if dv := cv.LookupPath(cue.ParsePath("config")); dv.Exists() {
			p, err := toPayload(dv)
			if err != nil {
				return td, err
			}
			td.Control.Default = p
		}
	}
	return td, nil
}

// toPayload converts a concrete CUE value into a payload tree.
func toPayload(v cue.Value) (ir.Payload, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{Field: "config", Message: "default payload must be concrete", Pos: v.Pos()}
	}
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Number(f), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var arr ir.Array
		for iter.Next() {
			p, err := toPayload(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, p)
		}
		if arr == nil {
			arr = ir.Array{}
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t := ir.Table{}
		for iter.Next() {
			p, err := toPayload(iter.Value())
			if err != nil {
				return nil, err
			}
			t[iter.Selector().Unquoted()] = p
		}
		return t, nil
	}
	return nil, &CompileError{
		Field:   "config",
		Message: fmt.Sprintf("unsupported payload kind: %v", v.Kind()),
		Pos:     v.Pos(),
	}
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// parseStringList returns nil when the field is absent.
func parseStringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func unquote(sel cue.Selector) string {
	if sel.IsString() {
		return sel.Unquoted()
	}
	return sel.String()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
