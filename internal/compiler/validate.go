package compiler

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/circuit/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Block errors (E100-E109)
	ErrBlockNameEmpty      = "E100" // block type name is required
	ErrDuplicateName       = "E101" // duplicate block type name
	ErrNegativeCardinality = "E102" // maxPerMachine below zero

	// Connector errors (E110-E119)
	ErrOutputNoKinds   = "E110" // output declares no value kind
	ErrBadOrder        = "E111" // order list names unknown or repeated connector
	ErrHiddenMultiKind = "E112" // hidden input without exactly one kind can never be resolved
	ErrEnumNoValues    = "E113" // enum kind without enumValues

	// Type errors (E120-E129)
	ErrBadDefault        = "E120" // default payload does not decode as its kind
	ErrBadClamp          = "E121" // clamp on non-number kind, or min > max, or negative step
	ErrDefaultOutOfRange = "E122" // number default outside its clamp
	ErrEnumDefault       = "E123" // enum default not among enumValues
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled block definition against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(def *ir.BlockDef) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	// E100: name is required
	if def.Name == "" {
		add(ErrBlockNameEmpty, "name", "block type name is required")
	}
	prefix := "block." + def.Name

	// E102: cardinality
	if def.MaxPerMachine < 0 {
		add(ErrNegativeCardinality, prefix+".maxPerMachine", "must be >= 0, got %d", def.MaxPerMachine)
	}

	for _, name := range def.InputNames() {
		field := prefix + ".input." + name
		conn := def.Inputs[name]
		// E112: a hidden connector cannot show an unset marker
		if conn.ConnectorHidden {
			if _, ok := conn.SingleKind(); !ok {
				add(ErrHiddenMultiKind, field, "hidden input must declare exactly one kind, has %d", len(conn.Kinds()))
			}
		}
		errs = append(errs, validateConnector(field, conn)...)
	}
	for _, name := range def.OutputNames() {
		field := prefix + ".output." + name
		conn := def.Outputs[name]
		// E110: outputs must produce something
		if len(conn.Kinds()) == 0 {
			add(ErrOutputNoKinds, field, "output must declare at least one value kind")
		}
		errs = append(errs, validateConnector(field, conn)...)
	}

	// E111: order lists
	errs = append(errs, validateOrder(prefix+".inputOrder", def.InputOrder, def.Inputs)...)
	errs = append(errs, validateOrder(prefix+".outputOrder", def.OutputOrder, def.Outputs)...)

	return errs
}

func validateConnector(field string, conn ir.ConnectorDef) []ValidationError {
	var errs []ValidationError
	add := func(code, f, format string, args ...any) {
		errs = append(errs, ValidationError{Field: f, Message: fmt.Sprintf(format, args...), Code: code})
	}

	for _, k := range conn.Kinds() {
		td := conn.Types[k]
		tf := field + ".types." + string(k)

		// E120: default must decode
		if td.Default != nil {
			if _, err := ir.DecodeValue(k, td.Default); err != nil {
				add(ErrBadDefault, tf+".config", "%v", err)
			}
		}

		// E121: clamp sanity
		if c := td.Clamp; c != nil {
			switch {
			case k != ir.KindNumber:
				add(ErrBadClamp, tf+".clamp", "clamp only applies to number, not %s", k)
			case math.IsNaN(c.Min) || math.IsNaN(c.Max) || c.Min > c.Max:
				add(ErrBadClamp, tf+".clamp", "min %v must not exceed max %v", c.Min, c.Max)
			case c.Step < 0:
				add(ErrBadClamp, tf+".clamp", "step %v must be >= 0", c.Step)
			}
			// E122: default within bounds
			if n, ok := td.Default.(ir.Number); ok && k == ir.KindNumber && (float64(n) < c.Min || float64(n) > c.Max) {
				add(ErrDefaultOutOfRange, tf+".config", "default %v outside [%v, %v]", float64(n), c.Min, c.Max)
			}
		}

		if k == ir.KindEnum {
			// E113: enum needs members
			if len(conn.EnumValues) == 0 {
				add(ErrEnumNoValues, field+".enumValues", "enum kind requires enumValues")
			} else if s, ok := td.Default.(ir.String); ok && !slices.Contains(conn.EnumValues, string(s)) {
				// E123: default must be a member
				add(ErrEnumDefault, tf+".config", "default %q not in %v", string(s), conn.EnumValues)
			}
		}
	}
	return errs
}

func validateOrder(field string, order []string, conns map[string]ir.ConnectorDef) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(order))
	for i, name := range order {
		if _, ok := conns[name]; !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("unknown connector %q", name),
				Code:    ErrBadOrder,
			})
		}
		if seen[name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("connector %q listed twice", name),
				Code:    ErrBadOrder,
			})
		}
		seen[name] = true
	}
	return errs
}
