package blocks

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
)

func constant(b *engine.Builder) error {
	b.OnChange([]string{"value"}, func(ctx *engine.Context) error {
		return ctx.SetOutput("out", ir.NumberValue(ctx.Number("value", 0)))
	})
	return nil
}

var arithmeticOps = []string{"add", "sub", "mul", "div", "mod", "pow", "min", "max"}

func arithmetic(b *engine.Builder) error {
	if v, ok := b.Static("op"); ok {
		if op := string(v.(ir.EnumValue)); !slices.Contains(arithmeticOps, op) {
			return fmt.Errorf("unknown operation %q", op)
		}
	}

	b.OnChange(nil, func(ctx *engine.Context) error {
		x, y := ctx.Number("a", 0), ctx.Number("b", 0)
		op := enumInput(ctx, "op", "add")

		var r float64
		switch op {
		case "add":
			r = x + y
		case "sub":
			r = x - y
		case "mul":
			r = x * y
		case "div", "mod":
			if y == 0 {
				ctx.DisableAndBurn(fmt.Errorf("%w: %v %s 0", ErrDivisionByZero, x, op))
				return nil
			}
			if op == "div" {
				r = x / y
			} else {
				r = math.Mod(x, y)
			}
		case "pow":
			r = math.Pow(x, y)
		case "min":
			r = math.Min(x, y)
		case "max":
			r = math.Max(x, y)
		default:
			return fmt.Errorf("unknown operation %q", op)
		}

		if math.IsNaN(r) || math.IsInf(r, 0) {
			ctx.DisableAndBurn(fmt.Errorf("%w: %s(%v, %v)", ErrNonFinite, op, x, y))
			return nil
		}
		return ctx.SetOutput("result", ir.NumberValue(r))
	})
	return nil
}

func not(b *engine.Builder) error {
	b.OnChange(nil, func(ctx *engine.Context) error {
		return ctx.SetOutput("out", ir.BoolValue(!ctx.Bool("in", false)))
	})
	return nil
}

func and(b *engine.Builder) error {
	b.OnChange(nil, func(ctx *engine.Context) error {
		return ctx.SetOutput("out", ir.BoolValue(ctx.Bool("a", false) && ctx.Bool("b", false)))
	})
	return nil
}

const memoryCells = 16

// memory is a 16-cell register file. While write is held, the addressed
// cell follows value.
func memory(b *engine.Builder) error {
	cells := make([]float64, memoryCells)

	b.OnFirstInputs(func(*engine.Context) error {
		clear(cells)
		return nil
	})
	b.OnChange(nil, func(ctx *engine.Context) error {
		addr := ctx.Number("address", 0)
		if addr != math.Trunc(addr) || addr < 0 || addr >= memoryCells {
			ctx.DisableAndBurn(fmt.Errorf("%w: %v", ErrAddressOutOfRange, addr))
			return nil
		}
		i := int(addr)
		if ctx.Bool("write", false) {
			cells[i] = ctx.Number("value", 0)
		}
		return ctx.SetOutput("value", ir.NumberValue(cells[i]))
	})
	return nil
}
