package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func numberIn(def float64) ir.ConnectorDef {
	return ir.ConnectorDef{Types: map[ir.Kind]ir.TypeDef{ir.KindNumber: {Default: ir.Number(def)}}}
}

func numberOut() ir.ConnectorDef {
	return ir.ConnectorDef{Types: map[ir.Kind]ir.TypeDef{ir.KindNumber: {}}}
}

func boolIn() ir.ConnectorDef {
	return ir.ConnectorDef{Types: map[ir.Kind]ir.TypeDef{ir.KindBool: {Default: ir.Bool(false)}}}
}

var (
	sourceDef = &ir.BlockDef{
		Name:    "source",
		Inputs:  map[string]ir.ConnectorDef{"level": numberIn(0)},
		Outputs: map[string]ir.ConnectorDef{"out": numberOut()},
	}
	doubleDef = &ir.BlockDef{
		Name:    "double",
		Inputs:  map[string]ir.ConnectorDef{"in": numberIn(0)},
		Outputs: map[string]ir.ConnectorDef{"out": numberOut()},
	}
	timerDef = &ir.BlockDef{
		Name:    "timer",
		Outputs: map[string]ir.ConnectorDef{"elapsed": numberOut()},
	}
	overclockDef = &ir.BlockDef{
		Name: "overclock",
		Inputs: map[string]ir.ConnectorDef{
			"multiplier": {Types: map[ir.Kind]ir.TypeDef{ir.KindNumber: {
				Default: ir.Number(1),
				Clamp:   &ir.Clamp{Min: 0.25, Max: 8},
			}}},
		},
		MaxPerMachine: 1,
		SpeedControl:  true,
	}
	fragileDef = &ir.BlockDef{
		Name:    "fragile",
		Inputs:  map[string]ir.ConnectorDef{"in": numberIn(0)},
		Outputs: map[string]ir.ConnectorDef{"out": numberOut()},
	}
	speakerDef = &ir.BlockDef{
		Name:   "speaker",
		Inputs: map[string]ir.ConnectorDef{"on": boolIn()},
	}
	chattyDef = &ir.BlockDef{
		Name:   "chatty",
		Inputs: map[string]ir.ConnectorDef{"on": boolIn()},
	}
	gateDef = &ir.BlockDef{
		Name: "gate",
		Inputs: map[string]ir.ConnectorDef{
			"a": {Types: map[ir.Kind]ir.TypeDef{ir.KindNumber: {}, ir.KindBool: {}}},
		},
		Outputs: map[string]ir.ConnectorDef{"out": numberOut()},
	}
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()

	require.NoError(t, r.Register(sourceDef, func(b *Builder) error {
		b.OnChange([]string{"level"}, func(ctx *Context) error {
			return ctx.SetOutput("out", ir.NumberValue(ctx.Number("level", 0)))
		})
		return nil
	}))
	require.NoError(t, r.Register(doubleDef, func(b *Builder) error {
		b.OnChange(nil, func(ctx *Context) error {
			return ctx.SetOutput("out", ir.NumberValue(2*ctx.Number("in", 0)))
		})
		return nil
	}))
	require.NoError(t, r.Register(timerDef, func(b *Builder) error {
		b.OnFirstInputs(func(ctx *Context) error {
			ctx.State()["t"] = 0.0
			return nil
		})
		b.PerTick(func(ctx *Context, dt float64) error {
			t := ctx.State()["t"].(float64) + dt
			ctx.State()["t"] = t
			return ctx.SetOutput("elapsed", ir.NumberValue(t))
		})
		return nil
	}))
	require.NoError(t, r.Register(overclockDef, func(b *Builder) error {
		b.OnChange([]string{"multiplier"}, func(ctx *Context) error {
			return ctx.SetSpeed(ir.Speed{Type: ir.SpeedUp, Multiplier: ctx.Number("multiplier", 1)})
		})
		return nil
	}))
	require.NoError(t, r.Register(fragileDef, func(b *Builder) error {
		b.OnChange(nil, func(ctx *Context) error {
			in := ctx.Number("in", 0)
			switch {
			case in > 100:
				panic("overflow")
			case in > 10:
				return errors.New("input out of range")
			case in < 0:
				ctx.DisableAndBurn(errors.New("negative input"))
				return nil
			}
			return ctx.SetOutput("out", ir.NumberValue(in))
		})
		return nil
	}))
	require.NoError(t, r.Register(speakerDef, func(b *Builder) error {
		b.OnChange(nil, func(ctx *Context) error {
			return ctx.Send(synchronizer.Event{
				Channel: synchronizer.ChannelSound,
				Payload: ir.Table{"id": ir.String("beep"), "playing": ir.Bool(ctx.Bool("on", false))},
			})
		})
		return nil
	}))
	require.NoError(t, r.Register(chattyDef, func(b *Builder) error {
		b.Always(func(ctx *Context) error {
			for i := 0; i < 5; i++ {
				if err := ctx.Send(synchronizer.Event{
					Channel: synchronizer.ChannelVisual,
					Payload: ir.Table{"on": ir.Bool(true)},
				}); err != nil {
					return err
				}
			}
			return nil
		})
		return nil
	}))
	require.NoError(t, r.Register(gateDef, func(b *Builder) error {
		b.OnFirstInputs(func(ctx *Context) error {
			return ctx.SetOutput("out", ir.NumberValue(1))
		})
		return nil
	}))
	return r
}

func newTestMachine(t *testing.T, opts ...MachineOption) *Machine {
	t.Helper()
	opts = append([]MachineOption{WithLogger(discard())}, opts...)
	return NewMachine("m-1", testRegistry(t), synchronizer.New(), opts...)
}

func level(v float64) ir.PlacedConfig {
	return ir.PlacedConfig{"level": {Type: ir.KindNumber, Config: ir.Number(v)}}
}

func fedBy(producer ir.BlockID) ir.PlacedConfig {
	return ir.PlacedConfig{"in": ir.Wire(producer, "out")}
}

func number(t *testing.T, m *Machine, id ir.BlockID, output string) float64 {
	t.Helper()
	v, ok := m.Output(id, output)
	require.True(t, ok, "output %s.%s not set", id, output)
	n, ok := v.(ir.NumberValue)
	require.True(t, ok, "output %s.%s is %T", id, output, v)
	return float64(n)
}
