package blocks

import (
	"fmt"
	"math"

	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
)

// timer accumulates scaled simulation time while running.
func timer(b *engine.Builder) error {
	var elapsed float64

	b.OnFirstInputs(func(ctx *engine.Context) error {
		elapsed = 0
		return ctx.SetOutput("elapsed", ir.NumberValue(0))
	})
	b.PerTick(func(ctx *engine.Context, dt float64) error {
		switch {
		case ctx.Bool("reset", false):
			elapsed = 0
		case ctx.Bool("running", true):
			elapsed += dt
		}
		return ctx.SetOutput("elapsed", ir.NumberValue(elapsed))
	})
	return nil
}

type pidState struct {
	integral float64
	prevErr  float64
	primed   bool
}

// pid is a discrete PID controller stepped once per tick with the scaled
// delta time. The derivative term is zero on the first step.
func pid(b *engine.Builder) error {
	s := &pidState{}

	b.OnFirstInputs(func(*engine.Context) error {
		*s = pidState{}
		return nil
	})
	b.PerTick(func(ctx *engine.Context, dt float64) error {
		if dt <= 0 {
			return nil
		}
		e := ctx.Number("setpoint", 0) - ctx.Number("measurement", 0)
		s.integral += e * dt

		var d float64
		if s.primed {
			d = (e - s.prevErr) / dt
		}
		s.prevErr, s.primed = e, true

		out := ctx.Number("kp", 1)*e + ctx.Number("ki", 0)*s.integral + ctx.Number("kd", 0)*d
		limit := ctx.Number("limit", 1000)
		out = math.Max(-limit, math.Min(limit, out))
		if math.IsNaN(out) {
			return fmt.Errorf("%w: pid output", ErrNonFinite)
		}
		return ctx.SetOutput("output", ir.NumberValue(out))
	})
	return nil
}

// sensor republishes a live reading every tick, so consumers track
// injected values even when they repeat.
func sensor(b *engine.Builder) error {
	b.Always(func(ctx *engine.Context) error {
		return ctx.SetOutput("value", ir.NumberValue(ctx.Number("reading", 0)))
	})
	return nil
}

// button turns a key binding into a boolean. The control config selects
// "hold" (pressed while held) or "toggle" (flips on each press).
func button(b *engine.Builder) error {
	mode := "hold"
	if cfg, ok := b.Config("key"); ok {
		if t, ok := cfg.ControlConfig.(ir.Table); ok {
			mode = t.Str("mode", mode)
		}
	}
	if mode != "hold" && mode != "toggle" {
		return fmt.Errorf("button: unknown control mode %q", mode)
	}

	var wasHeld, latched bool
	b.OnFirstInputs(func(*engine.Context) error {
		wasHeld, latched = false, false
		return nil
	})
	b.OnChange([]string{"key"}, func(ctx *engine.Context) error {
		var held bool
		if v, ok := ctx.Input("key"); ok {
			if kb, ok := v.(ir.KeybindValue); ok {
				held = kb.Held
			}
		}
		if mode == "toggle" && held && !wasHeld {
			latched = !latched
		}
		wasHeld = held

		pressed := held
		if mode == "toggle" {
			pressed = latched
		}
		return ctx.SetOutput("pressed", ir.BoolValue(pressed))
	})
	return nil
}

// overclock sets the machine's global speed multiplier.
func overclock(b *engine.Builder) error {
	b.OnChange(nil, func(ctx *engine.Context) error {
		s := ir.Speed{Type: ir.SpeedUp, Multiplier: ctx.Number("multiplier", 1)}
		if enumInput(ctx, "mode", "speedup") == "slowdown" {
			s.Type = ir.SlowDown
		}
		return ctx.SetSpeed(s)
	})
	return nil
}
