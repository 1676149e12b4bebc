package blocks

import (
	"math"

	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// speaker publishes its sound state whenever an input changes. Several
// changes within one tick coalesce into one event.
func speaker(b *engine.Builder) error {
	b.OnChange(nil, func(ctx *engine.Context) error {
		snd := ir.SoundValue{ID: "beep", Volume: 1, Speed: 1}
		if v, ok := ctx.Input("sound"); ok {
			if s, ok := v.(ir.SoundValue); ok {
				snd = s
			}
		}
		volume := math.Min(10, snd.Volume*ctx.Number("volume", 1))
		ctx.SendOrBurn(synchronizer.Event{
			Channel: synchronizer.ChannelSound,
			Payload: ir.Table{
				"id":      ir.String(snd.ID),
				"playing": ir.Bool(ctx.Bool("playing", false)),
				"volume":  ir.Number(volume),
				"speed":   ir.Number(snd.Speed),
				"looped":  ir.Bool(snd.Looped),
			},
		})
		return nil
	})
	return nil
}

func light(b *engine.Builder) error {
	b.OnChange(nil, func(ctx *engine.Context) error {
		c := ir.ColorValue{R: 1, G: 1, B: 1}
		if v, ok := ctx.Input("color"); ok {
			if cv, ok := v.(ir.ColorValue); ok {
				c = cv
			}
		}
		ctx.SendOrBurn(synchronizer.Event{
			Channel: synchronizer.ChannelVisual,
			Payload: ir.Table{
				"on":         ir.Bool(ctx.Bool("on", false)),
				"brightness": ir.Number(ctx.Number("brightness", 1)),
				"color":      c.Payload(),
			},
		})
		return nil
	})
	return nil
}

func emitter(b *engine.Builder) error {
	b.OnChange(nil, func(ctx *engine.Context) error {
		ctx.SendOrBurn(synchronizer.Event{
			Channel: synchronizer.ChannelParticle,
			Payload: ir.Table{
				"enabled": ir.Bool(ctx.Bool("enabled", false)),
				"rate":    ir.Number(ctx.Number("rate", 10)),
			},
		})
		return nil
	})
	return nil
}
