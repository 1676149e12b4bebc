package engine

import (
	"log/slog"
	"maps"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// Snapshot is a copy of a node's current inputs.
type Snapshot map[string]ir.Value

// Context is handed to every callback. It is only valid for the duration
// of the callback and must not be retained or used from other goroutines.
type Context struct {
	m    *Machine
	n    *node
	tick int64
	dt   float64
}

// BlockID returns the node's block id.
func (c *Context) BlockID() ir.BlockID { return c.n.id }

// Tick returns the current tick number.
func (c *Context) Tick() int64 { return c.tick }

// DT returns the current tick's scaled delta time.
func (c *Context) DT() float64 { return c.dt }

// Logger returns the machine logger annotated with the block id.
func (c *Context) Logger() *slog.Logger {
	return c.m.logger.With("block", c.n.id, "type", c.n.def.Name)
}

// State returns the node-local scratch map.
func (c *Context) State() map[string]any { return c.n.state }

// Input returns the resolved value of an input for this tick. It reports
// false for unset inputs.
func (c *Context) Input(name string) (ir.Value, bool) {
	v, ok := c.n.inputs[name]
	return v, ok
}

// Number returns a number input, or def when it is missing or not a number.
func (c *Context) Number(name string, def float64) float64 {
	if v, ok := c.n.inputs[name].(ir.NumberValue); ok {
		return float64(v)
	}
	return def
}

// Bool returns a boolean input, or def when it is missing or not a boolean.
func (c *Context) Bool(name string, def bool) bool {
	if v, ok := c.n.inputs[name].(ir.BoolValue); ok {
		return bool(v)
	}
	return def
}

// Inputs returns a copy of every resolved input.
func (c *Context) Inputs() Snapshot {
	return maps.Clone(c.n.inputs)
}

// Changed reports whether an input changed since the previous tick. Every
// input counts as changed on the node's first complete tick.
func (c *Context) Changed(name string) bool {
	return c.n.changed[name]
}

// Config returns the resolved configuration of an input, including its
// control payload.
func (c *Context) Config(name string) (ir.ConnectorConfig, bool) {
	cfg, ok := c.n.config[name]
	return cfg, ok
}

// Output returns the value this node most recently wrote to an output,
// staged this tick or committed before.
func (c *Context) Output(name string) (ir.Value, bool) {
	if v, ok := c.n.staged[name]; ok {
		return v, true
	}
	v, ok := c.n.outputs[name]
	return v, ok
}

// SetOutput stages an output value. Consumers see it from the next tick.
func (c *Context) SetOutput(name string, v ir.Value) error {
	if err := checkOutput(c.n, name, v); err != nil {
		return err
	}
	c.n.staged[name] = v
	return nil
}

// DisableAndBurn signals an unrecoverable domain error. The node stops
// running immediately, its events queued this tick are dropped and it is
// not re-enabled until reset.
func (c *Context) DisableAndBurn(reason error) {
	c.m.burn(c.n, reason)
}

// Send queues a side effect for replication. Target defaults to the block
// id. Sends from a node burned earlier in the same tick are refused.
func (c *Context) Send(ev synchronizer.Event) error {
	if !c.n.active() {
		return nodeErr(ErrCodeBurned, c.n, c.n.burnReason, "send from inactive node")
	}
	if err := c.n.quota.Check(c.n.id, c.tick); err != nil {
		c.m.burn(c.n, err)
		return err
	}
	ev.Source = c.n.id
	if ev.Target == "" {
		ev.Target = string(c.n.id)
	}
	return c.m.sync.Send(ev)
}

// SendOrBurn sends ev and burns the node when the synchronizer rejects it.
// Reports whether the event was accepted.
func (c *Context) SendOrBurn(ev synchronizer.Event) bool {
	if err := c.Send(ev); err != nil {
		c.m.burn(c.n, err)
		return false
	}
	return true
}

// SetSpeed requests a new machine speed, effective from the next tick.
// Only blocks whose definition grants SpeedControl may call it.
func (c *Context) SetSpeed(s ir.Speed) error {
	if !c.n.def.SpeedControl {
		return nodeErr(ErrCodeSpeedControl, c.n, nil, "block type %s lacks speed control", c.n.def.Name)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	c.m.requestSpeed(c.n.id, s)
	return nil
}
