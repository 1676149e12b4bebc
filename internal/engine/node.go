package engine

import (
	"fmt"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/resolver"
)

// Status is a node's lifecycle state.
type Status string

const (
	StatusConstructed Status = "constructed"
	StatusEnabled     Status = "enabled"
	StatusDisabled    Status = "disabled"
	StatusDestroyed   Status = "destroyed"
)

// Callback is a recomputation callback. A non-nil error burns the node.
type Callback func(ctx *Context) error

// TickCallback is a per-tick callback receiving the scaled delta time.
type TickCallback func(ctx *Context, dt float64) error

type changeSub struct {
	keys []string
	fn   Callback
}

// subscriptions are registered once at construction and never change.
type subscriptions struct {
	firstInputs []Callback
	onChange    []changeSub
	always      []Callback
	perTick     []TickCallback
}

// node is the runtime pairing of one resolved configuration with one block
// definition. It lives in the machine's arena at a stable index.
type node struct {
	id     ir.BlockID
	index  int
	def    *ir.BlockDef
	config ir.PlacedConfig // resolved

	status     Status
	burned     bool
	burnReason error
	started    bool

	// static holds the decoded value of every concrete-kind input.
	static map[string]ir.Value

	inputs   map[string]ir.Value
	previous map[string]ir.Value
	changed  map[string]bool
	complete bool

	outputs map[string]ir.Value // committed at the end of the previous tick
	staged  map[string]ir.Value // written during the current tick

	subs  subscriptions
	state map[string]any
	quota *sendQuota
}

// active reports whether the node takes part in the current tick.
func (n *node) active() bool {
	return n.status == StatusEnabled && !n.burned
}

// prepareStatic decodes the static payload of every concrete input once.
// A payload that no longer decodes (a stale save) falls back to the kind's
// default.
func (n *node) prepareStatic() error {
	n.static = make(map[string]ir.Value)
	for _, name := range n.def.InputNames() {
		cfg := n.config[name]
		if !cfg.Type.IsPrimitive() {
			continue
		}
		v, err := ir.DecodeValue(cfg.Type, cfg.Config)
		if err != nil {
			conn := n.def.Inputs[name]
			v, err = ir.DecodeValue(cfg.Type, resolver.DefaultPayload(conn.Types[cfg.Type], cfg.Type))
			if err != nil {
				return fmt.Errorf("input %s: %w", name, err)
			}
		}
		n.static[name] = v
	}
	return nil
}

// clampInput applies the connector's clamp to number values.
func clampInput(conn ir.ConnectorDef, v ir.Value) ir.Value {
	num, ok := v.(ir.NumberValue)
	if !ok {
		return v
	}
	td, ok := conn.Types[ir.KindNumber]
	if !ok || td.Clamp == nil {
		return v
	}
	return ir.NumberValue(td.Clamp.Apply(float64(num)))
}

// Builder registers a node's subscriptions and initial outputs during
// construction. It is sealed when the constructor returns.
type Builder struct {
	n      *node
	sealed bool
	err    error
}

// BlockID returns the id of the block being constructed.
func (b *Builder) BlockID() ir.BlockID { return b.n.id }

// Def returns the block definition.
func (b *Builder) Def() *ir.BlockDef { return b.n.def }

// Config returns the resolved static configuration of an input.
func (b *Builder) Config(input string) (ir.ConnectorConfig, bool) {
	c, ok := b.n.config[input]
	return c, ok
}

// Static returns the decoded static value of a concrete-kind input.
func (b *Builder) Static(input string) (ir.Value, bool) {
	v, ok := b.n.static[input]
	return v, ok
}

// State returns the node-local scratch map shared with every callback.
func (b *Builder) State() map[string]any { return b.n.state }

// OnFirstInputs fires once, on the first tick with a complete input set.
func (b *Builder) OnFirstInputs(fn Callback) {
	if b.check("OnFirstInputs") {
		b.n.subs.firstInputs = append(b.n.subs.firstInputs, fn)
	}
}

// OnChange fires whenever any of keys changed since the previous tick.
// An empty key list watches every input.
func (b *Builder) OnChange(keys []string, fn Callback) {
	if !b.check("OnChange") {
		return
	}
	for _, k := range keys {
		if _, ok := b.n.def.Inputs[k]; !ok {
			b.fail(fmt.Errorf("OnChange: unknown input %q", k))
			return
		}
	}
	if len(keys) == 0 {
		keys = b.n.def.InputNames()
	}
	b.n.subs.onChange = append(b.n.subs.onChange, changeSub{keys: append([]string(nil), keys...), fn: fn})
}

// Always fires on every tick once the node has started.
func (b *Builder) Always(fn Callback) {
	if b.check("Always") {
		b.n.subs.always = append(b.n.subs.always, fn)
	}
}

// PerTick fires once per tick, after every recompute callback of the
// machine, with the tick's scaled delta time.
func (b *Builder) PerTick(fn TickCallback) {
	if b.check("PerTick") {
		b.n.subs.perTick = append(b.n.subs.perTick, fn)
	}
}

// SetOutput sets an initial output value, visible to consumers on the
// first tick.
func (b *Builder) SetOutput(name string, v ir.Value) error {
	if b.sealed {
		return fmt.Errorf("SetOutput: builder sealed")
	}
	if err := checkOutput(b.n, name, v); err != nil {
		return err
	}
	b.n.outputs[name] = v
	return nil
}

func (b *Builder) check(method string) bool {
	if b.sealed {
		panic(fmt.Sprintf("%s called after construction of block %s", method, b.n.id))
	}
	return b.err == nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// checkOutput verifies name is a declared output accepting v's kind.
func checkOutput(n *node, name string, v ir.Value) error {
	out, ok := n.def.Outputs[name]
	if !ok {
		return nodeErr(ErrCodeInvalidOutput, n, nil, "undeclared output %q", name)
	}
	if v == nil {
		return nodeErr(ErrCodeInvalidOutput, n, nil, "nil value for output %q", name)
	}
	if kinds := out.Kinds(); len(kinds) > 0 && !out.Supports(v.Kind()) {
		return nodeErr(ErrCodeInvalidOutput, n, nil, "output %q does not accept kind %s", name, v.Kind())
	}
	return nil
}
