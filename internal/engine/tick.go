package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/resolver"
	"github.com/roach88/circuit/internal/synchronizer"
)

// TickReport summarizes one tick.
type TickReport struct {
	Tick      int64                `json:"tick"`
	DT        float64              `json:"dt"`
	Speed     ir.Speed             `json:"speed"`
	Evaluated int                  `json:"evaluated"`
	Burned    []ir.BlockID         `json:"burned,omitempty"`
	Events    []synchronizer.Event `json:"events,omitempty"`
	Rejected  []error              `json:"-"`
}

// Tick advances the machine by one fixed step.
//
// Order within a tick:
//  1. apply the speed requested during the previous tick
//  2. advance the clock by the scaled delta time
//  3. apply queued injections
//  4. resolve every active node's inputs from committed outputs
//  5. run recompute callbacks in creation order
//  6. run per-tick callbacks in creation order
//  7. commit staged outputs and flush the synchronizer
func (m *Machine) Tick() TickReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	if m.pendingSpeed != nil {
		if *m.pendingSpeed != m.speed {
			m.logger.Info("machine speed changed", "type", m.pendingSpeed.Type, "multiplier", m.pendingSpeed.Multiplier)
		}
		m.speed = *m.pendingSpeed
		m.pendingSpeed = nil
	}
	dt := EffectiveDT(m.baseDT, m.speed)
	tick := m.clock.Advance(dt)
	m.tickBurned = nil

	rejected := m.applyInjections()

	live := make([]*node, 0, len(m.nodes))
	for _, n := range m.nodes {
		if n.active() {
			live = append(live, n)
		}
	}
	for _, n := range live {
		n.quota.Reset()
		m.resolveInputs(n)
	}

	evaluated := 0
	for _, n := range live {
		if m.recompute(n, tick, dt) {
			evaluated++
		}
	}
	for _, n := range live {
		if !n.active() || !n.started {
			continue
		}
		ctx := &Context{m: m, n: n, tick: tick, dt: dt}
		for _, fn := range n.subs.perTick {
			if !m.invoke(n, func() error { return fn(ctx, dt) }) {
				break
			}
		}
	}

	for _, n := range m.nodes {
		if n.active() {
			for k, v := range n.staged {
				n.outputs[k] = v
			}
		}
		clear(n.staged)
	}
	events := m.sync.Flush(tick, m.alive)

	report := TickReport{
		Tick:      tick,
		DT:        dt,
		Speed:     m.speed,
		Evaluated: evaluated,
		Burned:    m.tickBurned,
		Events:    events,
		Rejected:  rejected,
	}
	m.tickBurned = nil
	m.metrics.TickCompleted(report, time.Since(start))
	m.logger.Debug("tick complete", "tick", tick, "dt", dt, "evaluated", evaluated, "events", len(events))
	return report
}

// RunTicks runs n ticks back to back and returns their reports.
func (m *Machine) RunTicks(n int) []TickReport {
	out := make([]TickReport, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, m.Tick())
	}
	return out
}

// Run ticks the machine at a fixed wall-clock cadence until ctx is
// cancelled. Wall time never affects simulation time; the cadence only
// paces the loop.
func (m *Machine) Run(ctx context.Context, cadence time.Duration, onTick func(TickReport)) error {
	if cadence <= 0 {
		return fmt.Errorf("run: cadence must be positive, got %s", cadence)
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	m.logger.Info("machine running", "cadence", cadence)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("machine stopped", "tick", m.clock.Current())
			return ctx.Err()
		case <-ticker.C:
			r := m.Tick()
			if onTick != nil {
				onTick(r)
			}
		}
	}
}

// applyInjections drains the queue into the sticky injection table.
// Caller holds mu.
func (m *Machine) applyInjections() []error {
	var rejected []error
	for _, in := range m.queue.Drain() {
		if err := m.applyInjection(in); err != nil {
			m.logger.Warn("injection rejected", "block", in.Block, "connector", in.Connector, "error", err)
			rejected = append(rejected, err)
		}
	}
	return rejected
}

func (m *Machine) applyInjection(in Injection) error {
	n, err := m.lookup(in.Block)
	if err != nil {
		return err
	}
	conn, ok := n.def.Inputs[in.Connector]
	if !ok {
		return nodeErr(ErrCodeInvalidInput, n, nil, "unknown input %q", in.Connector)
	}
	if in.Clear {
		delete(m.injections[n.id], in.Connector)
		return nil
	}
	if !accepts(conn, in.Value.Kind()) {
		return nodeErr(ErrCodeInvalidInput, n, nil, "input %q does not accept kind %s", in.Connector, in.Value.Kind())
	}
	if m.injections[n.id] == nil {
		m.injections[n.id] = make(map[string]ir.Value)
	}
	m.injections[n.id][in.Connector] = in.Value
	return nil
}

// resolveInputs computes the node's input set for this tick. Wires read the
// producer's committed output, so evaluation order never changes what a
// consumer sees.
func (m *Machine) resolveInputs(n *node) {
	n.previous = n.inputs
	n.inputs = make(map[string]ir.Value, len(n.def.Inputs))
	n.complete = true

	for _, name := range n.def.InputNames() {
		conn := n.def.Inputs[name]
		v, ok := m.injections[n.id][name]
		if !ok {
			switch cfg := n.config[name]; cfg.Type {
			case ir.KindUnset:
			case ir.KindWire:
				v, ok = m.wireValue(n, name, conn)
			default:
				v, ok = n.static[name]
			}
		}
		if !ok {
			n.complete = false
			continue
		}
		n.inputs[name] = clampInput(conn, v)
	}

	clear(n.changed)
	for name, v := range n.inputs {
		n.changed[name] = !n.started || !ir.ValuesEqual(n.previous[name], v)
	}
	for name := range n.previous {
		if _, ok := n.inputs[name]; !ok {
			n.changed[name] = true
		}
	}
}

// wireValue reads a wired input. A producer that is gone, disabled or
// burned, or an output of the wrong kind, yields the connector's fallback
// default.
func (m *Machine) wireValue(n *node, input string, conn ir.ConnectorDef) (ir.Value, bool) {
	e, ok := m.graph.Edge(n.id, input)
	if !ok {
		return nil, false
	}
	if i, ok := m.index[e.Producer]; ok {
		if p := m.nodes[i]; p.active() {
			if v, ok := p.outputs[e.Output]; ok && accepts(conn, v.Kind()) {
				return v, true
			}
		}
	}
	if e.FallbackKind == "" {
		return nil, false
	}
	td := conn.Types[e.FallbackKind]
	v, err := ir.DecodeValue(e.FallbackKind, resolver.DefaultPayload(td, e.FallbackKind))
	if err != nil {
		v, _ = ir.ZeroValue(e.FallbackKind)
	}
	return v, v != nil
}

// recompute fires a node's recompute callbacks. Reports whether any ran.
func (m *Machine) recompute(n *node, tick int64, dt float64) bool {
	if !n.active() || !n.complete {
		return false
	}
	ctx := &Context{m: m, n: n, tick: tick, dt: dt}
	ran := false

	if !n.started {
		n.started = true
		for _, fn := range n.subs.firstInputs {
			ran = true
			if !m.invoke(n, func() error { return fn(ctx) }) {
				return true
			}
		}
	}
	for _, sub := range n.subs.onChange {
		if !anyChanged(n, sub.keys) {
			continue
		}
		ran = true
		if !m.invoke(n, func() error { return sub.fn(ctx) }) {
			return true
		}
	}
	for _, fn := range n.subs.always {
		ran = true
		if !m.invoke(n, func() error { return fn(ctx) }) {
			return true
		}
	}
	return ran
}

func anyChanged(n *node, keys []string) bool {
	for _, k := range keys {
		if n.changed[k] {
			return true
		}
	}
	return false
}

// invoke runs one callback, burning the node on error or panic. Reports
// whether the node is still active afterwards.
func (m *Machine) invoke(n *node, call func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.burn(n, nodeErr(ErrCodeCallbackPanic, n, nil, "callback panic: %v", r))
			ok = false
		}
	}()
	if err := call(); err != nil {
		m.burn(n, nodeErr(ErrCodeBurned, n, err, "callback failed"))
	}
	return n.active()
}

// accepts reports whether an input connector takes values of kind k.
// Wire-only inputs take anything.
func accepts(conn ir.ConnectorDef, k ir.Kind) bool {
	return len(conn.Kinds()) == 0 || conn.Supports(k)
}
