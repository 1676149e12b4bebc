package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/resolver"
	"github.com/roach88/circuit/internal/synchronizer"
	"github.com/roach88/circuit/internal/wiring"
)

// Sync is the replication channel a machine hands side effects to.
// Implemented by *synchronizer.Synchronizer.
type Sync interface {
	Send(ev synchronizer.Event) error
	Flush(tick int64, alive func(ir.BlockID) bool) []synchronizer.Event
	Forget(source ir.BlockID) []synchronizer.Event
}

// Metrics receives machine telemetry. Implemented by the metrics package.
type Metrics interface {
	TickCompleted(r TickReport, elapsed time.Duration)
	NodeBurned(blockType string)
	NodesChanged(live int)
}

type nopMetrics struct{}

func (nopMetrics) TickCompleted(TickReport, time.Duration) {}
func (nopMetrics) NodeBurned(string)                       {}
func (nopMetrics) NodesChanged(int)                        {}

// Machine owns the logic nodes of one building, its clock and its global
// speed multiplier.
//
// Thread-safety model:
//   - Inject(), ClearInjection(): safe from any goroutine, never block on a tick
//   - Tick(), Run(), Place(), Remove() and introspection: serialized by an
//     internal mutex; callbacks run inside Tick and must not call back into
//     the machine except through their Context
//
// INVARIANTS:
//   - nodes never shrinks; removed blocks stay as tombstones at their index
//   - execution order is creation order and never changes
//   - every node reads producer outputs committed at the end of the previous tick
type Machine struct {
	mu sync.Mutex

	id          string
	registry    *Registry
	sync        Sync
	logger      *slog.Logger
	metrics     Metrics
	clock       *Clock
	baseDT      float64
	resolveOpts []resolver.Option
	maxSends    int

	nodes []*node
	index map[ir.BlockID]int
	graph *wiring.Graph

	speed        ir.Speed
	pendingSpeed *ir.Speed
	speedOwner   ir.BlockID

	queue      *inputQueue
	injections map[ir.BlockID]map[string]ir.Value

	tickBurned []ir.BlockID
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithBaseDT sets the nominal tick length in seconds. Default: DefaultBaseDT.
func WithBaseDT(dt float64) MachineOption {
	return func(m *Machine) { m.baseDT = dt }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

// WithMetrics sets the telemetry sink.
func WithMetrics(mt Metrics) MachineOption {
	return func(m *Machine) { m.metrics = mt }
}

// WithClock resumes from a pre-configured clock.
func WithClock(c *Clock) MachineOption {
	return func(m *Machine) { m.clock = c }
}

// WithResolveOptions passes options to the config resolver on placement.
func WithResolveOptions(opts ...resolver.Option) MachineOption {
	return func(m *Machine) { m.resolveOpts = append(m.resolveOpts, opts...) }
}

// WithMaxSendsPerTick sets the per-node send budget. 0 disables the limit.
// Default: DefaultMaxSendsPerTick.
func WithMaxSendsPerTick(n int) MachineOption {
	return func(m *Machine) { m.maxSends = n }
}

// NewMachine creates an empty machine. A nil sync gets a fresh
// synchronizer with the built-in channels.
func NewMachine(id string, registry *Registry, s Sync, opts ...MachineOption) *Machine {
	if s == nil {
		s = synchronizer.New()
	}
	m := &Machine{
		id:         id,
		registry:   registry,
		sync:       s,
		logger:     slog.Default(),
		metrics:    nopMetrics{},
		clock:      NewClock(),
		baseDT:     DefaultBaseDT,
		maxSends:   DefaultMaxSendsPerTick,
		index:      make(map[ir.BlockID]int),
		speed:      ir.NormalSpeed,
		queue:      newInputQueue(),
		injections: make(map[ir.BlockID]map[string]ir.Value),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m.logger = m.logger.With("machine", id)
	m.graph, _ = wiring.Build(nil)
	return m
}

// ID returns the machine id.
func (m *Machine) ID() string { return m.id }

// Place resolves a stored configuration, constructs the block's node and
// rewires the machine. On any error the machine is left unchanged.
func (m *Machine) Place(id ir.BlockID, blockType string, stored ir.PlacedConfig) error {
	return m.PlaceAll([]ir.Placement{{ID: id, Type: blockType, Config: stored}})
}

// PlaceAll places a whole layout atomically, in order. Wires may reference
// any block of the batch regardless of position.
func (m *Machine) PlaceAll(placements []ir.Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, n := range m.nodes {
		if n.status != StatusDestroyed {
			counts[n.def.Name]++
		}
	}

	batch := make([]*node, 0, len(placements))
	seen := make(map[ir.BlockID]bool, len(placements))
	for i, p := range placements {
		n, err := m.construct(p, len(m.nodes)+i, counts, seen)
		if err != nil {
			return err
		}
		counts[n.def.Name]++
		seen[n.id] = true
		batch = append(batch, n)
	}

	g, err := wiring.Build(m.wiringBlocks(batch, ""))
	if err != nil {
		return fmt.Errorf("place: %w", err)
	}

	for _, n := range batch {
		n.status = StatusEnabled
		m.index[n.id] = len(m.nodes)
		m.nodes = append(m.nodes, n)
		m.logger.Debug("block placed", "block", n.id, "type", n.def.Name, "index", n.index)
	}
	m.graph = g
	m.metrics.NodesChanged(m.liveCount())
	return nil
}

// construct builds one node without touching machine state.
func (m *Machine) construct(p ir.Placement, index int, counts map[string]int, seen map[ir.BlockID]bool) (*node, error) {
	if i, dup := m.index[p.ID]; dup || seen[p.ID] {
		msg := "block id already placed"
		if dup && m.nodes[i].status == StatusDestroyed {
			msg = "block id belongs to a removed block"
		}
		return nil, &NodeError{Code: ErrCodeDuplicate, Block: p.ID, BlockType: p.Type, Message: msg}
	}
	entry, ok := m.registry.entry(p.Type)
	if !ok {
		return nil, &NodeError{Code: ErrCodeUnknownType, Block: p.ID, BlockType: p.Type, Message: "block type not registered"}
	}
	def := entry.def
	if def.MaxPerMachine > 0 && counts[def.Name] >= def.MaxPerMachine {
		return nil, &NodeError{
			Code: ErrCodeCardinality, Block: p.ID, BlockType: def.Name,
			Message: fmt.Sprintf("at most %d per machine", def.MaxPerMachine),
		}
	}

	cfg, err := resolver.Resolve(p.Config, def, m.resolveOpts...)
	if err != nil {
		return nil, fmt.Errorf("place %s: %w", p.ID, err)
	}

	n := &node{
		id:      p.ID,
		index:   index,
		def:     def,
		config:  cfg,
		status:  StatusConstructed,
		inputs:  make(map[string]ir.Value),
		changed: make(map[string]bool),
		outputs: make(map[string]ir.Value),
		staged:  make(map[string]ir.Value),
		state:   make(map[string]any),
		quota:   newSendQuota(m.maxSends),
	}
	if err := n.prepareStatic(); err != nil {
		return nil, nodeErr(ErrCodeConstruct, n, err, "decode static inputs")
	}
	if err := runConstructor(n, entry.ctor); err != nil {
		return nil, nodeErr(ErrCodeConstruct, n, err, "constructor failed")
	}
	return n, nil
}

func runConstructor(n *node, ctor Constructor) (err error) {
	b := &Builder{n: n}
	defer func() {
		b.sealed = true
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panic: %v", r)
		}
	}()
	if err := ctor(b); err != nil {
		return err
	}
	return b.err
}

// wiringBlocks lists every node for graph building, with extra appended
// and the node named removeID treated as removed.
func (m *Machine) wiringBlocks(extra []*node, removeID ir.BlockID) []wiring.Block {
	out := make([]wiring.Block, 0, len(m.nodes)+len(extra))
	for _, n := range append(append([]*node(nil), m.nodes...), extra...) {
		out = append(out, wiring.Block{
			ID:      n.id,
			Def:     n.def,
			Config:  n.config,
			Removed: n.status == StatusDestroyed || n.id == removeID,
		})
	}
	return out
}

// Remove destroys a node. Its arena slot stays as a tombstone and keeps
// its id for the life of the machine, so the id cannot be placed again and
// a late wire or event naming it never reaches a different block. Wires
// pointing at it fall back to their defaults and its synchronizer state is
// withdrawn.
func (m *Machine) Remove(id ir.BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(id)
	if err != nil {
		return err
	}
	g, err := wiring.Build(m.wiringBlocks(nil, id))
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}

	n.status = StatusDestroyed
	clear(n.inputs)
	clear(n.outputs)
	clear(n.staged)
	delete(m.injections, id)
	m.graph = g
	m.releaseSpeed(id)
	m.sync.Forget(id)
	m.logger.Debug("block removed", "block", id, "type", n.def.Name)
	m.metrics.NodesChanged(m.liveCount())
	return nil
}

// Enable re-enables a disabled node. Burned nodes stay disabled until Reset.
// Like Reset, a re-enabled node sees every input as changed on its next
// complete tick, so state it withdrew on Disable (its speed) is asserted
// again.
func (m *Machine) Enable(id ir.BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(id)
	if err != nil {
		return err
	}
	if n.burned {
		return nodeErr(ErrCodeBurned, n, n.burnReason, "cannot enable a burned node")
	}
	if n.status == StatusDisabled {
		n.started = false
		n.previous = nil
	}
	n.status = StatusEnabled
	return nil
}

// Disable suspends a node. Consumers of its outputs read their fallbacks.
func (m *Machine) Disable(id ir.BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(id)
	if err != nil {
		return err
	}
	n.status = StatusDisabled
	m.releaseSpeed(id)
	return nil
}

// Reset clears a burn and re-enables the node. Its first-inputs callbacks
// fire again on the next complete tick.
func (m *Machine) Reset(id ir.BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(id)
	if err != nil {
		return err
	}
	n.burned = false
	n.burnReason = nil
	n.started = false
	n.previous = nil
	n.status = StatusEnabled
	m.logger.Info("block reset", "block", id, "type", n.def.Name)
	return nil
}

// lookup returns a live (not destroyed) node. Caller holds mu.
func (m *Machine) lookup(id ir.BlockID) (*node, error) {
	i, ok := m.index[id]
	if !ok {
		return nil, &NodeError{Code: ErrCodeNotFound, Block: id, Message: "no such block"}
	}
	n := m.nodes[i]
	if n.status == StatusDestroyed {
		return nil, fmt.Errorf("block %s: %w", id, ErrDestroyed)
	}
	return n, nil
}

// burn transitions a node to disabled+burned. Its staged outputs are
// discarded; its pending events are dropped at flush.
func (m *Machine) burn(n *node, reason error) {
	if n.burned {
		return
	}
	n.burned = true
	n.burnReason = reason
	n.status = StatusDisabled
	clear(n.staged)
	m.tickBurned = append(m.tickBurned, n.id)
	m.releaseSpeed(n.id)
	m.metrics.NodeBurned(n.def.Name)
	m.logger.Warn("block burned", "block", n.id, "type", n.def.Name, "reason", reason)
}

// alive reports whether id may still emit effects. Called by the
// synchronizer during Flush, with mu held.
func (m *Machine) alive(id ir.BlockID) bool {
	i, ok := m.index[id]
	return ok && m.nodes[i].active()
}

func (m *Machine) liveCount() int {
	c := 0
	for _, n := range m.nodes {
		if n.status != StatusDestroyed {
			c++
		}
	}
	return c
}

// Inject overrides an input from outside the tick loop. The value applies
// from the next tick and sticks until ClearInjection. Safe from any
// goroutine. Invalid injections are reported in the next TickReport.
func (m *Machine) Inject(id ir.BlockID, connector string, v ir.Value) error {
	if v == nil {
		return fmt.Errorf("inject %s.%s: %w: nil value", id, connector, ErrInvalidInput)
	}
	if !m.queue.Enqueue(Injection{Block: id, Connector: connector, Value: v}) {
		return ErrStopped
	}
	return nil
}

// ClearInjection reverts an input to its configured source from the next tick.
func (m *Machine) ClearInjection(id ir.BlockID, connector string) error {
	if !m.queue.Enqueue(Injection{Block: id, Connector: connector, Clear: true}) {
		return ErrStopped
	}
	return nil
}

// Stop rejects further injections.
func (m *Machine) Stop() {
	m.queue.Close()
}
