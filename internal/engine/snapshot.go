package engine

import (
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/wiring"
)

// NodeStatus is the externally visible state of one node.
type NodeStatus struct {
	Status     Status `json:"status"`
	Burned     bool   `json:"burned,omitempty"`
	BurnReason string `json:"burnReason,omitempty"`
}

// ValueSnapshot is a kind-tagged value in its payload form.
type ValueSnapshot struct {
	Kind  ir.Kind    `json:"kind"`
	Value ir.Payload `json:"value"`
}

// NodeSnapshot captures one node's inputs and committed outputs.
type NodeSnapshot struct {
	ID      ir.BlockID               `json:"id"`
	Type    string                   `json:"type"`
	State   NodeStatus               `json:"state"`
	Inputs  map[string]ValueSnapshot `json:"inputs,omitempty"`
	Outputs map[string]ValueSnapshot `json:"outputs,omitempty"`
}

// MachineSnapshot captures the whole machine between ticks. Nodes appear in
// creation order; destroyed nodes are omitted.
type MachineSnapshot struct {
	ID      string         `json:"id"`
	Tick    int64          `json:"tick"`
	Elapsed float64        `json:"elapsed"`
	Speed   ir.Speed       `json:"speed"`
	Nodes   []NodeSnapshot `json:"nodes"`
}

func snapshotValues(vals map[string]ir.Value) map[string]ValueSnapshot {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[string]ValueSnapshot, len(vals))
	for k, v := range vals {
		out[k] = ValueSnapshot{Kind: v.Kind(), Value: v.Payload()}
	}
	return out
}

func statusOf(n *node) NodeStatus {
	s := NodeStatus{Status: n.status, Burned: n.burned}
	if n.burnReason != nil {
		s.BurnReason = n.burnReason.Error()
	}
	return s
}

// Snapshot returns the current state of every live node.
func (m *Machine) Snapshot() MachineSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MachineSnapshot{
		ID:      m.id,
		Tick:    m.clock.Current(),
		Elapsed: m.clock.Elapsed(),
		Speed:   m.speed,
		Nodes:   make([]NodeSnapshot, 0, len(m.nodes)),
	}
	for _, n := range m.nodes {
		if n.status == StatusDestroyed {
			continue
		}
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:      n.id,
			Type:    n.def.Name,
			State:   statusOf(n),
			Inputs:  snapshotValues(n.inputs),
			Outputs: snapshotValues(n.outputs),
		})
	}
	return snap
}

// Output returns a node's committed output value.
func (m *Machine) Output(id ir.BlockID, name string) (ir.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(id)
	if err != nil {
		return nil, false
	}
	v, ok := n.outputs[name]
	return v, ok
}

// Input returns the value a node saw for an input on the last tick.
func (m *Machine) Input(id ir.BlockID, name string) (ir.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(id)
	if err != nil {
		return nil, false
	}
	v, ok := n.inputs[name]
	return v, ok
}

// Status returns a node's lifecycle state. Destroyed nodes report
// StatusDestroyed.
func (m *Machine) Status(id ir.BlockID) (NodeStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[id]
	if !ok {
		return NodeStatus{}, false
	}
	return statusOf(m.nodes[i]), true
}

// Speed returns the speed record in effect for the most recent tick.
func (m *Machine) Speed() ir.Speed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// TickCount returns the number of completed ticks.
func (m *Machine) TickCount() int64 {
	return m.clock.Current()
}

// Elapsed returns accumulated simulation seconds.
func (m *Machine) Elapsed() float64 {
	return m.clock.Elapsed()
}

// Graph returns the current wiring graph.
func (m *Machine) Graph() *wiring.Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph
}

// Layout returns the resolved placements of every live node in creation
// order, suitable for saving.
func (m *Machine) Layout() []ir.Placement {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ir.Placement, 0, len(m.nodes))
	for _, n := range m.nodes {
		if n.status == StatusDestroyed {
			continue
		}
		out = append(out, ir.Placement{ID: n.id, Type: n.def.Name, Config: n.config.Clone()})
	}
	return out
}
