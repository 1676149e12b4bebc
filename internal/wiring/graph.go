package wiring

import (
	"fmt"
	"slices"

	"github.com/roach88/circuit/internal/ir"
)

// Block is one placed block as seen by the graph builder. Config must
// already be resolved.
type Block struct {
	ID      ir.BlockID
	Def     *ir.BlockDef
	Config  ir.PlacedConfig
	Removed bool
}

// Edge connects a consumer input to a producer output.
type Edge struct {
	Consumer ir.BlockID
	Input    string
	Producer ir.BlockID
	Output   string

	// FallbackKind is the first kind in registry order accepted by the
	// consumer and produced by the producer. The consumer reads this kind's
	// default while the producer is absent, disabled or burned.
	FallbackKind ir.Kind
}

// Graph is an immutable, validated wiring graph.
type Graph struct {
	order     []ir.BlockID
	removed   map[ir.BlockID]bool
	inputs    map[ir.BlockID][]Edge
	consumers map[ir.BlockID][]Edge
}

// Build validates every wire of the given blocks and returns the graph.
// Blocks are listed in creation order, which becomes execution order.
// Removed blocks keep their slot so wires pointing at them stay valid;
// their own inputs are ignored.
func Build(blocks []Block) (*Graph, error) {
	g := &Graph{
		removed:   make(map[ir.BlockID]bool),
		inputs:    make(map[ir.BlockID][]Edge),
		consumers: make(map[ir.BlockID][]Edge),
	}

	byID := make(map[ir.BlockID]*Block, len(blocks))
	for i := range blocks {
		b := &blocks[i]
		if _, dup := byID[b.ID]; dup {
			return nil, &GraphError{Code: ErrCodeDuplicate, Consumer: b.ID, Message: "block id placed twice"}
		}
		byID[b.ID] = b
		if b.Removed {
			g.removed[b.ID] = true
			continue
		}
		g.order = append(g.order, b.ID)
	}

	for _, id := range g.order {
		b := byID[id]
		for _, input := range b.Def.InputNames() {
			cfg, ok := b.Config[input]
			if !ok || cfg.Type != ir.KindWire {
				continue
			}
			e, err := buildEdge(b, input, cfg, byID)
			if err != nil {
				return nil, err
			}
			g.inputs[id] = append(g.inputs[id], e)
			g.consumers[e.Producer] = append(g.consumers[e.Producer], e)
		}
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func buildEdge(b *Block, input string, cfg ir.ConnectorConfig, byID map[ir.BlockID]*Block) (Edge, error) {
	ref, err := ir.DecodeWireRef(cfg.Config)
	if err != nil {
		return Edge{}, &GraphError{Code: ErrCodeMalformedWire, Consumer: b.ID, Input: input, Message: err.Error()}
	}
	fail := func(code GraphErrorCode, format string, args ...any) (Edge, error) {
		return Edge{}, &GraphError{Code: code, Consumer: b.ID, Input: input, Ref: ref, Message: fmt.Sprintf(format, args...)}
	}

	producer, ok := byID[ref.Producer]
	if !ok {
		return fail(ErrCodeDangling, "producer %s not in machine", ref.Producer)
	}
	out, ok := producer.Def.Outputs[ref.Output]
	if !ok {
		return fail(ErrCodeUnknownOutput, "block type %s has no output %q", producer.Def.Name, ref.Output)
	}

	produced := out.Kinds()
	accepted := b.Def.Inputs[input].Kinds()
	var fallback ir.Kind
	if len(accepted) == 0 {
		// A wire-only input accepts whatever the producer emits.
		if len(produced) > 0 {
			fallback = produced[0]
		}
	} else {
		for _, k := range accepted {
			if slices.Contains(produced, k) {
				fallback = k
				break
			}
		}
	}
	if fallback == "" {
		return fail(ErrCodeKindMismatch, "output kinds %v, input kinds %v", produced, accepted)
	}

	return Edge{
		Consumer:     b.ID,
		Input:        input,
		Producer:     ref.Producer,
		Output:       ref.Output,
		FallbackKind: fallback,
	}, nil
}

// Order returns live block ids in execution (creation) order.
func (g *Graph) Order() []ir.BlockID {
	return slices.Clone(g.order)
}

// Removed reports whether id is a tombstoned block.
func (g *Graph) Removed(id ir.BlockID) bool {
	return g.removed[id]
}

// Inputs returns the wired inputs of a consumer in input order.
func (g *Graph) Inputs(consumer ir.BlockID) []Edge {
	return slices.Clone(g.inputs[consumer])
}

// Edge returns the edge feeding consumer.input, if that input is wired.
func (g *Graph) Edge(consumer ir.BlockID, input string) (Edge, bool) {
	for _, e := range g.inputs[consumer] {
		if e.Input == input {
			return e, true
		}
	}
	return Edge{}, false
}

// Producers returns the distinct blocks feeding id, in first-wire order.
func (g *Graph) Producers(id ir.BlockID) []ir.BlockID {
	var out []ir.BlockID
	for _, e := range g.inputs[id] {
		if !slices.Contains(out, e.Producer) {
			out = append(out, e.Producer)
		}
	}
	return out
}

// Consumers returns the distinct live blocks reading from id.
func (g *Graph) Consumers(id ir.BlockID) []ir.BlockID {
	var out []ir.BlockID
	for _, e := range g.consumers[id] {
		if !slices.Contains(out, e.Consumer) {
			out = append(out, e.Consumer)
		}
	}
	return out
}

// Edges returns every edge, grouped by consumer in execution order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, id := range g.order {
		out = append(out, g.inputs[id]...)
	}
	return out
}
