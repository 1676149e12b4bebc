package ir

import "fmt"

// BlockID identifies a placed block within one machine. It is stable across
// saves and doubles as the arena key for the block's logic node.
type BlockID string

// WireRef is the payload of a connector whose type is "wire": it names the
// producer block and one of its output connectors. It is a lookup relation,
// never an ownership one.
type WireRef struct {
	Producer BlockID `json:"block"`
	Output   string  `json:"output"`
}

// Payload encodes the reference as a connector config payload.
func (w WireRef) Payload() Payload {
	return Table{"block": String(w.Producer), "output": String(w.Output)}
}

// String implements fmt.Stringer.
func (w WireRef) String() string {
	return fmt.Sprintf("%s.%s", w.Producer, w.Output)
}

// DecodeWireRef reads a wire payload. Both fields must be non-empty strings.
func DecodeWireRef(p Payload) (WireRef, error) {
	t, ok := p.(Table)
	if !ok {
		return WireRef{}, fmt.Errorf("wire payload must be a table, got %T", p)
	}
	block, ok := t["block"].(String)
	if !ok || block == "" {
		return WireRef{}, fmt.Errorf("wire payload: block must be a non-empty string")
	}
	output, ok := t["output"].(String)
	if !ok || output == "" {
		return WireRef{}, fmt.Errorf("wire payload: output must be a non-empty string")
	}
	return WireRef{Producer: BlockID(block), Output: string(output)}, nil
}

// Wire builds a wire-typed connector config pointing at producer.output.
func Wire(producer BlockID, output string) ConnectorConfig {
	return ConnectorConfig{Type: KindWire, Config: WireRef{Producer: producer, Output: output}.Payload()}
}
