package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// Clamp bounds and quantizes a number-kind connector.
type Clamp struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"` // 0 = continuous
}

// Apply bounds v to [Min, Max], then snaps it to the nearest Step measured
// from Min. The result never leaves the bounds.
func (c Clamp) Apply(v float64) float64 {
	v = math.Max(c.Min, math.Min(c.Max, v))
	if c.Step > 0 {
		v = c.Min + math.Round((v-c.Min)/c.Step)*c.Step
		v = math.Max(c.Min, math.Min(c.Max, v))
	}
	return v
}

// ControlDef declares that a kind can be driven by player controls
// (key bindings, smoothing). Default is the control payload a fresh
// connector starts with.
type ControlDef struct {
	Default Payload
}

// TypeDef describes one acceptable kind of a connector.
type TypeDef struct {
	Default Payload
	Clamp   *Clamp
	Control *ControlDef
}

// ConnectorDef is the static schema of one input or output.
type ConnectorDef struct {
	DisplayName     string           `json:"displayName"`
	Tooltip         string           `json:"tooltip,omitempty"`
	Types           map[Kind]TypeDef `json:"types"`
	ConnectorHidden bool             `json:"connectorHidden,omitempty"`
	ConfigHidden    bool             `json:"configHidden,omitempty"`
	EnumValues      []string         `json:"enumValues,omitempty"`
}

// SingleKind returns the only declared primitive kind when exactly one
// exists. Sentinel entries in Types are ignored.
func (c ConnectorDef) SingleKind() (Kind, bool) {
	kinds := c.Kinds()
	if len(kinds) != 1 {
		return "", false
	}
	return kinds[0], true
}

// FallbackKind returns the first declared primitive kind in registry order.
// It is the kind a wire-fed input reverts to when its producer is gone.
func (c ConnectorDef) FallbackKind() (Kind, bool) {
	kinds := c.Kinds()
	if len(kinds) == 0 {
		return "", false
	}
	return kinds[0], true
}

// Supports reports whether the connector declares kind k.
func (c ConnectorDef) Supports(k Kind) bool {
	_, ok := c.Types[k]
	return ok
}

// Kinds returns the declared primitive kinds in registry order.
func (c ConnectorDef) Kinds() []Kind {
	out := make([]Kind, 0, len(c.Types))
	for _, k := range primitiveKinds {
		if _, ok := c.Types[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// BlockDef is the immutable schema shared by every placed instance of one
// block type.
type BlockDef struct {
	Name        string                  `json:"name"`
	Inputs      map[string]ConnectorDef `json:"input"`
	Outputs     map[string]ConnectorDef `json:"output"`
	InputOrder  []string                `json:"inputOrder,omitempty"`
	OutputOrder []string                `json:"outputOrder,omitempty"`

	// MaxPerMachine caps instances of this block type in one machine.
	// 0 means unlimited.
	MaxPerMachine int `json:"maxPerMachine,omitempty"`

	// SpeedControl grants the block the right to set the machine's global
	// speed multiplier.
	SpeedControl bool `json:"speedControl,omitempty"`
}

// InputNames returns input connector names in declared order; connectors
// missing from InputOrder follow in sorted order.
func (b *BlockDef) InputNames() []string {
	return orderedNames(b.Inputs, b.InputOrder)
}

// OutputNames returns output connector names in declared order.
func (b *BlockDef) OutputNames() []string {
	return orderedNames(b.Outputs, b.OutputOrder)
}

func orderedNames(conns map[string]ConnectorDef, order []string) []string {
	out := make([]string, 0, len(conns))
	seen := make(map[string]bool, len(conns))
	for _, name := range order {
		if _, ok := conns[name]; ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range conns {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// ConnectorConfig is the persisted configuration of one input connector.
type ConnectorConfig struct {
	Type          Kind
	Config        Payload // nil for unset
	ControlConfig Payload // nil when the kind has no control schema
}

// PlacedConfig is a placed block's configuration keyed by connector name.
type PlacedConfig map[string]ConnectorConfig

// Clone returns a copy of the map. Payloads are shared; they are treated
// as immutable once stored.
func (p PlacedConfig) Clone() PlacedConfig {
	if p == nil {
		return nil
	}
	out := make(PlacedConfig, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Equal reports deep equality of two configurations.
func (p PlacedConfig) Equal(o PlacedConfig) bool {
	if len(p) != len(o) {
		return false
	}
	for k, a := range p {
		b, ok := o[k]
		if !ok || a.Type != b.Type || !Equal(a.Config, b.Config) || !Equal(a.ControlConfig, b.ControlConfig) {
			return false
		}
	}
	return true
}

// Speed is the machine-wide tick multiplier record.
type Speed struct {
	Type       SpeedType `json:"type"`
	Multiplier float64   `json:"multiplier"`
}

// SpeedType selects whether Multiplier scales time up or down.
type SpeedType string

const (
	SpeedUp  SpeedType = "speedup"
	SlowDown SpeedType = "slowdown"
)

// NormalSpeed is the record in effect when no overclock is active.
var NormalSpeed = Speed{Type: SpeedUp, Multiplier: 1}

// Validate checks the record is usable for scaling.
func (s Speed) Validate() error {
	if s.Type != SpeedUp && s.Type != SlowDown {
		return fmt.Errorf("speed type %q: must be %q or %q", s.Type, SpeedUp, SlowDown)
	}
	if math.IsNaN(s.Multiplier) || math.IsInf(s.Multiplier, 0) || s.Multiplier <= 0 {
		return fmt.Errorf("speed multiplier %v: must be finite and > 0", s.Multiplier)
	}
	return nil
}

// typeDefJSON is the wire shape of TypeDef.
type typeDefJSON struct {
	Config  json.RawMessage `json:"config,omitempty"`
	Clamp   *Clamp          `json:"clamp,omitempty"`
	Control *struct {
		Config json.RawMessage `json:"config,omitempty"`
	} `json:"control,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler for TypeDef.
func (t *TypeDef) UnmarshalJSON(data []byte) error {
	var raw typeDefJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = TypeDef{Clamp: raw.Clamp}
	if len(raw.Config) > 0 {
		p, err := UnmarshalPayload(raw.Config)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		t.Default = p
	}
	if raw.Control != nil {
		t.Control = &ControlDef{}
		if len(raw.Control.Config) > 0 {
			p, err := UnmarshalPayload(raw.Control.Config)
			if err != nil {
				return fmt.Errorf("control.config: %w", err)
			}
			t.Control.Default = p
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for TypeDef.
func (t TypeDef) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if t.Default != nil {
		b, err := MarshalPayload(t.Default)
		if err != nil {
			return nil, err
		}
		out["config"] = json.RawMessage(b)
	}
	if t.Clamp != nil {
		out["clamp"] = t.Clamp
	}
	if t.Control != nil {
		ctl := map[string]any{}
		if t.Control.Default != nil {
			b, err := MarshalPayload(t.Control.Default)
			if err != nil {
				return nil, err
			}
			ctl["config"] = json.RawMessage(b)
		}
		out["control"] = ctl
	}
	return json.Marshal(out)
}

// connectorConfigJSON is the persisted shape of ConnectorConfig.
type connectorConfigJSON struct {
	Type          Kind            `json:"type"`
	Config        json.RawMessage `json:"config,omitempty"`
	ControlConfig json.RawMessage `json:"controlConfig,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler for ConnectorConfig.
// Unknown kind names are kept verbatim; the resolver decides what to do
// with kinds a definition no longer supports.
func (c *ConnectorConfig) UnmarshalJSON(data []byte) error {
	var raw connectorConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ConnectorConfig{Type: raw.Type}
	if len(raw.Config) > 0 {
		p, err := UnmarshalPayload(raw.Config)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if !IsNull(p) {
			c.Config = p
		}
	}
	if len(raw.ControlConfig) > 0 {
		p, err := UnmarshalPayload(raw.ControlConfig)
		if err != nil {
			return fmt.Errorf("controlConfig: %w", err)
		}
		if !IsNull(p) {
			c.ControlConfig = p
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for ConnectorConfig.
func (c ConnectorConfig) MarshalJSON() ([]byte, error) {
	raw := connectorConfigJSON{Type: c.Type}
	if c.Config != nil {
		b, err := MarshalPayload(c.Config)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		raw.Config = b
	}
	if c.ControlConfig != nil {
		b, err := MarshalPayload(c.ControlConfig)
		if err != nil {
			return nil, fmt.Errorf("controlConfig: %w", err)
		}
		raw.ControlConfig = b
	}
	return json.Marshal(raw)
}
