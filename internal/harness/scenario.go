package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/circuit/internal/ir"
)

// Scenario defines one machine run: a layout, a sequence of steps that
// drive it, and assertions over what it produced.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional CUE block catalog replacing the built-in one.
	// Relative paths resolve against the scenario file's directory.
	Catalog string `yaml:"catalog,omitempty"`

	// BaseDT is the nominal tick length. Zero selects engine.DefaultBaseDT.
	BaseDT float64 `yaml:"base_dt,omitempty"`

	// StartTick and StartElapsed resume the machine clock, as when a slot
	// with saved progress is loaded.
	StartTick    int64   `yaml:"start_tick,omitempty"`
	StartElapsed float64 `yaml:"start_elapsed,omitempty"`

	// MachineID is the fixed machine id. Defaults to the scenario name.
	MachineID string `yaml:"machine_id,omitempty"`

	// Blocks is the initial layout, placed atomically in order.
	Blocks []BlockSpec `yaml:"blocks"`

	// Watch lists "block.connector" outputs recorded after every tick.
	Watch []string `yaml:"watch,omitempty"`

	// Steps drive the machine.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated once, after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// BlockSpec is one placed block.
type BlockSpec struct {
	ID     string                   `yaml:"id"`
	Type   string                   `yaml:"type"`
	Config map[string]ConnectorSpec `yaml:"config,omitempty"`
}

// ConnectorSpec is the stored configuration of one input connector. Exactly
// one of Wire, Unset or Type is used.
type ConnectorSpec struct {
	// Wire is "block.output" for a wired input.
	Wire string `yaml:"wire,omitempty"`

	// Unset stores the connector explicitly unset.
	Unset bool `yaml:"unset,omitempty"`

	// Type is a primitive kind name; Config and Control are its payloads.
	Type    string `yaml:"type,omitempty"`
	Config  any    `yaml:"config,omitempty"`
	Control any    `yaml:"control,omitempty"`
}

// Step applies actions and then runs Ticks ticks.
type Step struct {
	Ticks int `yaml:"ticks,omitempty"`

	Place   []BlockSpec  `yaml:"place,omitempty"`
	Inject  []InjectSpec `yaml:"inject,omitempty"`
	Clear   []InputRef   `yaml:"clear,omitempty"`
	Disable []string     `yaml:"disable,omitempty"`
	Enable  []string     `yaml:"enable,omitempty"`
	Reset   []string     `yaml:"reset,omitempty"`
	Remove  []string     `yaml:"remove,omitempty"`

	// Expect is checked after the step's last tick.
	Expect *Expect `yaml:"expect,omitempty"`
}

// InjectSpec overrides one input with a live value.
type InjectSpec struct {
	Block     string `yaml:"block"`
	Connector string `yaml:"connector"`
	Kind      string `yaml:"kind"`
	Value     any    `yaml:"value"`
}

// InputRef names one input connector.
type InputRef struct {
	Block     string `yaml:"block"`
	Connector string `yaml:"connector"`
}

// Expect holds per-step expectations.
type Expect struct {
	// Outputs maps "block.connector" to the expected committed value.
	// A null value expects the output to be unset.
	Outputs map[string]any `yaml:"outputs,omitempty"`

	// Burned lists blocks that must be burned; every other block must not be.
	Burned []string `yaml:"burned,omitempty"`

	// Status maps block ids to their expected lifecycle status, or "absent"
	// for ids that were never placed.
	Status map[string]string `yaml:"status,omitempty"`

	// Speed is the speed record in effect during the step's last tick.
	Speed *SpeedSpec `yaml:"speed,omitempty"`

	// Error is a substring of the error the step's place action must fail
	// with. The machine must be left unchanged.
	Error string `yaml:"error,omitempty"`

	// Rejected is the number of injections the step's ticks rejected.
	Rejected int `yaml:"rejected,omitempty"`
}

// SpeedSpec is the YAML form of ir.Speed.
type SpeedSpec struct {
	Type       string  `yaml:"type"`
	Multiplier float64 `yaml:"multiplier"`
}

// Assertion validates the whole run.
type Assertion struct {
	// Type selects the assertion; see the Assert* constants.
	Type string `yaml:"type"`

	Channel string `yaml:"channel,omitempty"`
	Target  string `yaml:"target,omitempty"`

	// Payload is a subset of fields the event payload must contain
	// (event_emitted, existing).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Count is the exact number of dispatches (event_count).
	Count int `yaml:"count,omitempty"`

	// Targets is the expected first-dispatch order (event_order).
	Targets []string `yaml:"targets,omitempty"`

	Block     string `yaml:"block,omitempty"`
	Connector string `yaml:"connector,omitempty"`
	Value     any    `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertEventEmitted = "event_emitted"
	AssertEventCount   = "event_count"
	AssertEventOrder   = "event_order"
	AssertBurned       = "burned"
	AssertFinalOutput  = "final_output"
	AssertExisting     = "existing"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. A relative catalog path is resolved
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) && baseDir != "" {
		scenario.Catalog = filepath.Join(baseDir, scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Blocks) == 0 {
		return fmt.Errorf("blocks list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.BaseDT < 0 {
		return fmt.Errorf("base_dt must be non-negative")
	}
	if s.StartTick < 0 {
		return fmt.Errorf("start_tick must be non-negative")
	}

	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog file not found: %s", s.Catalog)
		}
	}

	for i, b := range s.Blocks {
		if err := validateBlock(fmt.Sprintf("blocks[%d]", i), b); err != nil {
			return err
		}
	}
	for i, w := range s.Watch {
		if _, _, err := splitRef(w); err != nil {
			return fmt.Errorf("watch[%d]: %w", i, err)
		}
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateBlock(field string, b BlockSpec) error {
	if b.ID == "" {
		return fmt.Errorf("%s: id is required", field)
	}
	if b.Type == "" {
		return fmt.Errorf("%s: type is required", field)
	}
	for name, c := range b.Config {
		if _, err := c.toConfig(); err != nil {
			return fmt.Errorf("%s.config.%s: %w", field, name, err)
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	if st.Ticks < 0 {
		return fmt.Errorf("steps[%d]: ticks must be non-negative", i)
	}
	actions := len(st.Place) + len(st.Inject) + len(st.Clear) + len(st.Disable) +
		len(st.Enable) + len(st.Reset) + len(st.Remove)
	if st.Ticks == 0 && actions == 0 {
		return fmt.Errorf("steps[%d]: step has no ticks and no actions", i)
	}

	for j, b := range st.Place {
		if err := validateBlock(fmt.Sprintf("steps[%d].place[%d]", i, j), b); err != nil {
			return err
		}
	}
	for j, in := range st.Inject {
		if in.Block == "" || in.Connector == "" {
			return fmt.Errorf("steps[%d].inject[%d]: block and connector are required", i, j)
		}
		if _, err := in.toValue(); err != nil {
			return fmt.Errorf("steps[%d].inject[%d]: %w", i, j, err)
		}
	}
	for j, c := range st.Clear {
		if c.Block == "" || c.Connector == "" {
			return fmt.Errorf("steps[%d].clear[%d]: block and connector are required", i, j)
		}
	}

	if e := st.Expect; e != nil {
		if e.Error != "" && len(st.Place) == 0 {
			return fmt.Errorf("steps[%d].expect: error requires a place action", i)
		}
		for ref := range e.Outputs {
			if _, _, err := splitRef(ref); err != nil {
				return fmt.Errorf("steps[%d].expect.outputs: %w", i, err)
			}
		}
		if e.Speed != nil {
			if err := e.Speed.toSpeed().Validate(); err != nil {
				return fmt.Errorf("steps[%d].expect.speed: %w", i, err)
			}
		}
		if e.Rejected < 0 {
			return fmt.Errorf("steps[%d].expect: rejected must be non-negative", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventEmitted, AssertExisting:
		if a.Channel == "" || a.Target == "" {
			return fmt.Errorf("assertions[%d]: channel and target are required for %s", index, a.Type)
		}
	case AssertEventCount:
		if a.Channel == "" || a.Target == "" {
			return fmt.Errorf("assertions[%d]: channel and target are required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Targets) == 0 {
			return fmt.Errorf("assertions[%d]: targets list is required for event_order", index)
		}
	case AssertBurned:
		if a.Block == "" {
			return fmt.Errorf("assertions[%d]: block is required for burned", index)
		}
	case AssertFinalOutput:
		if a.Block == "" || a.Connector == "" {
			return fmt.Errorf("assertions[%d]: block and connector are required for final_output", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// splitRef parses "block.connector". Block ids may contain dots; the
// connector is everything after the last one.
func splitRef(ref string) (ir.BlockID, string, error) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("reference %q must have the form block.connector", ref)
	}
	return ir.BlockID(ref[:i]), ref[i+1:], nil
}

// toConfig converts the YAML form into a stored connector config.
func (c ConnectorSpec) toConfig() (ir.ConnectorConfig, error) {
	switch {
	case c.Wire != "":
		if c.Unset || c.Type != "" || c.Config != nil {
			return ir.ConnectorConfig{}, fmt.Errorf("wire excludes unset, type and config")
		}
		block, output, err := splitRef(c.Wire)
		if err != nil {
			return ir.ConnectorConfig{}, err
		}
		return ir.Wire(block, output), nil
	case c.Unset:
		if c.Type != "" || c.Config != nil {
			return ir.ConnectorConfig{}, fmt.Errorf("unset excludes type and config")
		}
		return ir.ConnectorConfig{Type: ir.KindUnset}, nil
	case c.Type == "":
		return ir.ConnectorConfig{}, fmt.Errorf("one of wire, unset or type is required")
	}

	kind, err := ir.ParseKind(c.Type)
	if err != nil {
		return ir.ConnectorConfig{}, err
	}
	if kind.IsSentinel() {
		return ir.ConnectorConfig{}, fmt.Errorf("use wire or unset instead of type %q", kind)
	}
	cfg := ir.ConnectorConfig{Type: kind}
	if c.Config != nil {
		if cfg.Config, err = ir.FromAny(c.Config); err != nil {
			return ir.ConnectorConfig{}, fmt.Errorf("config: %w", err)
		}
	}
	if c.Control != nil {
		if cfg.ControlConfig, err = ir.FromAny(c.Control); err != nil {
			return ir.ConnectorConfig{}, fmt.Errorf("control: %w", err)
		}
	}
	return cfg, nil
}

// toPlacement converts a block spec into a stored placement.
func (b BlockSpec) toPlacement() (ir.Placement, error) {
	p := ir.Placement{ID: ir.BlockID(b.ID), Type: b.Type, Config: ir.PlacedConfig{}}
	for name, c := range b.Config {
		cfg, err := c.toConfig()
		if err != nil {
			return ir.Placement{}, fmt.Errorf("%s.%s: %w", b.ID, name, err)
		}
		p.Config[name] = cfg
	}
	return p, nil
}

// toValue decodes the injected value as its kind.
func (in InjectSpec) toValue() (ir.Value, error) {
	kind, err := ir.ParseKind(in.Kind)
	if err != nil {
		return nil, err
	}
	if !kind.IsPrimitive() {
		return nil, fmt.Errorf("cannot inject kind %q", kind)
	}
	p, err := ir.FromAny(in.Value)
	if err != nil {
		return nil, err
	}
	return ir.DecodeValue(kind, p)
}

func (s SpeedSpec) toSpeed() ir.Speed {
	return ir.Speed{Type: ir.SpeedType(s.Type), Multiplier: s.Multiplier}
}
