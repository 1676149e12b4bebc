package harness

import (
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// Trace phases.
const (
	PhaseActions = "actions" // events dispatched by step actions (removals)
	PhaseTick    = "tick"
)

// TraceEntry records what one tick, or one step's actions, produced.
type TraceEntry struct {
	Step    int                   `json:"step"`
	Phase   string                `json:"phase"`
	Tick    int64                 `json:"tick,omitempty"`
	DT      float64               `json:"dt,omitempty"`
	Speed   *ir.Speed             `json:"speed,omitempty"`
	Events  []synchronizer.Event  `json:"events,omitempty"`
	Burned  []ir.BlockID          `json:"burned,omitempty"`
	Outputs map[string]ir.Payload `json:"outputs,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	MachineID string       `json:"machine_id"`
	Trace     []TraceEntry `json:"trace"`

	// Errors lists failed expectations and assertions. Empty if Pass.
	Errors []string `json:"errors,omitempty"`

	// Events is every dispatched event in dispatch order.
	Events []synchronizer.Event `json:"-"`
}

// NewResult creates a passing result.
func NewResult(machineID string) *Result {
	return &Result{
		Pass:      true,
		MachineID: machineID,
		Trace:     []TraceEntry{},
		Errors:    []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Ticks returns the tick entries of the trace.
func (r *Result) Ticks() []TraceEntry {
	var out []TraceEntry
	for _, e := range r.Trace {
		if e.Phase == PhaseTick {
			out = append(out, e)
		}
	}
	return out
}
