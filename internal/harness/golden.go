package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// TraceSnapshot captures the complete trace of a scenario run.
// It serializes to canonical JSON for byte-exact comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	MachineID    string       `json:"machine_id"`
	Trace        []TraceEntry `json:"trace"`
}

// toCanonical converts the snapshot into a payload tree for
// ir.MarshalCanonical. Empty fields are omitted.
func (s *TraceSnapshot) toCanonical() ir.Table {
	entries := make(ir.Array, len(s.Trace))
	for i, e := range s.Trace {
		t := ir.Table{
			"step":  ir.Number(e.Step),
			"phase": ir.String(e.Phase),
		}
		if e.Phase == PhaseTick {
			t["tick"] = ir.Number(e.Tick)
			t["dt"] = ir.Number(e.DT)
		}
		if e.Speed != nil {
			t["speed"] = ir.Table{
				"type":       ir.String(e.Speed.Type),
				"multiplier": ir.Number(e.Speed.Multiplier),
			}
		}
		if len(e.Events) > 0 {
			events := make(ir.Array, len(e.Events))
			for j, ev := range e.Events {
				events[j] = eventTable(ev)
			}
			t["events"] = events
		}
		if len(e.Burned) > 0 {
			burned := make(ir.Array, len(e.Burned))
			for j, id := range e.Burned {
				burned[j] = ir.String(id)
			}
			t["burned"] = burned
		}
		if len(e.Outputs) > 0 {
			outputs := make(ir.Table, len(e.Outputs))
			for k, v := range e.Outputs {
				outputs[k] = v
			}
			t["outputs"] = outputs
		}
		entries[i] = t
	}

	return ir.Table{
		"scenario_name": ir.String(s.ScenarioName),
		"machine_id":    ir.String(s.MachineID),
		"trace":         entries,
	}
}

// eventTable is the publish wire format of an event.
func eventTable(ev synchronizer.Event) ir.Table {
	t := ir.Table{
		"channel": ir.String(ev.Channel),
		"target":  ir.String(ev.Target),
		"tick":    ir.Number(ev.Tick),
		"seq":     ir.Number(ev.Seq),
	}
	if ev.Cleared {
		t["cleared"] = ir.Bool(true)
	} else {
		t["payload"] = ev.Payload
	}
	return t
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		MachineID:    result.MachineID,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
