package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// AssertionError is returned when an assertion fails.
// It includes the dispatched events to help debug the failure.
type AssertionError struct {
	Type     string               // Assertion type for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	Events   []synchronizer.Event // Dispatched events for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nDispatched events:\n")
		for _, ev := range e.Events {
			if ev.Cleared {
				fmt.Fprintf(&buf, "  [%d] tick %d %s/%s cleared\n", ev.Seq, ev.Tick, ev.Channel, ev.Target)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] tick %d %s/%s %s\n", ev.Seq, ev.Tick, ev.Channel, ev.Target, formatPayload(ev.Payload))
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the machine and the
// synchronizer after the run.
type AssertionContext struct {
	Machine *engine.Machine
	Sync    *synchronizer.Synchronizer
}

// assertEventEmitted checks that some dispatched event on channel/target
// carries the expected payload fields (subset match).
func assertEventEmitted(events []synchronizer.Event, a Assertion) error {
	want, err := ir.FromAny(toAnyMap(a.Payload))
	if err != nil {
		return fmt.Errorf("event_emitted: payload: %w", err)
	}
	for _, ev := range events {
		if ev.Channel == a.Channel && ev.Target == a.Target && !ev.Cleared && payloadMatches(want, ev.Payload) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventEmitted,
		Expected: fmt.Sprintf("%s/%s with payload %s", a.Channel, a.Target, formatPayload(want)),
		Actual:   "no matching event dispatched",
		Events:   events,
	}
}

// assertEventCount checks the exact number of dispatches, cleared events
// included, for channel/target.
func assertEventCount(events []synchronizer.Event, a Assertion) error {
	n := 0
	for _, ev := range events {
		if ev.Channel == a.Channel && ev.Target == a.Target {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d events for %s/%s", a.Count, a.Channel, a.Target),
		Actual:   fmt.Sprintf("%d events", n),
		Events:   events,
	}
}

// assertEventOrder checks that the first dispatch of each listed target
// happens in the listed order. Other events may intervene. When channel is
// set only that channel is considered.
func assertEventOrder(events []synchronizer.Event, a Assertion) error {
	first := make(map[string]int)
	for i, ev := range events {
		if a.Channel != "" && ev.Channel != a.Channel {
			continue
		}
		if _, seen := first[ev.Target]; !seen {
			first[ev.Target] = i
		}
	}

	prev := -1
	for _, target := range a.Targets {
		pos, ok := first[target]
		if !ok {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("targets in order %v", a.Targets),
				Actual:   fmt.Sprintf("target %s never dispatched", target),
				Events:   events,
			}
		}
		if pos < prev {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("targets in order %v", a.Targets),
				Actual:   fmt.Sprintf("target %s dispatched out of order", target),
				Events:   events,
			}
		}
		prev = pos
	}
	return nil
}

func assertBurned(m *engine.Machine, a Assertion) error {
	st, ok := m.Status(ir.BlockID(a.Block))
	if !ok {
		return &AssertionError{Type: AssertBurned, Expected: fmt.Sprintf("block %s burned", a.Block), Actual: "block not placed"}
	}
	if !st.Burned {
		return &AssertionError{Type: AssertBurned, Expected: fmt.Sprintf("block %s burned", a.Block), Actual: fmt.Sprintf("status %s, not burned", st.Status)}
	}
	return nil
}

func assertFinalOutput(m *engine.Machine, a Assertion) error {
	expected := fmt.Sprintf("%s.%s = %v", a.Block, a.Connector, a.Value)
	v, ok := m.Output(ir.BlockID(a.Block), a.Connector)
	if !ok {
		if a.Value == nil {
			return nil
		}
		return &AssertionError{Type: AssertFinalOutput, Expected: expected, Actual: "output unset"}
	}
	if a.Value == nil {
		return &AssertionError{Type: AssertFinalOutput, Expected: expected, Actual: formatPayload(v.Payload())}
	}
	if err := matchValue(a.Value, v.Payload()); err != nil {
		return &AssertionError{Type: AssertFinalOutput, Expected: expected, Actual: err.Error()}
	}
	return nil
}

// assertExisting checks the late-join cache a joining observer would
// receive for channel/target.
func assertExisting(s *synchronizer.Synchronizer, a Assertion) error {
	want, err := ir.FromAny(toAnyMap(a.Payload))
	if err != nil {
		return fmt.Errorf("existing: payload: %w", err)
	}
	got, ok := s.GetExisting(a.Channel, a.Target)
	expected := fmt.Sprintf("cached %s/%s with payload %s", a.Channel, a.Target, formatPayload(want))
	if !ok {
		return &AssertionError{Type: AssertExisting, Expected: expected, Actual: "no cached state"}
	}
	if !payloadMatches(want, got) {
		return &AssertionError{Type: AssertExisting, Expected: expected, Actual: formatPayload(got)}
	}
	return nil
}

func toAnyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertEventEmitted:
			err = assertEventEmitted(result.Events, a)
		case AssertEventCount:
			err = assertEventCount(result.Events, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Events, a)
		case AssertBurned, AssertFinalOutput:
			if actx == nil || actx.Machine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a machine", i, a.Type)
			} else if a.Type == AssertBurned {
				err = assertBurned(actx.Machine, a)
			} else {
				err = assertFinalOutput(actx.Machine, a)
			}
		case AssertExisting:
			if actx == nil || actx.Sync == nil {
				err = fmt.Errorf("assertion[%d]: existing requires a synchronizer", i)
			} else {
				err = assertExisting(actx.Sync, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
