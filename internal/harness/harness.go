package harness

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/circuit/internal/blocks"
	"github.com/roach88/circuit/internal/compiler"
	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
	"github.com/roach88/circuit/internal/testutil"
)

// numberTolerance absorbs float rounding when comparing expected numbers.
const numberTolerance = 1e-9

// Harness drives one machine through a scenario.
type Harness struct {
	scenario *Scenario
	machine  *engine.Machine
	sync     *synchronizer.Synchronizer
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	watch    []watchRef
	result   *Result

	mu      sync.Mutex
	pending []synchronizer.Event
}

type watchRef struct {
	key       string
	block     ir.BlockID
	connector string
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh machine and synchronizer. Errors are returned for
// scenarios that cannot run at all (bad catalog, unplaceable initial
// layout); failed expectations and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}

	placements, err := toPlacements(scenario.Blocks)
	if err != nil {
		return nil, err
	}
	if err := h.machine.PlaceAll(placements); err != nil {
		return nil, fmt.Errorf("failed to place blocks: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.runStep(i, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, &AssertionContext{Machine: h.machine, Sync: h.sync}) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(s *Scenario) (*Harness, error) {
	registry, err := registryFor(s)
	if err != nil {
		return nil, err
	}

	// Suppress logs in scenario runs
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machineID := s.MachineID
	if machineID == "" {
		machineID = s.Name
	}
	ids := testutil.NewFixedIDGenerator(machineID)

	h := &Harness{
		scenario: s,
		sync:     synchronizer.New(synchronizer.WithLogger(logger)),
		clock:    testutil.NewDeterministicClock(s.StartTick, s.StartElapsed),
		logger:   logger,
	}
	h.sync.Subscribe(synchronizer.ObserverFunc(h.deliver))

	opts := []engine.MachineOption{engine.WithLogger(logger), h.clock.Option()}
	if s.BaseDT > 0 {
		opts = append(opts, engine.WithBaseDT(s.BaseDT))
	}
	h.machine = engine.NewMachine(ids.Generate(), registry, h.sync, opts...)
	h.result = NewResult(h.machine.ID())

	for _, w := range s.Watch {
		block, connector, _ := splitRef(w)
		h.watch = append(h.watch, watchRef{key: w, block: block, connector: connector})
	}
	return h, nil
}

// registryFor returns the built-in registry, or one built from the
// scenario's own catalog.
func registryFor(s *Scenario) (*engine.Registry, error) {
	if s.Catalog == "" {
		return blocks.NewRegistry()
	}
	src, err := os.ReadFile(s.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	cat, err := compiler.CompileSource(filepath.Base(s.Catalog), src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog: %w", err)
	}
	r := engine.NewRegistry()
	if err := blocks.RegisterCatalog(r, cat); err != nil {
		return nil, fmt.Errorf("failed to register catalog: %w", err)
	}
	return r, nil
}

func toPlacements(specs []BlockSpec) ([]ir.Placement, error) {
	out := make([]ir.Placement, 0, len(specs))
	for _, b := range specs {
		p, err := b.toPlacement()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// deliver records dispatched events. Flush and Forget call it synchronously.
func (h *Harness) deliver(ev synchronizer.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, ev)
}

func (h *Harness) drain() []synchronizer.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pending
	h.pending = nil
	h.result.Events = append(h.result.Events, out...)
	return out
}

// runStep applies a step's actions, runs its ticks and checks its
// expectations. Only unusable references return an error.
func (h *Harness) runStep(i int, st Step) error {
	if err := h.applyActions(i, st); err != nil {
		return err
	}
	if events := h.drain(); len(events) > 0 {
		h.result.Trace = append(h.result.Trace, TraceEntry{Step: i, Phase: PhaseActions, Events: events})
	}

	var last engine.TickReport
	rejected := 0
	for n := 0; n < st.Ticks; n++ {
		last = h.machine.Tick()
		rejected += len(last.Rejected)
		speed := last.Speed
		h.result.Trace = append(h.result.Trace, TraceEntry{
			Step:    i,
			Phase:   PhaseTick,
			Tick:    last.Tick,
			DT:      last.DT,
			Speed:   &speed,
			Events:  h.drain(),
			Burned:  last.Burned,
			Outputs: h.watched(),
		})
		h.logger.Debug("scenario tick", "step", i, "tick", last.Tick, "events", len(last.Events))
	}

	if st.Expect != nil {
		h.checkExpect(i, st, last, rejected)
	}
	return nil
}

func (h *Harness) applyActions(i int, st Step) error {
	if len(st.Place) > 0 {
		placements, err := toPlacements(st.Place)
		if err != nil {
			return err
		}
		err = h.machine.PlaceAll(placements)
		want := ""
		if st.Expect != nil {
			want = st.Expect.Error
		}
		switch {
		case err != nil && want == "":
			h.result.AddError(fmt.Sprintf("step %d: place failed: %v", i, err))
		case err == nil && want != "":
			h.result.AddError(fmt.Sprintf("step %d: place succeeded, expected error containing %q", i, want))
		case err != nil && !strings.Contains(err.Error(), want):
			h.result.AddError(fmt.Sprintf("step %d: place error %q does not contain %q", i, err, want))
		}
	}

	for _, in := range st.Inject {
		v, err := in.toValue()
		if err != nil {
			return fmt.Errorf("inject %s.%s: %w", in.Block, in.Connector, err)
		}
		if err := h.machine.Inject(ir.BlockID(in.Block), in.Connector, v); err != nil {
			return fmt.Errorf("inject %s.%s: %w", in.Block, in.Connector, err)
		}
	}
	for _, c := range st.Clear {
		if err := h.machine.ClearInjection(ir.BlockID(c.Block), c.Connector); err != nil {
			return fmt.Errorf("clear %s.%s: %w", c.Block, c.Connector, err)
		}
	}

	lifecycle := []struct {
		name string
		ids  []string
		fn   func(ir.BlockID) error
	}{
		{"disable", st.Disable, h.machine.Disable},
		{"enable", st.Enable, h.machine.Enable},
		{"reset", st.Reset, h.machine.Reset},
		{"remove", st.Remove, h.machine.Remove},
	}
	for _, lc := range lifecycle {
		for _, id := range lc.ids {
			if err := lc.fn(ir.BlockID(id)); err != nil {
				h.result.AddError(fmt.Sprintf("step %d: %s %s: %v", i, lc.name, id, err))
			}
		}
	}
	return nil
}

// watched returns the committed values of the watched outputs. Unset
// outputs are omitted.
func (h *Harness) watched() map[string]ir.Payload {
	if len(h.watch) == 0 {
		return nil
	}
	out := make(map[string]ir.Payload, len(h.watch))
	for _, w := range h.watch {
		if v, ok := h.machine.Output(w.block, w.connector); ok {
			out[w.key] = v.Payload()
		}
	}
	return out
}

func (h *Harness) checkExpect(i int, st Step, last engine.TickReport, rejected int) {
	e := st.Expect

	refs := make([]string, 0, len(e.Outputs))
	for ref := range e.Outputs {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	for _, ref := range refs {
		block, connector, _ := splitRef(ref)
		want := e.Outputs[ref]
		got, ok := h.machine.Output(block, connector)
		switch {
		case want == nil && ok:
			h.result.AddError(fmt.Sprintf("step %d: output %s: expected unset, got %s", i, ref, formatPayload(got.Payload())))
		case want == nil:
		case !ok:
			h.result.AddError(fmt.Sprintf("step %d: output %s: expected %v, got unset", i, ref, want))
		default:
			if err := matchValue(want, got.Payload()); err != nil {
				h.result.AddError(fmt.Sprintf("step %d: output %s: %v", i, ref, err))
			}
		}
	}

	if e.Burned != nil {
		want := make(map[ir.BlockID]bool, len(e.Burned))
		for _, id := range e.Burned {
			want[ir.BlockID(id)] = true
		}
		for _, n := range h.machine.Snapshot().Nodes {
			if n.State.Burned != want[n.ID] {
				h.result.AddError(fmt.Sprintf("step %d: block %s burned=%t, expected %t", i, n.ID, n.State.Burned, want[n.ID]))
			}
			delete(want, n.ID)
		}
		for id := range want {
			h.result.AddError(fmt.Sprintf("step %d: expected burned block %s is not live", i, id))
		}
	}

	ids := make([]string, 0, len(e.Status))
	for id := range e.Status {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		got := "absent"
		if ns, ok := h.machine.Status(ir.BlockID(id)); ok {
			got = string(ns.Status)
		}
		if got != e.Status[id] {
			h.result.AddError(fmt.Sprintf("step %d: block %s status %s, expected %s", i, id, got, e.Status[id]))
		}
	}

	if e.Speed != nil {
		if want := e.Speed.toSpeed(); st.Ticks == 0 {
			h.result.AddError(fmt.Sprintf("step %d: speed expectation needs at least one tick", i))
		} else if last.Speed.Type != want.Type || math.Abs(last.Speed.Multiplier-want.Multiplier) > numberTolerance {
			h.result.AddError(fmt.Sprintf("step %d: speed %s x%v, expected %s x%v", i,
				last.Speed.Type, last.Speed.Multiplier, want.Type, want.Multiplier))
		}
	}

	if rejected != e.Rejected {
		h.result.AddError(fmt.Sprintf("step %d: %d injections rejected, expected %d", i, rejected, e.Rejected))
	}
}

// matchValue compares an expected YAML value against an actual payload.
// Tables match as subsets; numbers match within numberTolerance.
func matchValue(expected any, actual ir.Payload) error {
	want, err := ir.FromAny(expected)
	if err != nil {
		return fmt.Errorf("expected value: %w", err)
	}
	if !payloadMatches(want, actual) {
		return fmt.Errorf("expected %s, got %s", formatPayload(want), formatPayload(actual))
	}
	return nil
}

func payloadMatches(want, got ir.Payload) bool {
	switch w := want.(type) {
	case ir.Number:
		g, ok := got.(ir.Number)
		return ok && math.Abs(float64(w)-float64(g)) <= numberTolerance
	case ir.Table:
		g, ok := got.(ir.Table)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, present := g[k]
			if !present || !payloadMatches(wv, gv) {
				return false
			}
		}
		return true
	case ir.Array:
		g, ok := got.(ir.Array)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !payloadMatches(w[i], g[i]) {
				return false
			}
		}
		return true
	}
	return ir.Equal(want, got)
}

func formatPayload(p ir.Payload) string {
	b, err := ir.MarshalCanonical(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(b)
}
