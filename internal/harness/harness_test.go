package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
)

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src), "")
	require.NoError(t, err)
	return s
}

func TestRun_AdderPasses(t *testing.T) {
	s := parse(t, `
name: adder
description: "constant feeds an adder"
base_dt: 0.5
blocks:
  - id: k
    type: constant
    config:
      value: {type: number, config: 2}
  - id: sum
    type: arithmetic
    config:
      a: {wire: k.out}
      b: {type: number, config: 3}
watch: [sum.result]
steps:
  - ticks: 1
    expect:
      outputs: {k.out: 2, sum.result: 3}
  - ticks: 1
    expect:
      outputs: {sum.result: 5}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "adder", result.MachineID)

	ticks := result.Ticks()
	require.Len(t, ticks, 2)
	assert.Equal(t, int64(1), ticks[0].Tick)
	assert.Equal(t, 0.5, ticks[0].DT)
	assert.Equal(t, ir.Number(3), ticks[0].Outputs["sum.result"])
	assert.Equal(t, ir.Number(5), ticks[1].Outputs["sum.result"])
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := parse(t, `
name: wrong
description: "every expectation is wrong"
blocks:
  - id: k
    type: constant
    config:
      value: {type: number, config: 2}
steps:
  - ticks: 1
    expect:
      outputs: {k.out: 7, k.missing: 1}
      burned: [k]
      status: {k: disabled}
assertions:
  - type: final_output
    block: k
    connector: out
    value: 8
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "output k.out: expected 7, got 2")
	assert.Contains(t, joined, "output k.missing: expected 1, got unset")
	assert.Contains(t, joined, "block k burned=false, expected true")
	assert.Contains(t, joined, "block k status enabled, expected disabled")
	assert.Contains(t, joined, "Assertion failed: final_output")
}

func TestRun_UnsetOutputExpectation(t *testing.T) {
	s := parse(t, `
name: unset_output
description: "a timer that never ticked has no output"
blocks:
  - id: tmr
    type: timer
  - id: k
    type: constant
steps:
  - disable: [tmr]
    ticks: 1
    expect:
      outputs: {tmr.elapsed: null, k.out: 0}
      status: {tmr: disabled}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ResumesFromStartTick(t *testing.T) {
	s := parse(t, `
name: resumed
description: "clock resumes after saved progress"
base_dt: 0.25
start_tick: 100
start_elapsed: 25
machine_id: slot-7
blocks:
  - id: k
    type: constant
steps:
  - ticks: 2
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, "slot-7", result.MachineID)

	ticks := result.Ticks()
	require.Len(t, ticks, 2)
	assert.Equal(t, int64(101), ticks[0].Tick)
	assert.Equal(t, int64(102), ticks[1].Tick)
}

func TestRun_InitialPlacementErrorIsFatal(t *testing.T) {
	s := parse(t, `
name: dangling
description: "wire to a block that was never placed"
blocks:
  - id: lamp
    type: light
    config:
      on: {wire: ghost.out}
steps:
  - ticks: 1
`)
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to place blocks")
	assert.Contains(t, err.Error(), "DANGLING_WIRE")
}

func TestRun_UnexpectedPlaceErrorFails(t *testing.T) {
	s := parse(t, `
name: bad_place
description: "placing an unknown type mid-run"
blocks:
  - id: k
    type: constant
steps:
  - place:
      - id: t
        type: teleporter
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "UNKNOWN_BLOCK_TYPE")
}

func TestRun_LifecycleErrorsAreReported(t *testing.T) {
	s := parse(t, `
name: remove_twice
description: "removing a block twice"
blocks:
  - id: k
    type: constant
steps:
  - remove: [k]
  - remove: [k]
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1: remove k")
}

func TestRun_SpeakerEventsAndLateJoin(t *testing.T) {
	s := parse(t, `
name: speaker
description: "speaker state converges for late joiners"
blocks:
  - id: spk
    type: speaker
    config:
      playing: {type: boolean, config: true}
steps:
  - ticks: 2
  - inject:
      - {block: spk, connector: volume, kind: number, value: 0.5}
    ticks: 1
assertions:
  - type: event_count
    channel: sound
    target: spk
    count: 2
  - type: event_emitted
    channel: sound
    target: spk
    payload: {playing: true, volume: 0.5, id: beep}
  - type: existing
    channel: sound
    target: spk
    payload: {volume: 0.5}
  - type: event_order
    channel: sound
    targets: [spk]
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Events, 2)
	assert.Equal(t, int64(1), result.Events[0].Tick)
	assert.Equal(t, int64(3), result.Events[1].Tick)
}

func TestRun_CustomCatalog(t *testing.T) {
	dir := t.TempDir()
	catalog := `
block: constant: {
	input: value: {
		displayName: "Value"
		types: number: config: 42
	}
	output: out: {
		displayName: "Out"
		types: number: {}
	}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocks.cue"), []byte(catalog), 0o644))

	s, err := ParseScenario([]byte(`
name: custom
description: "user catalog overrides a default"
catalog: blocks.cue
blocks:
  - id: k
    type: constant
steps:
  - ticks: 1
    expect:
      outputs: {k.out: 42}
  - place:
      - id: sum
        type: arithmetic
    expect:
      error: UNKNOWN_BLOCK_TYPE
`), dir)
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BadCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocks.cue"), []byte("block: teleporter: input: target: types: vector3: {}\n"), 0o644))

	s, err := ParseScenario([]byte(minimalScenario+"catalog: blocks.cue\n"), dir)
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register catalog")
}

func TestPayloadMatches(t *testing.T) {
	got := ir.Table{
		"on":    ir.Bool(true),
		"level": ir.Number(0.30000000000000004),
		"color": ir.Table{"r": ir.Number(1), "g": ir.Number(0), "b": ir.Number(0)},
		"tags":  ir.Array{ir.String("a"), ir.String("b")},
	}

	assert.True(t, payloadMatches(ir.Table{"on": ir.Bool(true)}, got))
	assert.True(t, payloadMatches(ir.Table{"level": ir.Number(0.3)}, got))
	assert.True(t, payloadMatches(ir.Table{"color": ir.Table{"r": ir.Number(1)}}, got))
	assert.True(t, payloadMatches(ir.Table{"tags": ir.Array{ir.String("a"), ir.String("b")}}, got))

	assert.False(t, payloadMatches(ir.Table{"on": ir.Bool(false)}, got))
	assert.False(t, payloadMatches(ir.Table{"missing": ir.Bool(true)}, got))
	assert.False(t, payloadMatches(ir.Table{"tags": ir.Array{ir.String("a")}}, got))
	assert.False(t, payloadMatches(ir.Number(1), ir.String("1")))
}
