// Package harness runs circuit scenarios: YAML files that place blocks on a
// machine, drive it tick by tick and check outputs, burns and replicated
// events.
//
// # Scenario Format
//
//	name: lamp_button
//	description: "A held button lights a lamp one tick later"
//	base_dt: 0.5
//	blocks:
//	  - id: btn
//	    type: button
//	  - id: lamp
//	    type: light
//	    config:
//	      on: {wire: btn.pressed}
//	watch: [btn.pressed]
//	steps:
//	  - ticks: 1
//	  - inject:
//	      - {block: btn, connector: key, kind: keybind, value: {key: space, held: true}}
//	    ticks: 2
//	    expect:
//	      outputs: {btn.pressed: true}
//	assertions:
//	  - type: event_emitted
//	    channel: visual
//	    target: lamp
//	    payload: {on: true}
//
// Within a step, actions apply in a fixed order before any tick runs:
// place, inject, clear, disable, enable, reset, remove. Injections are
// queued and take effect on the step's first tick. Expectations are checked
// after the step's last tick.
//
// # Assertion Types
//
//   - event_emitted: an event on channel/target whose payload contains the
//     given fields was dispatched
//   - event_count: exactly count events were dispatched for channel/target
//   - event_order: first dispatches for the listed targets occur in order
//   - burned: the block is burned at the end of the run
//   - final_output: the block's committed output equals value
//   - existing: the late-join cache holds payload fields for channel/target
//
// # Deterministic Testing
//
// Every run uses a fresh synchronizer, a fixed machine id
// (testutil.FixedIDGenerator) and a clock positioned at start_tick
// (testutil.DeterministicClock). Simulation time never depends on wall
// time, so two runs of one scenario produce byte-identical traces and can
// be compared against golden files.
package harness
