// Package engine runs placed logic blocks as a deterministic fixed-step
// machine.
//
// ARCHITECTURE:
//
// Single-Writer Tick Loop:
// A Machine evaluates every node of one building inside Tick(), holding a
// single mutex. Injections from other goroutines go through a FIFO queue
// that the loop drains at the start of each tick. This ensures:
// - Same layout + same injection schedule = same outputs and events
// - No node ever observes a half-updated producer
// - Simple reasoning about burn and removal
//
// Tick Processing Flow:
// 1. Apply the speed requested last tick; advance the clock by base dt
// scaled by the multiplier
// 2. Drain injections into the sticky override table
// 3. Resolve inputs from committed outputs (double buffering)
// 4. Run recompute callbacks, then per-tick callbacks, in creation order
// 5. Commit staged outputs; flush the synchronizer with active sources
//
// Time is simulation time only. Run() paces ticks with a wall-clock ticker
// but never feeds wall time into dt.
//
// A node that returns an error or panics is burned: disabled, its staged
// outputs and queued events dropped, until Reset. A burn never aborts the
// tick for other nodes.
package engine
