// Package testutil holds deterministic helpers shared by machine tests and
// the scenario harness.
package testutil

import (
	"sync"

	"github.com/roach88/circuit/internal/engine"
)

// DeterministicClock hands out engine clocks that all start from the same
// tick position. Reusing one DeterministicClock across runs of a scenario
// makes every run begin at an identical tick and elapsed time, which is what
// golden trace comparison needs.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu      sync.Mutex
	start   int64
	elapsed float64
	issued  int
}

// NewDeterministicClock creates a clock factory positioned after tick start
// with the given accumulated simulation time. Use (0, 0) for a fresh machine.
func NewDeterministicClock(start int64, elapsed float64) *DeterministicClock {
	return &DeterministicClock{start: start, elapsed: elapsed}
}

// Clock returns a new engine clock at the configured position.
func (c *DeterministicClock) Clock() *engine.Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return engine.NewClockAt(c.start, c.elapsed)
}

// Option returns a machine option that installs a fresh clock.
func (c *DeterministicClock) Option() engine.MachineOption {
	return engine.WithClock(c.Clock())
}

// Start returns the tick position every issued clock starts at.
func (c *DeterministicClock) Start() (tick int64, elapsed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start, c.elapsed
}

// Issued returns how many clocks have been handed out.
func (c *DeterministicClock) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued
}

// Reset moves the start position. Clocks issued earlier are unaffected.
func (c *DeterministicClock) Reset(start int64, elapsed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = start
	c.elapsed = elapsed
	c.issued = 0
}
