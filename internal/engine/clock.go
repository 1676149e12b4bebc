package engine

import (
	"math"
	"sync/atomic"
)

// Clock is the machine's logical clock: a strictly increasing tick counter
// plus the accumulated scaled simulation time.
//
// Ticks are never derived from wall-clock time, which keeps two machines fed
// the same inputs bit-identical regardless of scheduling jitter.
//
// Thread-safety: Clock is safe for concurrent reads (atomic operations).
// Only the machine's tick loop advances it.
type Clock struct {
	tick    atomic.Int64
	elapsed atomic.Uint64 // float64 bits
}

// NewClock creates a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after tick start with the given
// elapsed simulation time. Used when a machine is restored from a slot.
func NewClockAt(start int64, elapsed float64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	c.elapsed.Store(math.Float64bits(elapsed))
	return c
}

// Advance moves to the next tick, adds dt to the elapsed time and returns
// the new tick number.
func (c *Clock) Advance(dt float64) int64 {
	c.elapsed.Store(math.Float64bits(c.Elapsed() + dt))
	return c.tick.Add(1)
}

// Current returns the last tick number without advancing.
func (c *Clock) Current() int64 {
	return c.tick.Load()
}

// Elapsed returns the accumulated scaled simulation time.
func (c *Clock) Elapsed() float64 {
	return math.Float64frombits(c.elapsed.Load())
}
