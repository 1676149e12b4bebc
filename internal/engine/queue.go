package engine

import (
	"sync"

	"github.com/roach88/circuit/internal/ir"
)

// Injection is an external input override submitted from outside the tick
// loop (a player pressing a key, a live sensor reading). It applies from
// the next tick on and sticks until cleared.
type Injection struct {
	Block     ir.BlockID
	Connector string
	Value     ir.Value // nil with Clear
	Clear     bool
}

// inputQueue is a thread-safe FIFO of injections.
//
// External goroutines (transport handlers, the CLI) enqueue; the tick loop
// drains the whole queue at the start of each tick, so every injection
// submitted before a tick begins is visible to that tick.
type inputQueue struct {
	mu      sync.Mutex
	pending []Injection
	closed  bool
}

func newInputQueue() *inputQueue {
	return &inputQueue{pending: make([]Injection, 0, 16)}
}

// Enqueue appends an injection. Returns false if the queue is closed.
func (q *inputQueue) Enqueue(in Injection) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, in)
	return true
}

// Drain removes and returns every queued injection in submission order.
func (q *inputQueue) Drain() []Injection {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = make([]Injection, 0, cap(out))
	return out
}

// Len returns the current queue length.
func (q *inputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further injections. Already queued ones stay drainable.
func (q *inputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
