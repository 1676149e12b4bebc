package testutil

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/synchronizer"
)

func TestDeterministicClock_FreshClocksShareStart(t *testing.T) {
	dc := NewDeterministicClock(10, 2.5)

	a := dc.Clock()
	b := dc.Clock()
	assert.Equal(t, int64(10), a.Current())
	assert.Equal(t, 2.5, a.Elapsed())

	a.Advance(0.5)
	assert.Equal(t, int64(11), a.Current())
	assert.Equal(t, int64(10), b.Current(), "advancing one clock must not move another")
	assert.Equal(t, 2, dc.Issued())
}

func TestDeterministicClock_Reset(t *testing.T) {
	dc := NewDeterministicClock(0, 0)
	old := dc.Clock()

	dc.Reset(5, 1)
	tick, elapsed := dc.Start()
	assert.Equal(t, int64(5), tick)
	assert.Equal(t, 1.0, elapsed)
	assert.Equal(t, 0, dc.Issued())
	assert.Equal(t, int64(0), old.Current())
	assert.Equal(t, int64(5), dc.Clock().Current())
}

func TestDeterministicClock_MachineResumesFromStart(t *testing.T) {
	dc := NewDeterministicClock(41, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := engine.NewMachine("m", engine.NewRegistry(), synchronizer.New(), engine.WithLogger(logger), dc.Option())

	r := m.Tick()
	assert.Equal(t, int64(42), r.Tick)
	assert.Equal(t, int64(42), m.TickCount())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	dc := NewDeterministicClock(3, 0)
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.Equal(t, int64(3), dc.Clock().Current())
		}()
	}
	wg.Wait()
	assert.Equal(t, n, dc.Issued())
}
