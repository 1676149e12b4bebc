package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Advance(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())

	assert.Equal(t, int64(1), c.Advance(0.5))
	assert.Equal(t, int64(2), c.Advance(0.25))
	assert.Equal(t, int64(2), c.Current())
	assert.Equal(t, 0.75, c.Elapsed())
}

func TestClock_Resume(t *testing.T) {
	c := NewClockAt(100, 3)
	assert.Equal(t, int64(100), c.Current())
	assert.Equal(t, int64(101), c.Advance(1))
	assert.Equal(t, 4.0, c.Elapsed())
}

// TestClock_ConcurrentReads checks readers never observe a torn tick.
func TestClock_ConcurrentReads(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := int64(0)
			for j := 0; j < 1000; j++ {
				cur := c.Current()
				assert.GreaterOrEqual(t, cur, last)
				last = cur
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		c.Advance(1)
	}
	wg.Wait()
	assert.Equal(t, int64(1000), c.Current())
}
