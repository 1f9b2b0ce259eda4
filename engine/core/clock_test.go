package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockStoppedTicksZero(t *testing.T) {
	c := NewClock()
	assert.Zero(t, c.Tick())
	assert.Zero(t, c.Elapsed())
}

func TestClockTickAdvances(t *testing.T) {
	c := NewClock()
	c.Start()

	time.Sleep(5 * time.Millisecond)
	first := c.Tick()
	assert.Greater(t, first, 0.0)

	time.Sleep(5 * time.Millisecond)
	second := c.Tick()
	assert.Greater(t, second, 0.0)

	// Each tick measures only the time since the previous one, not the
	// total since Start.
	assert.Less(t, second, c.Elapsed().Seconds())
}

func TestClockStopResets(t *testing.T) {
	c := NewClock()
	c.Start()
	time.Sleep(time.Millisecond)
	assert.Greater(t, c.Elapsed(), time.Duration(0))

	c.Stop()
	assert.Zero(t, c.Tick())
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(time.Millisecond)
	assert.Greater(t, c.Tick(), 0.0)
}
