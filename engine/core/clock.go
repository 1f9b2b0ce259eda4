package core

import "time"

// Clock measures wall time for the frame loop. Start anchors the clock and
// Tick hands out per-frame deltas in seconds.
type Clock struct {
	start time.Time
	last  time.Time
}

func NewClock() *Clock {
	return &Clock{}
}

// Start anchors the clock at the current time and resets the tick reference.
func (c *Clock) Start() {
	now := time.Now()
	c.start = now
	c.last = now
}

// Stop clears the anchor. Tick and Elapsed report zero until restarted.
func (c *Clock) Stop() {
	c.start = time.Time{}
	c.last = time.Time{}
}

// Tick returns the seconds since the previous Tick (or Start) and advances
// the reference. A stopped clock ticks zero.
func (c *Clock) Tick() float64 {
	if c.start.IsZero() {
		return 0
	}
	now := time.Now()
	delta := now.Sub(c.last).Seconds()
	c.last = now
	return delta
}

// Elapsed reports the time since Start, or zero if the clock is stopped.
func (c *Clock) Elapsed() time.Duration {
	if c.start.IsZero() {
		return 0
	}
	return time.Since(c.start)
}
