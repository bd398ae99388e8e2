package engine

import "sync/atomic"

// Clock numbers the ticks of a sync session.
//
// Pulses are stamped with the tick seq from this clock rather than wall
// time, so a journaled session orders the same way on every read and the
// seq doubles as "how many ticks into the session".
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
