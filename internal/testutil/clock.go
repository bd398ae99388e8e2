package testutil

import (
	"sort"
	"sync"
	"time"
)

// Epoch is the wall time a new VirtualClock starts at.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// VirtualClock is a manually advanced clock that also schedules periodic
// callbacks, so a sync loop and the media clock it follows move in
// lockstep under test control.
//
// Callbacks never run on their own: Advance fires every callback that
// comes due, in time order (ties by registration order), with the clock
// set to the callback's due time.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the clock's lock held, so they may call Now, Every or cancel.
type VirtualClock struct {
	mu      sync.Mutex
	elapsed time.Duration
	nextID  int
	timers  map[int]*virtualTimer
}

type virtualTimer struct {
	id     int
	period time.Duration
	due    time.Duration
	fn     func()
}

// NewVirtualClock creates a clock at Epoch with no timers.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{timers: make(map[int]*virtualTimer)}
}

// Now returns Epoch plus the elapsed virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Epoch.Add(c.elapsed)
}

// Elapsed returns the virtual time since Epoch.
func (c *VirtualClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Every registers fn to run each period of virtual time, first at
// now+period. The returned cancel is idempotent.
//
// Implements engine.Scheduler interface.
func (c *VirtualClock) Every(period time.Duration, fn func()) (cancel func()) {
	if period <= 0 {
		panic("VirtualClock: period must be positive")
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.timers[id] = &virtualTimer{id: id, period: period, due: c.elapsed + period, fn: fn}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.timers, id)
	}
}

// Active returns the number of registered, uncancelled timers.
func (c *VirtualClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d, firing due callbacks in order.
// Returns the number of callbacks fired.
func (c *VirtualClock) Advance(d time.Duration) int {
	c.mu.Lock()
	target := c.elapsed + d
	fired := 0
	for {
		t := c.nextDueLocked(target)
		if t == nil {
			break
		}
		c.elapsed = t.due
		t.due += t.period
		fn := t.fn
		c.mu.Unlock()

		fn()
		fired++

		c.mu.Lock()
	}
	if target > c.elapsed {
		c.elapsed = target
	}
	c.mu.Unlock()
	return fired
}

// nextDueLocked returns the earliest timer due at or before target.
func (c *VirtualClock) nextDueLocked(target time.Duration) *virtualTimer {
	var due []*virtualTimer
	for _, t := range c.timers {
		if t.due <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})
	return due[0]
}

// Reset clears all timers and rewinds to Epoch.
//
// Used for test reuse.
func (c *VirtualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = 0
	c.timers = make(map[int]*virtualTimer)
}
