package engine

import (
	"sync"
	"time"
)

// Scheduler runs a callback periodically.
//
// Implemented by TickerScheduler (production) and testutil.VirtualClock
// (tests).
type Scheduler interface {
	// Every runs fn each period until the returned cancel is called.
	// Cancel must be idempotent and must not wait for a running fn.
	Every(period time.Duration, fn func()) (cancel func())
}

// TickerScheduler backs Scheduler with time.Ticker. Each registration gets
// its own goroutine.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(period time.Duration, fn func()) func() {
	t := time.NewTicker(period)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}
