package harness

import (
	"time"

	"github.com/roach88/hapsync/internal/actuator"
)

// TraceEvent is one call that reached the actuator.
type TraceEvent struct {
	// AtMs is virtual time since the scenario started.
	AtMs int64 `json:"at_ms"`

	// PositionMs is the media position when the call was made.
	PositionMs float64 `json:"position_ms"`

	Kind    actuator.CallKind `json:"kind"`
	Pattern []int             `json:"pattern,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every actuator call in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Sessions lists session IDs in start order.
	Sessions []string `json:"sessions"`

	// State is the engine state after the last step.
	State string `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Sessions: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCall appends an actuator call to the trace.
func (r *Result) AddCall(at, position time.Duration, c actuator.Call) {
	r.Trace = append(r.Trace, TraceEvent{
		AtMs:       at.Milliseconds(),
		PositionMs: float64(position) / float64(time.Millisecond),
		Kind:       c.Kind,
		Pattern:    c.Pattern,
	})
}

// Count returns the number of trace events of kind.
func (r *Result) Count(kind actuator.CallKind) int {
	n := 0
	for _, e := range r.Trace {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// LastPattern returns the pattern of the last vibrate call, or nil.
func (r *Result) LastPattern() []int {
	for i := len(r.Trace) - 1; i >= 0; i-- {
		if r.Trace[i].Kind == actuator.CallVibrate {
			return r.Trace[i].Pattern
		}
	}
	return nil
}
