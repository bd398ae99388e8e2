package script

import (
	"math"
	"sort"
)

// Action is a target actuator position at a point in time.
type Action struct {
	// At is milliseconds since script-relative zero.
	At int64 `json:"at"`

	// Pos is the target position, nominally in [0, 100].
	Pos float64 `json:"pos"`
}

// Metadata carries the optional descriptive fields of a funscript.
// All strings are NFC-normalized at parse time.
type Metadata struct {
	Title       string   `json:"title,omitempty"`
	Creator     string   `json:"creator,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Script is an ordered, immutable sequence of actions.
//
// INVARIANT: actions are sorted by At ascending; equal timestamps keep
// their source order.
type Script struct {
	actions  []Action
	version  string
	inverted bool
	rangeMax float64
	meta     Metadata
}

// Load validates raw actions and returns a sorted Script.
//
// Each action must have At >= 0 and a finite Pos. The input slice is not
// modified.
func Load(raw []Action) (*Script, error) {
	actions := make([]Action, len(raw))
	for i, a := range raw {
		if a.At < 0 {
			return nil, &ParseError{Index: i, Field: "at", Message: "must be non-negative"}
		}
		if math.IsNaN(a.Pos) || math.IsInf(a.Pos, 0) {
			return nil, &ParseError{Index: i, Field: "pos", Message: "must be a finite number"}
		}
		actions[i] = a
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].At < actions[j].At
	})

	return &Script{actions: actions}, nil
}

// Len returns the number of actions.
func (s *Script) Len() int {
	return len(s.actions)
}

// Actions returns a copy of the sorted actions.
func (s *Script) Actions() []Action {
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Duration returns the timestamp of the last action in milliseconds,
// or 0 for an empty script.
func (s *Script) Duration() int64 {
	if len(s.actions) == 0 {
		return 0
	}
	return s.actions[len(s.actions)-1].At
}

// Version returns the funscript format version, if the file declared one.
func (s *Script) Version() string { return s.version }

// Inverted reports whether the file asked for positions to be inverted.
func (s *Script) Inverted() bool { return s.inverted }

// Range returns the declared position range, or 0 if absent.
func (s *Script) Range() float64 { return s.rangeMax }

// Metadata returns the descriptive metadata.
func (s *Script) Metadata() Metadata {
	m := s.meta
	if m.Tags != nil {
		m.Tags = append([]string(nil), m.Tags...)
	}
	return m
}

// LookupWindow returns all actions with |At - centerMs| <= windowMs in
// ascending order. Returns nil when none qualify.
func (s *Script) LookupWindow(centerMs, windowMs float64) []Action {
	if windowMs < 0 {
		return nil
	}
	lo := centerMs - windowMs
	hi := centerMs + windowMs

	start := sort.Search(len(s.actions), func(i int) bool {
		return float64(s.actions[i].At) >= lo
	})

	end := start
	for end < len(s.actions) && float64(s.actions[end].At) <= hi {
		end++
	}
	if end == start {
		return nil
	}

	out := make([]Action, end-start)
	copy(out, s.actions[start:end])
	return out
}

// LookupNearestForward returns the earliest action with
// centerMs <= At < centerMs + toleranceMs.
func (s *Script) LookupNearestForward(centerMs, toleranceMs float64) (Action, bool) {
	i := sort.Search(len(s.actions), func(i int) bool {
		return float64(s.actions[i].At) >= centerMs
	})
	if i == len(s.actions) {
		return Action{}, false
	}
	a := s.actions[i]
	if float64(a.At) >= centerMs+toleranceMs {
		return Action{}, false
	}
	return a, true
}

// LookupActive returns the earliest action that is still in effect at
// centerMs: At <= centerMs < At + toleranceMs.
func (s *Script) LookupActive(centerMs, toleranceMs float64) (Action, bool) {
	lo := centerMs - toleranceMs
	i := sort.Search(len(s.actions), func(i int) bool {
		return float64(s.actions[i].At) > lo
	})
	if i == len(s.actions) {
		return Action{}, false
	}
	a := s.actions[i]
	if float64(a.At) > centerMs {
		return Action{}, false
	}
	return a, true
}

// Stats summarizes a script for display.
type Stats struct {
	Actions    int     `json:"actions"`
	DurationMs int64   `json:"duration_ms"`
	MinPos     float64 `json:"min_pos"`
	MaxPos     float64 `json:"max_pos"`

	// MeanSpeed is the average absolute position change per second
	// across consecutive actions with distinct timestamps.
	MeanSpeed float64 `json:"mean_speed"`
}

// Stats computes summary statistics.
func (s *Script) Stats() Stats {
	st := Stats{Actions: len(s.actions), DurationMs: s.Duration()}
	if len(s.actions) == 0 {
		return st
	}

	st.MinPos = s.actions[0].Pos
	st.MaxPos = s.actions[0].Pos
	var travel float64
	var elapsed int64
	for i, a := range s.actions {
		st.MinPos = math.Min(st.MinPos, a.Pos)
		st.MaxPos = math.Max(st.MaxPos, a.Pos)
		if i == 0 {
			continue
		}
		prev := s.actions[i-1]
		if dt := a.At - prev.At; dt > 0 {
			travel += math.Abs(a.Pos - prev.Pos)
			elapsed += dt
		}
	}
	if elapsed > 0 {
		st.MeanSpeed = travel / (float64(elapsed) / 1000)
	}
	return st
}
