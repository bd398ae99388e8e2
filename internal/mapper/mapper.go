// Package mapper turns nearby script actions into actuation decisions.
//
// Policies are pure: the same (position, script, params) always yields the
// same decision. Absence of qualifying actions is a normal "no actuation"
// outcome, never an error.
package mapper

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/hapsync/internal/script"
	"github.com/roach88/hapsync/internal/settings"
)

// Pattern is a vibration pattern in milliseconds, alternating on and off:
// [200] is a single 200ms pulse, [150, 75, 150] is pulse, gap, pulse.
type Pattern []int

// Total returns the summed length of the pattern in milliseconds.
func (p Pattern) Total() int {
	total := 0
	for _, ms := range p {
		total += ms
	}
	return total
}

func (p Pattern) String() string {
	parts := make([]string, len(p))
	for i, ms := range p {
		parts[i] = fmt.Sprintf("%d", ms)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// DefaultWindowMs is the matching window used by both policies.
const DefaultWindowMs = 100

// Policy decides whether and how strongly to actuate at a playback position.
type Policy interface {
	// Name identifies the policy in configuration and logs.
	Name() string

	// Decide returns the pattern to emit, or false for no actuation.
	Decide(centerMs float64, s *script.Script, p settings.Params) (Pattern, bool)
}

// WindowedDelta maps the largest position change among actions within
// WindowMs of the playback position to a pulse length bounded by the
// configured min/max durations.
type WindowedDelta struct {
	// WindowMs is the half-width of the lookup window. Zero means
	// DefaultWindowMs.
	WindowMs float64
}

// Name implements Policy.
func (WindowedDelta) Name() string { return "windowed" }

// Decide implements Policy.
func (w WindowedDelta) Decide(centerMs float64, s *script.Script, p settings.Params) (Pattern, bool) {
	if s == nil {
		return nil, false
	}
	window := w.WindowMs
	if window <= 0 {
		window = DefaultWindowMs
	}

	actions := s.LookupWindow(centerMs, window)
	if len(actions) < 2 {
		return nil, false
	}

	maxChange := 0.0
	for i := 1; i < len(actions); i++ {
		maxChange = math.Max(maxChange, math.Abs(actions[i].Pos-actions[i-1].Pos))
	}
	if maxChange == 0 {
		return nil, false
	}

	normalized := (maxChange / 100) * p.Intensity * p.Sensitivity
	d := clamp(normalized*10, float64(p.MinDuration), float64(p.MaxDuration))
	return Pattern{int(math.Round(d))}, true
}

// Fixed bounds of the nearest-action policy, independent of settings.
const (
	NearestMinMs = 20
	NearestMaxMs = 100
)

// NearestAction maps the position of the action currently in effect (the
// earliest one at most ToleranceMs behind the playback position) to a
// pulse length in [NearestMinMs, NearestMaxMs].
type NearestAction struct {
	// ToleranceMs is how long an action stays in effect. Zero means
	// DefaultWindowMs.
	ToleranceMs float64
}

// Name implements Policy.
func (NearestAction) Name() string { return "nearest" }

// Decide implements Policy.
func (n NearestAction) Decide(centerMs float64, s *script.Script, p settings.Params) (Pattern, bool) {
	if s == nil {
		return nil, false
	}
	tolerance := n.ToleranceMs
	if tolerance <= 0 {
		tolerance = DefaultWindowMs
	}

	a, ok := s.LookupActive(centerMs, tolerance)
	if !ok {
		return nil, false
	}

	factor := (a.Pos / 100) * p.Intensity * p.Sensitivity
	d := clamp(factor*10, NearestMinMs, NearestMaxMs)
	return Pattern{int(math.Round(d))}, true
}

// ByName returns the policy registered under name ("windowed" or
// "nearest"). The empty name selects the default, WindowedDelta.
func ByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "windowed":
		return WindowedDelta{}, nil
	case "nearest":
		return NearestAction{}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q: must be one of %v", name, Names())
	}
}

// Names lists the registered policy names.
func Names() []string {
	return []string{"windowed", "nearest"}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
