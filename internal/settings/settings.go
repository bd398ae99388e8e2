// Package settings holds the user-tunable sync parameters.
//
// The Store validates every change at the setter boundary: an invalid
// value returns a *ParamError and leaves the current parameters untouched.
// Disabling vibration runs the registered disable hooks synchronously so
// the sync loop stops before the setter returns.
package settings

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Params are the sync parameters read on every tick.
type Params struct {
	Intensity   float64 `json:"intensity" yaml:"intensity"`
	Sensitivity float64 `json:"sensitivity" yaml:"sensitivity"`
	MinDuration int     `json:"min_duration" yaml:"min_duration"`
	MaxDuration int     `json:"max_duration" yaml:"max_duration"`
	Enabled     bool    `json:"enabled" yaml:"enabled"`

	// AllowDuringFullscreen keeps actuation running while the video is
	// fullscreen. When false, ticks skip actuation in fullscreen.
	AllowDuringFullscreen bool `json:"allow_during_fullscreen" yaml:"allow_during_fullscreen"`
}

// Defaults returns the factory parameters.
func Defaults() Params {
	return Params{
		Intensity:             1.0,
		Sensitivity:           1.0,
		MinDuration:           50,
		MaxDuration:           1000,
		Enabled:               true,
		AllowDuringFullscreen: true,
	}
}

// Validate checks every field and the min/max relation.
func (p Params) Validate() error {
	if err := checkScale("intensity", p.Intensity); err != nil {
		return err
	}
	if err := checkScale("sensitivity", p.Sensitivity); err != nil {
		return err
	}
	if p.MinDuration <= 0 {
		return &ParamError{Field: "min_duration", Value: p.MinDuration, Message: "must be positive"}
	}
	if p.MaxDuration < p.MinDuration {
		return &ParamError{
			Field:   "max_duration",
			Value:   p.MaxDuration,
			Message: fmt.Sprintf("must be >= min_duration (%d)", p.MinDuration),
		}
	}
	return nil
}

func checkScale(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &ParamError{Field: field, Value: v, Message: "must be a positive finite number"}
	}
	return nil
}

// ParamError reports a rejected parameter value.
type ParamError struct {
	Field   string
	Value   any
	Message string
}

func (e *ParamError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Message)
}

// IsParamError reports whether err is or wraps a *ParamError.
func IsParamError(err error) bool {
	var pe *ParamError
	return errors.As(err, &pe)
}

// Store is the mutable parameter record shared by the UI host and the
// sync loop.
//
// Thread-safety: all methods are safe for concurrent use. Hooks run on
// the caller's goroutine after the store lock is released.
type Store struct {
	mu        sync.Mutex
	params    Params
	onChange  []func(Params)
	onDisable []func()
}

// NewStore creates a store holding p. p must be valid.
func NewStore(p Params) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Store{params: p}, nil
}

// NewDefaultStore creates a store holding Defaults().
func NewDefaultStore() *Store {
	return &Store{params: Defaults()}
}

// Params returns a snapshot of the current parameters.
func (s *Store) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// OnChange registers fn to be called with the new parameters after every
// successful change.
func (s *Store) OnChange(fn func(Params)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnDisable registers fn to be called when Enabled goes from true to false.
func (s *Store) OnDisable(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisable = append(s.onDisable, fn)
}

// SetIntensity sets the intensity scale factor.
func (s *Store) SetIntensity(v float64) error {
	return s.update(func(p *Params) { p.Intensity = v })
}

// SetSensitivity sets the sensitivity scale factor.
func (s *Store) SetSensitivity(v float64) error {
	return s.update(func(p *Params) { p.Sensitivity = v })
}

// SetMinDuration sets the pulse floor in milliseconds.
func (s *Store) SetMinDuration(ms int) error {
	return s.update(func(p *Params) { p.MinDuration = ms })
}

// SetMaxDuration sets the pulse ceiling in milliseconds.
func (s *Store) SetMaxDuration(ms int) error {
	return s.update(func(p *Params) { p.MaxDuration = ms })
}

// SetDurations sets floor and ceiling together, for moves that would be
// rejected one field at a time.
func (s *Store) SetDurations(minMs, maxMs int) error {
	return s.update(func(p *Params) {
		p.MinDuration = minMs
		p.MaxDuration = maxMs
	})
}

// SetEnabled turns vibration on or off. Turning it off runs the disable
// hooks before returning.
func (s *Store) SetEnabled(v bool) error {
	return s.update(func(p *Params) { p.Enabled = v })
}

// SetAllowDuringFullscreen sets whether actuation continues in fullscreen.
func (s *Store) SetAllowDuringFullscreen(v bool) error {
	return s.update(func(p *Params) { p.AllowDuringFullscreen = v })
}

// Replace swaps in a complete parameter set.
func (s *Store) Replace(p Params) error {
	return s.update(func(cur *Params) { *cur = p })
}

// Reset restores Defaults().
func (s *Store) Reset() {
	_ = s.Replace(Defaults())
}

func (s *Store) update(mutate func(*Params)) error {
	s.mu.Lock()
	next := s.params
	mutate(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}

	disabled := s.params.Enabled && !next.Enabled
	s.params = next
	changeHooks := slices.Clone(s.onChange)
	var disableHooks []func()
	if disabled {
		disableHooks = slices.Clone(s.onDisable)
	}
	s.mu.Unlock()

	for _, fn := range disableHooks {
		fn()
	}
	for _, fn := range changeHooks {
		fn(next)
	}
	return nil
}
