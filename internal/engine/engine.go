package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/mapper"
	"github.com/roach88/hapsync/internal/playback"
	"github.com/roach88/hapsync/internal/script"
	"github.com/roach88/hapsync/internal/settings"
	"github.com/roach88/hapsync/internal/store"
)

// PlaybackState is one read of the media clock.
type PlaybackState = playback.State

// PlaybackSource is polled once per tick.
type PlaybackSource = playback.Source

// ErrCapabilityUnavailable is reported when there is no actuation hardware.
var ErrCapabilityUnavailable = actuator.ErrCapabilityUnavailable

// DefaultPeriod is the tick period. It stays under the 100ms matching
// window so no action is skipped between ticks at normal speed.
const DefaultPeriod = 50 * time.Millisecond

// State is the sync session state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stop reasons recorded in the journal.
const (
	ReasonStop     = "stop"
	ReasonPause    = "pause"
	ReasonEnded    = "ended"
	ReasonDisabled = "disabled"
	ReasonCleared  = "script_cleared"
	ReasonRestart  = "restart"
	ReasonClosed   = "closed"
)

// Engine keeps actuation in step with a playback source.
//
// While Running, a timer fires every period. Each tick reads the playback
// state once, asks the policy for a pattern at that position and forwards
// it to the actuator gateway.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - ticks and state transitions are serialized on one mutex
//   - the script is swapped atomically and read once per tick
//
// INVARIANTS:
//   - at most one timer is installed at any time
//   - once a stop path returns, no tick of that session reaches the gateway
//   - every stop path issues exactly one gateway cancel
type Engine struct {
	source   PlaybackSource
	gateway  *actuator.Gateway
	settings *settings.Store
	script   atomic.Pointer[script.Script]

	period  time.Duration
	sched   Scheduler
	ids     SessionIDGenerator
	journal Journal
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	policy  mapper.Policy
	state   State
	gen     uint64 // bumped on every start and stop; stale ticks compare unequal
	cancel  func()
	session string
	ticks   *Clock
	pulses  int
	closed  bool
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithPolicy sets the intensity policy. Default: mapper.WindowedDelta with
// a 100ms window.
func WithPolicy(p mapper.Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithPeriod sets the tick period. Non-positive values are ignored.
func WithPeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.period = d
		}
	}
}

// WithScheduler sets the tick scheduler. Default: TickerScheduler.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		e.sched = s
	}
}

// WithSessionIDs sets the session ID generator. Default: UUIDv7Generator.
func WithSessionIDs(g SessionIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithJournal records sessions and pulses to j.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNow sets the wall clock used for journal timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an idle engine.
//
// act is probed once; without hardware the engine still runs sessions but
// nothing reaches a device. A nil st uses default settings. The engine
// registers itself on st so that disabling vibration stops the session
// before the setter returns.
func New(source PlaybackSource, act actuator.Actuator, st *settings.Store, opts ...Option) *Engine {
	if st == nil {
		st = settings.NewDefaultStore()
	}

	e := &Engine{
		source:   source,
		settings: st,
		period:   DefaultPeriod,
		sched:    TickerScheduler{},
		ids:      UUIDv7Generator{},
		journal:  nopJournal{},
		logger:   slog.Default(),
		now:      time.Now,
		policy:   mapper.WindowedDelta{WindowMs: mapper.DefaultWindowMs},
		ticks:    NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.gateway = actuator.NewGateway(act, e.logger)
	st.OnDisable(func() { e.stop(ReasonDisabled) })

	return e
}

// Settings returns the settings store the engine reads from.
func (e *Engine) Settings() *settings.Store {
	return e.settings
}

// Available reports whether actuation reaches hardware.
func (e *Engine) Available() bool {
	return e.gateway.Available()
}

// LoadScript swaps in s. A running session picks it up on its next tick.
// A nil s clears the script.
func (e *Engine) LoadScript(s *script.Script) {
	if s == nil {
		e.ClearScript()
		return
	}
	e.script.Store(s)
	e.logger.Debug("script loaded", "actions", s.Len(), "duration_ms", s.Duration())
}

// LoadScriptFrom parses a funscript document and swaps it in. On a parse
// error the previous script stays loaded and the session is untouched.
func (e *Engine) LoadScriptFrom(r io.Reader) (*script.Script, error) {
	s, err := script.Parse(r)
	if err != nil {
		e.logger.Warn("script rejected", "error", err)
		return nil, NewParseError(err)
	}
	e.LoadScript(s)
	return s, nil
}

// ClearScript unloads the script and stops any session.
func (e *Engine) ClearScript() {
	e.script.Store(nil)
	e.stop(ReasonCleared)
}

// Script returns the loaded script, or nil.
func (e *Engine) Script() *script.Script {
	return e.script.Load()
}

// SetPolicy replaces the intensity policy. Takes effect on the next tick.
func (e *Engine) SetPolicy(p mapper.Policy) {
	if p == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

// Policy returns the current intensity policy.
func (e *Engine) Policy() mapper.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// ApplySettings replaces every parameter at once. Invalid parameters are
// rejected and nothing changes. Turning vibration off stops the session.
func (e *Engine) ApplySettings(p settings.Params) error {
	if err := e.settings.Replace(p); err != nil {
		return NewInvalidParameterError(err)
	}
	return nil
}

// OnPlay implements playback.Listener. It starts a session when possible
// and logs why not otherwise.
func (e *Engine) OnPlay() {
	if err := e.Start(); err != nil {
		e.logger.Info("sync not started", "error", err)
	}
}

// OnPause implements playback.Listener.
func (e *Engine) OnPause() {
	e.stop(ReasonPause)
}

// OnEnded implements playback.Listener.
func (e *Engine) OnEnded() {
	e.stop(ReasonEnded)
}

// Start begins a new session, replacing any running one.
//
// Returns a NOT_READY error when no script is loaded or vibration is
// disabled; the engine then stays Idle.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return &Error{Code: ErrCodeNotReady, Message: "engine closed"}
	}
	s := e.script.Load()
	if s == nil {
		return &Error{Code: ErrCodeNotReady, Message: "no action script loaded"}
	}
	p := e.settings.Params()
	if !p.Enabled {
		return &Error{Code: ErrCodeNotReady, Message: "vibration disabled"}
	}

	if e.state == Running {
		e.endSessionLocked(ReasonRestart)
	}

	e.gen++
	gen := e.gen
	e.session = e.ids.Generate()
	e.ticks = NewClock()
	e.pulses = 0
	e.state = Running
	e.cancel = e.sched.Every(e.period, func() { e.tick(gen) })

	sess := store.Session{
		ID:            e.session,
		Policy:        e.policy.Name(),
		ScriptActions: s.Len(),
		PeriodMs:      e.period.Milliseconds(),
		Settings:      encodeParams(p),
		StartedAt:     e.now(),
	}
	if err := e.journal.BeginSession(context.Background(), sess); err != nil {
		e.logger.Warn("journal begin failed", "session", e.session, "error", err)
	}

	e.logger.Info("sync started",
		"session", e.session,
		"policy", e.policy.Name(),
		"period", e.period,
		"actions", s.Len(),
	)
	return nil
}

// Stop ends the session, if any, and cancels actuation.
func (e *Engine) Stop() {
	e.stop(ReasonStop)
}

// Close stops the engine for good. Later Start calls fail.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(ReasonClosed)
	e.closed = true
}

// State returns the session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionID returns the running session's ID, or "" when Idle.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Pulses returns the number of patterns the running session has sent.
func (e *Engine) Pulses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pulses
}

// TestPulse fires actuator.TestPattern regardless of playback.
func (e *Engine) TestPulse() error {
	if !e.gateway.Available() {
		return &Error{
			Code:    ErrCodeCapabilityUnavailable,
			Message: "test vibration not possible",
			Err:     ErrCapabilityUnavailable,
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gateway.Vibrate(actuator.TestPattern)
	return nil
}

func (e *Engine) stop(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(reason)
}

// stopLocked moves to Idle and cancels actuation. The gateway cancel is
// issued even when already Idle.
func (e *Engine) stopLocked(reason string) {
	if e.state == Running {
		e.endSessionLocked(reason)
		e.logger.Info("sync stopped", "reason", reason)
	}
	e.gateway.Cancel()
}

// endSessionLocked tears down the timer and closes the journal session.
func (e *Engine) endSessionLocked(reason string) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.state = Idle

	if err := e.journal.EndSession(context.Background(), e.session, reason, e.now(), e.ticks.Current()); err != nil {
		e.logger.Warn("journal end failed", "session", e.session, "error", err)
	}
	e.logger.Debug("session ended",
		"session", e.session,
		"reason", reason,
		"ticks", e.ticks.Current(),
		"pulses", e.pulses,
	)
	e.session = ""
}

// tick is one timer firing for session generation gen.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running || e.gen != gen {
		return
	}
	seq := e.ticks.Next()

	ps := e.source.Snapshot()
	if !ps.Playing {
		return
	}
	p := e.settings.Params()
	if !p.Enabled {
		return
	}
	if ps.Fullscreen && !p.AllowDuringFullscreen {
		return
	}
	s := e.script.Load()
	if s == nil {
		return
	}

	pattern, ok := e.policy.Decide(ps.PositionMs, s, p)
	if !ok {
		return
	}
	if !e.gateway.Vibrate(pattern) {
		return
	}
	e.pulses++

	pulse := store.Pulse{
		SessionID:  e.session,
		Seq:        seq,
		PositionMs: ps.PositionMs,
		Pattern:    pattern,
	}
	if err := e.journal.RecordPulse(context.Background(), pulse); err != nil {
		e.logger.Warn("journal pulse failed", "session", e.session, "seq", seq, "error", err)
	}
}

func encodeParams(p settings.Params) string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}
