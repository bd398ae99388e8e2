// Package actuator wraps the physical vibration capability.
//
// The Gateway detects capability once at construction. When the device has
// no actuator, the problem is logged a single time and every later call
// becomes a silent no-op, so playback never sees an actuation failure.
package actuator

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/hapsync/internal/mapper"
)

// ErrCapabilityUnavailable is logged when no actuation hardware is present.
var ErrCapabilityUnavailable = errors.New("vibration capability unavailable")

// TestPattern is the pattern fired by the test-vibration control.
var TestPattern = mapper.Pattern{150, 75, 150}

// Actuator is a device that can emit vibration patterns.
//
// Calls are fire-and-forget: Vibrate returns once the request is accepted,
// not when the pattern has finished playing.
type Actuator interface {
	// Vibrate starts pattern, replacing anything in progress. Returns true
	// if the request was accepted.
	Vibrate(pattern mapper.Pattern) bool

	// Cancel stops any pattern in progress.
	Cancel()
}

// Detector is implemented by actuators that can report whether the
// hardware is present.
type Detector interface {
	Supported() bool
}

// Gateway is the engine's only path to an Actuator.
//
// Thread-safety: safe for concurrent use if the wrapped Actuator is.
type Gateway struct {
	act       Actuator
	available bool
}

// NewGateway probes act once. A nil act or a Detector reporting false makes
// the gateway permanently unavailable.
func NewGateway(act Actuator, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	available := act != nil
	if d, ok := act.(Detector); ok && available {
		available = d.Supported()
	}
	if !available {
		logger.Warn("actuation disabled", "error", ErrCapabilityUnavailable)
	}

	return &Gateway{act: act, available: available}
}

// Available reports whether actuation reaches hardware.
func (g *Gateway) Available() bool {
	return g.available
}

// Vibrate forwards pattern. Returns false when unavailable or rejected.
func (g *Gateway) Vibrate(pattern mapper.Pattern) bool {
	if !g.available || len(pattern) == 0 {
		return false
	}
	return g.act.Vibrate(pattern)
}

// Cancel stops any pattern in progress.
func (g *Gateway) Cancel() {
	if !g.available {
		return
	}
	g.act.Cancel()
}

// CallKind distinguishes recorded calls.
type CallKind string

const (
	CallVibrate CallKind = "vibrate"
	CallCancel  CallKind = "cancel"
)

// Call is one recorded actuator request.
type Call struct {
	Kind    CallKind       `json:"kind"`
	Pattern mapper.Pattern `json:"pattern,omitempty"`
}

// Recorder is an in-memory Actuator used by tests and simulations.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	supported bool
	onCall    func(Call)
}

// NewRecorder creates a recorder that reports supported hardware.
func NewRecorder() *Recorder {
	return &Recorder{supported: true}
}

// NewUnsupportedRecorder creates a recorder that reports no hardware.
func NewUnsupportedRecorder() *Recorder {
	return &Recorder{}
}

// OnCall registers fn to observe each call as it is recorded.
func (r *Recorder) OnCall(fn func(Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCall = fn
}

// Supported implements Detector.
func (r *Recorder) Supported() bool {
	return r.supported
}

// Vibrate implements Actuator.
func (r *Recorder) Vibrate(pattern mapper.Pattern) bool {
	r.record(Call{Kind: CallVibrate, Pattern: append(mapper.Pattern(nil), pattern...)})
	return true
}

// Cancel implements Actuator.
func (r *Recorder) Cancel() {
	r.record(Call{Kind: CallCancel})
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	fn := r.onCall
	r.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls of kind were recorded.
func (r *Recorder) Count(kind CallKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// LogActuator writes each request to a logger. Useful on machines with no
// vibration hardware.
type LogActuator struct {
	Logger *slog.Logger
}

// Vibrate implements Actuator.
func (l LogActuator) Vibrate(pattern mapper.Pattern) bool {
	l.logger().Info("vibrate", "pattern", pattern.String(), "total_ms", pattern.Total())
	return true
}

// Cancel implements Actuator.
func (l LogActuator) Cancel() {
	l.logger().Info("vibrate cancel")
}

func (l LogActuator) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
