// Package playback models the media clock the sync loop follows.
//
// The engine only ever reads a State snapshot through Source. Player is a
// virtual media clock for hosts without a real video element: it derives
// its position from an injectable time source and notifies listeners of
// play, pause and end transitions.
package playback

import (
	"sync"
	"time"
)

// State is one read of the playback collaborator.
type State struct {
	PositionMs float64 `json:"position_ms"`
	Playing    bool    `json:"playing"`
	Fullscreen bool    `json:"fullscreen"`
}

// Source is polled by the sync loop once per tick.
type Source interface {
	Snapshot() State
}

// SourceFunc adapts a function to Source.
type SourceFunc func() State

// Snapshot implements Source.
func (f SourceFunc) Snapshot() State { return f() }

// FromSeconds converts a media position in seconds (the unit video
// elements report) to milliseconds.
func FromSeconds(sec float64) float64 {
	return sec * 1000
}

// Listener receives playback transitions.
type Listener interface {
	OnPlay()
	OnPause()
	OnEnded()
}

// Player is a virtual media clock.
//
// Thread-safety: all methods are safe for concurrent use. Listeners are
// notified after the player lock is released, on the caller's goroutine.
type Player struct {
	mu         sync.Mutex
	now        func() time.Time
	duration   time.Duration // 0 means unbounded
	offset     time.Duration // position at anchor
	anchor     time.Time
	playing    bool
	ended      bool
	fullscreen bool
	listeners  []Listener
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithNow sets the time source. Default: time.Now.
func WithNow(now func() time.Time) PlayerOption {
	return func(p *Player) {
		p.now = now
	}
}

// NewPlayer creates a paused player at position 0. A zero duration never
// ends on its own.
func NewPlayer(duration time.Duration, opts ...PlayerOption) *Player {
	p := &Player{now: time.Now, duration: duration}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe adds a listener.
func (p *Player) Subscribe(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Play starts or resumes playback. Playing an ended player restarts it
// from zero. Listeners see OnPlay only on a paused-to-playing transition.
func (p *Player) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	if p.ended {
		p.offset = 0
		p.ended = false
	}
	p.anchor = p.now()
	p.playing = true
	ls := p.snapshotListeners()
	p.mu.Unlock()

	for _, l := range ls {
		l.OnPlay()
	}
}

// Pause freezes the position.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.offset = p.positionLocked()
	p.playing = false
	ls := p.snapshotListeners()
	p.mu.Unlock()

	for _, l := range ls {
		l.OnPause()
	}
}

// Stop pauses and rewinds to zero.
func (p *Player) Stop() {
	p.Pause()
	p.Seek(0)
}

// Seek moves the position, clamped to [0, duration].
func (p *Player) Seek(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	p.offset = pos
	p.anchor = p.now()
	p.ended = false
}

// SetFullscreen toggles the fullscreen flag reported in snapshots.
func (p *Player) SetFullscreen(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullscreen = v
}

// Position returns the current media position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Playing reports whether the player is playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Ended reports whether playback reached the end.
func (p *Player) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// Snapshot implements Source. A player past its duration reports itself
// as not playing even before Poll delivers OnEnded.
func (p *Player) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positionLocked()
	playing := p.playing
	if p.duration > 0 && pos >= p.duration {
		playing = false
	}
	return State{
		PositionMs: float64(pos) / float64(time.Millisecond),
		Playing:    playing,
		Fullscreen: p.fullscreen,
	}
}

// Poll detects the end of media and delivers OnEnded once. Hosts call it
// from their event loop. Returns true if playback ended on this call.
func (p *Player) Poll() bool {
	p.mu.Lock()
	if !p.playing || p.duration <= 0 || p.positionLocked() < p.duration {
		p.mu.Unlock()
		return false
	}
	p.offset = p.duration
	p.playing = false
	p.ended = true
	ls := p.snapshotListeners()
	p.mu.Unlock()

	for _, l := range ls {
		l.OnEnded()
	}
	return true
}

func (p *Player) positionLocked() time.Duration {
	pos := p.offset
	if p.playing {
		pos += p.now().Sub(p.anchor)
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}

func (p *Player) snapshotListeners() []Listener {
	return append([]Listener(nil), p.listeners...)
}
