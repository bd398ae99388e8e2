package actuator

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/roach88/hapsync/internal/mapper"
)

const rumbleSampleRate = beep.SampleRate(48000)

// DefaultRumbleHz is low enough to feel through desk speakers or a
// bass shaker rather than be heard as a tone.
const DefaultRumbleHz = 55

// Rumble renders vibration patterns as a low-frequency tone through the
// audio output. It stands in for a vibration motor on desktops.
//
// Thread-safety: safe for concurrent use.
type Rumble struct {
	mu          sync.Mutex
	freq        float64
	volume      float64
	mixer       *beep.Mixer
	initialized bool
}

// NewRumble creates an uninitialized rumble at freq Hz and volume in (0, 1].
func NewRumble(freq, volume float64) *Rumble {
	if freq <= 0 {
		freq = DefaultRumbleHz
	}
	if volume <= 0 || volume > 1 {
		volume = 0.5
	}
	return &Rumble{freq: freq, volume: volume, mixer: &beep.Mixer{}}
}

// Init opens the speaker. Until Init succeeds, Supported reports false.
func (r *Rumble) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}
	if err := speaker.Init(rumbleSampleRate, rumbleSampleRate.N(50*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(r.mixer)
	r.initialized = true
	return nil
}

// Supported implements Detector.
func (r *Rumble) Supported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// Vibrate implements Actuator. A new pattern replaces the one playing.
func (r *Rumble) Vibrate(pattern mapper.Pattern) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return false
	}

	speaker.Lock()
	r.mixer.Clear()
	r.mixer.Add(r.render(pattern))
	speaker.Unlock()
	return true
}

// Cancel implements Actuator.
func (r *Rumble) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return
	}
	speaker.Lock()
	r.mixer.Clear()
	speaker.Unlock()
}

// Close silences output. The speaker itself stays open for the process.
func (r *Rumble) Close() {
	r.Cancel()
}

// render builds on/off segments: even indexes are tone, odd are silence.
func (r *Rumble) render(pattern mapper.Pattern) beep.Streamer {
	segments := make([]beep.Streamer, 0, len(pattern))
	for i, ms := range pattern {
		n := rumbleSampleRate.N(time.Duration(ms) * time.Millisecond)
		if i%2 == 0 {
			segments = append(segments, beep.Take(n, newTone(r.freq, r.volume)))
		} else {
			segments = append(segments, beep.Silence(n))
		}
	}
	return beep.Seq(segments...)
}

// newTone generates a sine with a 5ms attack so pulses do not click.
func newTone(freq, volume float64) beep.Streamer {
	pos := 0
	attack := float64(rumbleSampleRate.N(5 * time.Millisecond))
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			t := float64(pos) / float64(rumbleSampleRate)
			env := math.Min(float64(pos)/attack, 1.0)
			v := volume * env * math.Sin(2*math.Pi*freq*t)
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return len(samples), true
	})
}
