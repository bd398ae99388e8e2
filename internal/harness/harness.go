package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/engine"
	"github.com/roach88/hapsync/internal/mapper"
	"github.com/roach88/hapsync/internal/playback"
	"github.com/roach88/hapsync/internal/script"
	"github.com/roach88/hapsync/internal/settings"
	"github.com/roach88/hapsync/internal/store"
	"github.com/roach88/hapsync/internal/testutil"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	engine   *engine.Engine
	clock    *testutil.VirtualClock
	player   *playback.Player
	duration time.Duration
	settings *settings.Store
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	store  *store.Store
	ids    engine.SessionIDGenerator
	logger *slog.Logger
}

// WithStore journals the run to st instead of a throwaway in-memory
// database. The caller keeps ownership of st.
func WithStore(st *store.Store) Option {
	return func(c *runConfig) {
		c.store = st
	}
}

// WithSessionIDs replaces the "<name>-N" session IDs. Use unique IDs when
// several runs share one store.
func WithSessionIDs(g engine.SessionIDGenerator) Option {
	return func(c *runConfig) {
		c.ids = g
	}
}

// WithLogger receives engine logs. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Open the journal (fresh in-memory database unless WithStore)
// 2. Decode settings overrides and load the script
// 3. Wire engine, virtual player, virtual clock and recording actuator
// 4. Execute steps in order, recording every actuator call
// 5. Evaluate assertions against the trace and the journal
//
// A step that cannot be carried out (bad script, rejected parameter)
// aborts the run with an error; failed assertions only mark the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		ids:    testutil.NewSequentialSessionGenerator(scenario.Name),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.store
	if st == nil {
		mem, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer mem.Close()
		st = mem
	}

	params, err := scenarioParams(scenario)
	if err != nil {
		return nil, err
	}
	settingsStore, err := settings.NewStore(params)
	if err != nil {
		return nil, err
	}

	policy, err := mapper.ByName(scenario.Policy)
	if err != nil {
		return nil, err
	}

	sc, err := scenarioScript(scenario)
	if err != nil {
		return nil, err
	}

	duration := scenario.DurationMs
	if duration == 0 {
		duration = DefaultDurationMs
	}

	clock := testutil.NewVirtualClock()
	mediaLen := time.Duration(duration) * time.Millisecond
	player := playback.NewPlayer(mediaLen, playback.WithNow(clock.Now))

	rec := actuator.NewRecorder()
	if scenario.Unsupported {
		rec = actuator.NewUnsupportedRecorder()
	}

	result := NewResult()
	rec.OnCall(func(c actuator.Call) {
		result.AddCall(clock.Elapsed(), player.Position(), c)
	})

	engOpts := []engine.Option{
		engine.WithScheduler(clock),
		engine.WithSessionIDs(&recordingIDs{next: cfg.ids, result: result}),
		engine.WithJournal(st),
		engine.WithLogger(cfg.logger),
		engine.WithNow(clock.Now),
		engine.WithPolicy(policy),
	}
	if scenario.PeriodMs > 0 {
		engOpts = append(engOpts, engine.WithPeriod(time.Duration(scenario.PeriodMs)*time.Millisecond))
	}
	eng := engine.New(player, rec, settingsStore, engOpts...)
	player.Subscribe(eng)
	if sc != nil {
		eng.LoadScript(sc)
	}

	h := &Harness{
		engine:   eng,
		clock:    clock,
		player:   player,
		duration: mediaLen,
		settings: settingsStore,
		logger:   cfg.logger,
	}

	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step, err)
		}
	}
	result.State = eng.State().String()

	actx := &AssertionContext{
		Store: st,
		Ctx:   context.Background(),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// execute carries out one step.
func (h *Harness) execute(step Step) error {
	switch step.Op {
	case OpPlay:
		h.player.Play()
	case OpPause:
		h.player.Pause()
	case OpEnd:
		h.player.Seek(h.duration)
		h.player.Poll()
	case OpStop:
		h.engine.Stop()
	case OpClearScript:
		h.engine.ClearScript()
	case OpTestPulse:
		if err := h.engine.TestPulse(); err != nil {
			h.logger.Debug("test pulse refused", "error", err)
		}
	case OpSeek:
		h.player.Seek(time.Duration(step.Ms) * time.Millisecond)
	case OpAdvance:
		h.clock.Advance(time.Duration(step.Ms) * time.Millisecond)
		h.player.Poll()
	case OpFullscreen:
		h.player.SetFullscreen(step.Flag)
	case OpEnable:
		return h.settings.SetEnabled(step.Flag)
	case OpAllowFullscreen:
		return h.settings.SetAllowDuringFullscreen(step.Flag)
	case OpIntensity:
		return h.settings.SetIntensity(step.Value)
	case OpPolicy:
		p, err := mapper.ByName(step.Name)
		if err != nil {
			return err
		}
		h.engine.SetPolicy(p)
	case OpLoadScript:
		s, err := script.Load(step.Actions)
		if err != nil {
			return err
		}
		h.engine.LoadScript(s)
	default:
		return fmt.Errorf("unknown step %q", step.Op)
	}
	return nil
}

// scenarioParams applies the scenario's overrides through the settings
// file decoder so they get the same defaults and bounds.
func scenarioParams(s *Scenario) (settings.Params, error) {
	if len(s.Settings) == 0 {
		return settings.Defaults(), nil
	}
	data, err := yaml.Marshal(s.Settings)
	if err != nil {
		return settings.Params{}, fmt.Errorf("encode settings: %w", err)
	}
	p, err := settings.Decode(data)
	if err != nil {
		return settings.Params{}, fmt.Errorf("settings: %w", err)
	}
	return p, nil
}

// scenarioScript returns the scenario's script, or nil when it has none.
func scenarioScript(s *Scenario) (*script.Script, error) {
	switch {
	case s.ScriptFile != "":
		return script.ParseFile(s.ScriptFile)
	case len(s.Script) > 0:
		return script.Load(s.Script)
	default:
		return nil, nil
	}
}

// recordingIDs notes every session ID handed to the engine.
type recordingIDs struct {
	next   engine.SessionIDGenerator
	result *Result
}

func (g *recordingIDs) Generate() string {
	id := g.next.Generate()
	g.result.Sessions = append(g.result.Sessions, id)
	return id
}
