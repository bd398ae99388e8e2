package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/engine"
	"github.com/roach88/hapsync/internal/script"
	"github.com/roach88/hapsync/internal/store"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := ScenarioFiles(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "basic_play.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func inlineScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "built in code",
		Script: []script.Action{
			{At: 0, Pos: 0},
			{At: 100, Pos: 80},
			{At: 200, Pos: 0},
		},
		Steps:      steps,
		Assertions: []Assertion{{Type: AssertState, State: "idle"}},
	}
}

func TestRun_RedundantPlayStartsNewSessionWithoutDoubleTicks(t *testing.T) {
	s := inlineScenario(
		Step{Op: OpPlay},
		Step{Op: OpAdvance, Ms: 50},
		Step{Op: OpPause},
		Step{Op: OpPlay},
		Step{Op: OpAdvance, Ms: 100},
		Step{Op: OpStop},
	)

	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"inline-1", "inline-2"}, result.Sessions)
	assert.Equal(t, 3, result.Count(actuator.CallVibrate))
	assert.Equal(t, 2, result.Count(actuator.CallCancel))
}

func TestRun_SeekMovesPosition(t *testing.T) {
	s := inlineScenario(
		Step{Op: OpSeek, Ms: 5000},
		Step{Op: OpPlay},
		Step{Op: OpAdvance, Ms: 100},
		Step{Op: OpSeek, Ms: 0},
		Step{Op: OpAdvance, Ms: 50},
		Step{Op: OpPause},
	)

	result, err := Run(s)
	require.NoError(t, err)

	require.Equal(t, 1, result.Count(actuator.CallVibrate), "nothing scripted around 5s")
	assert.Equal(t, int64(150), result.Trace[0].AtMs)
	assert.Equal(t, 50.0, result.Trace[0].PositionMs)
}

func TestRun_LoadAndClearScript(t *testing.T) {
	s := inlineScenario(
		Step{Op: OpClearScript},
		Step{Op: OpPlay},
		Step{Op: OpPause},
		Step{Op: OpLoadScript, Actions: []script.Action{{At: 0, Pos: 0}, {At: 100, Pos: 100}}},
		Step{Op: OpPlay},
		Step{Op: OpAdvance, Ms: 50},
		Step{Op: OpClearScript},
	)

	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"inline-1"}, result.Sessions, "play without a script starts nothing")
	assert.Equal(t, []int{50}, result.LastPattern())
}

func TestRun_StepErrorsAbort(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{"bad script", Step{Op: OpLoadScript, Actions: []script.Action{{At: -1, Pos: 0}}}, "load_script"},
		{"bad intensity", Step{Op: OpIntensity, Value: 0}, "intensity"},
		{"bad policy", Step{Op: OpPolicy, Name: "loudest"}, "policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(inlineScenario(tt.step))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), "step 0 ("+tt.want), err.Error())
		})
	}
}

func TestRun_RejectsBadSettings(t *testing.T) {
	s := inlineScenario(Step{Op: OpPlay})
	s.Settings = map[string]any{"min_duration": 500, "max_duration": 100}

	_, err := Run(s)
	assert.Error(t, err)
}

func TestRun_FailedAssertionMarksResult(t *testing.T) {
	s := inlineScenario(Step{Op: OpPlay}, Step{Op: OpAdvance, Ms: 100})
	s.Assertions = []Assertion{
		{Type: AssertPulses, Count: 7},
		{Type: AssertState, State: "idle"},
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "7 vibrate calls")
	assert.Equal(t, "running", result.State)
}

func TestRun_WithStoreKeepsJournal(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := inlineScenario(Step{Op: OpPlay}, Step{Op: OpAdvance, Ms: 100}, Step{Op: OpStop})
	result, err := Run(s, WithStore(db), WithSessionIDs(engine.NewFixedGenerator("kept-1")))
	require.NoError(t, err)
	require.Equal(t, []string{"kept-1"}, result.Sessions)

	sess, err := db.ReadSession(context.Background(), "kept-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonStop, sess.EndReason)
	assert.Equal(t, 2, sess.Pulses)
}

func TestRunSuite(t *testing.T) {
	result, err := RunSuite(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	assert.Equal(t, result.Total, result.Passed, "failures: %v", result.Failures())
	assert.Zero(t, result.Failed)
}

func TestRunSuite_CollectsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_broken.yaml"), "name: [")
	writeFile(t, filepath.Join(dir, "b_failing.yaml"), `
name: failing
description: expects pulses that never come
steps: [play]
assertions: [{type: pulses, count: 3}]
`)
	writeFile(t, filepath.Join(dir, "c_passing.yaml"), minimalScenario)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	result, err := RunSuite(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	failures := result.Failures()
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0].Errors[0], "failed to load scenario")
	assert.Empty(t, failures[0].Name)
	assert.Equal(t, "failing", failures[1].Name)
	assert.NotEmpty(t, failures[1].Errors)

	require.Len(t, result.Scenarios, 3)
	passing := result.Scenarios[2]
	assert.True(t, passing.Pass)
	assert.Equal(t, filepath.Join(dir, "c_passing.yaml"), passing.Path)
	assert.Equal(t, "minimal", passing.Name)
}

func TestRunFiles_SingleScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "only.yaml")
	writeFile(t, path, minimalScenario)

	result := RunFiles([]string{path})
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
	require.Len(t, result.Scenarios, 1)
	assert.Empty(t, result.Failures())
}
