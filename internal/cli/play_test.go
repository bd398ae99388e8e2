package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hapsync/internal/engine"
	"github.com/roach88/hapsync/internal/store"
)

func runPlayCommand(t *testing.T, ctx context.Context, opts *PlayOptions, args ...string) (*bytes.Buffer, *bytes.Buffer, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newPlayCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	if ctx != nil {
		cmd.SetContext(ctx)
	}
	return out, errOut, cmd.Execute()
}

func decodePlaySummary(t *testing.T, out *bytes.Buffer) PlaySummary {
	t.Helper()
	var resp struct {
		Status string      `json:"status"`
		Data   PlaySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestPlay_RunsToEndAndJournals(t *testing.T) {
	path := writeTemp(t, "moving.funscript", movingScript)
	dbPath := filepath.Join(t.TempDir(), "play.db")

	opts := &PlayOptions{RootOptions: &RootOptions{Format: "json"}}
	out, _, err := runPlayCommand(t, nil, opts, path,
		"--duration", "200ms", "--period", "25ms", "--db", dbPath)
	require.NoError(t, err)

	summary := decodePlaySummary(t, out)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, 200.0, summary.PositionMs)
	require.Len(t, summary.Sessions, 1)
	assert.Positive(t, summary.Pulses)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.ReadSession(context.Background(), summary.Sessions[0])
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonEnded, sess.EndReason)
	assert.Equal(t, "windowed", sess.Policy)
	assert.Equal(t, int64(25), sess.PeriodMs)
	assert.Equal(t, summary.Pulses, sess.Pulses)
}

func TestPlay_ContextCancelPauses(t *testing.T) {
	path := writeTemp(t, "moving.funscript", movingScript)
	dbPath := filepath.Join(t.TempDir(), "play.db")

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	opts := &PlayOptions{
		RootOptions: &RootOptions{Format: "json"},
		SessionIDs:  engine.NewFixedGenerator("cancelled-1"),
	}
	out, _, err := runPlayCommand(t, ctx, opts, path, "--duration", "10s", "--db", dbPath)
	require.NoError(t, err)

	summary := decodePlaySummary(t, out)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, []string{"cancelled-1"}, summary.Sessions)
	assert.Less(t, summary.PositionMs, 10000.0)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.ReadSession(context.Background(), "cancelled-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonPause, sess.EndReason)
}

func TestPlay_LogActuatorWritesPulses(t *testing.T) {
	path := writeTemp(t, "moving.funscript", movingScript)

	opts := &PlayOptions{RootOptions: &RootOptions{Format: "text"}}
	out, errOut, err := runPlayCommand(t, nil, opts, path, "--duration", "120ms", "--period", "20ms")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Played ")
	assert.Contains(t, errOut.String(), "msg=vibrate")
	assert.Contains(t, errOut.String(), "sync started")
}

func TestPlay_DisabledStartsNothing(t *testing.T) {
	path := writeTemp(t, "moving.funscript", movingScript)

	opts := &PlayOptions{RootOptions: &RootOptions{Format: "json"}}
	out, errOut, err := runPlayCommand(t, nil, opts, path, "--duration", "60ms", "--disabled")
	require.NoError(t, err)

	summary := decodePlaySummary(t, out)
	assert.Empty(t, summary.Sessions)
	assert.Zero(t, summary.Pulses)
	assert.Contains(t, errOut.String(), "sync not started")
}

func TestPlay_NoActuatorStillSyncs(t *testing.T) {
	path := writeTemp(t, "moving.funscript", movingScript)

	opts := &PlayOptions{RootOptions: &RootOptions{Format: "json"}}
	out, errOut, err := runPlayCommand(t, nil, opts, path, "--duration", "100ms", "--period", "20ms", "--actuator", "none")
	require.NoError(t, err)

	summary := decodePlaySummary(t, out)
	assert.Len(t, summary.Sessions, 1)
	assert.Contains(t, errOut.String(), "actuation disabled")
}

func TestPlay_Errors(t *testing.T) {
	good := writeTemp(t, "moving.funscript", movingScript)
	bad := writeTemp(t, "bad.funscript", `{"actions": [{"at": -5, "pos": 0}]}`)
	badSettings := writeTemp(t, "settings.yaml", "intensity: 0\n")

	tests := []struct {
		name     string
		args     []string
		contains string
		code     int
	}{
		{"missing script", []string{filepath.Join(t.TempDir(), "absent.funscript")}, "script not found", ExitCommandError},
		{"bad script", []string{bad}, "failed to parse script", ExitCommandError},
		{"bad settings file", []string{good, "--settings", badSettings}, "invalid settings", ExitCommandError},
		{"inverted durations", []string{good, "--min-duration", "500", "--max-duration", "100"}, "max_duration", ExitCommandError},
		{"bad policy", []string{good, "--policy", "loudest"}, "invalid policy", ExitCommandError},
		{"bad actuator", []string{good, "--actuator", "laser"}, "unknown actuator", ExitCommandError},
		{"bad period", []string{good, "--period", "0s"}, "period must be positive", ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &PlayOptions{RootOptions: &RootOptions{Format: "text"}}
			_, _, err := runPlayCommand(t, nil, opts, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}
