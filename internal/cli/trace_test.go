package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hapsync/internal/store"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.BeginSession(ctx, store.Session{ID: "older", Policy: "windowed", PeriodMs: 50, StartedAt: start}))
	require.NoError(t, st.RecordPulse(ctx, store.Pulse{SessionID: "older", Seq: 1, PositionMs: 50, Pattern: []int{50}}))
	require.NoError(t, st.RecordPulse(ctx, store.Pulse{SessionID: "older", Seq: 2, PositionMs: 100, Pattern: []int{120}}))
	require.NoError(t, st.EndSession(ctx, "older", "pause", start.Add(1500*time.Millisecond), 30))

	require.NoError(t, st.BeginSession(ctx, store.Session{ID: "newer", Policy: "nearest", PeriodMs: 50, StartedAt: start.Add(time.Minute)}))
	return dbPath
}

func TestTrace_ListsSessionsNewestFirst(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)

	newer := strings.Index(out, "newer")
	older := strings.Index(out, "older")
	require.NotEqual(t, -1, newer)
	require.NotEqual(t, -1, older)
	assert.Less(t, newer, older)
	assert.Contains(t, out, "pause (1.5s)")
	assert.Contains(t, out, "open")
}

func TestTrace_ShowsSessionPulses(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := execute(t, "--format", "json", "trace", "--db", dbPath, "--session", "older")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   SessionTrace `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "pause", resp.Data.Session.EndReason)
	assert.Equal(t, int64(30), resp.Data.Session.Ticks)
	require.Len(t, resp.Data.Pulses, 2)
	assert.Equal(t, []int{120}, resp.Data.Pulses[1].Pattern)

	out, err = execute(t, "trace", "--db", dbPath, "--session", "older")
	require.NoError(t, err)
	assert.Contains(t, out, "[2] pos=100ms [120]")
}

func TestTrace_Limit(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := execute(t, "--format", "json", "trace", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Data []store.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "newer", resp.Data[0].ID)
}

func TestTrace_Errors(t *testing.T) {
	dbPath := seedJournal(t)

	_, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	_, err = execute(t, "trace", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	out, err := execute(t, "trace", "--db", dbPath, "--session", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E_SESSION_NOT_FOUND")
}

func TestTrace_EmptyJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded.")
}
