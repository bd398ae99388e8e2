package engine

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hapsync/internal/store"
	"github.com/roach88/hapsync/internal/testutil"
)

func openJournalStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAsyncJournal_AppliesInOrderAndDrainsOnClose(t *testing.T) {
	db := openJournalStore(t)
	j := NewAsyncJournal(db, discardLogger())

	ctx := context.Background()
	require.NoError(t, j.BeginSession(ctx, store.Session{ID: "s-1", Policy: "windowed", StartedAt: testutil.Epoch}))
	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, j.RecordPulse(ctx, store.Pulse{SessionID: "s-1", Seq: seq, PositionMs: float64(seq * 50), Pattern: []int{50}}))
	}
	require.NoError(t, j.EndSession(ctx, "s-1", ReasonStop, testutil.Epoch.Add(time.Second), 3))
	assert.Equal(t, 5, j.Pending())

	j.Close()
	require.NoError(t, j.Run(ctx))
	assert.Equal(t, 0, j.Pending())

	sess, err := db.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 3, sess.Pulses)
	assert.Equal(t, ReasonStop, sess.EndReason)

	err = j.RecordPulse(ctx, store.Pulse{SessionID: "s-1", Seq: 4})
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestAsyncJournal_RunsConcurrentlyWithEngine(t *testing.T) {
	db := openJournalStore(t)
	j := NewAsyncJournal(db, discardLogger())

	done := make(chan error, 1)
	go func() { done <- j.Run(context.Background()) }()

	f := newFixture(t, WithJournal(j))
	f.eng.LoadScript(oscillating(t, 5000))
	f.player.Play()
	f.clock.Advance(200 * time.Millisecond)
	f.player.Pause()

	j.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("journal did not drain")
	}

	sess, err := db.ReadSession(context.Background(), "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, 4, sess.Pulses)
	assert.Equal(t, int64(4), sess.Ticks)
}

func TestAsyncJournal_CancelFlushesRemaining(t *testing.T) {
	db := openJournalStore(t)
	j := NewAsyncJournal(db, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, j.BeginSession(ctx, store.Session{ID: "s-1", StartedAt: testutil.Epoch}))
	require.NoError(t, j.EndSession(ctx, "s-1", ReasonClosed, testutil.Epoch, 0))

	err := j.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	sess, err := db.ReadSession(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, ReasonClosed, sess.EndReason)
}

func TestAsyncJournal_LogsFailedWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	j := NewAsyncJournal(&failingJournal{}, logger)

	ctx := context.Background()
	require.NoError(t, j.RecordPulse(ctx, store.Pulse{SessionID: "s-9", Seq: 7}))
	j.Close()
	require.NoError(t, j.Run(ctx))

	assert.Contains(t, buf.String(), "journal write failed")
	assert.Contains(t, buf.String(), "session=s-9")
	assert.Contains(t, buf.String(), "seq=7")
}
