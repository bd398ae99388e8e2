package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/hapsync/internal/store"
)

// Journal records sync sessions and the pulses they emit.
//
// *store.Store implements Journal directly. Wrap it in an AsyncJournal
// when ticks must not wait on disk.
type Journal interface {
	BeginSession(ctx context.Context, sess store.Session) error
	RecordPulse(ctx context.Context, p store.Pulse) error
	EndSession(ctx context.Context, id, reason string, endedAt time.Time, ticks int64) error
}

// ErrJournalClosed is returned when writing to a closed AsyncJournal.
var ErrJournalClosed = errors.New("journal closed")

type nopJournal struct{}

func (nopJournal) BeginSession(context.Context, store.Session) error { return nil }
func (nopJournal) RecordPulse(context.Context, store.Pulse) error    { return nil }
func (nopJournal) EndSession(context.Context, string, string, time.Time, int64) error {
	return nil
}

// entryType distinguishes between journal entry kinds.
type entryType int

const (
	entryBegin entryType = iota + 1
	entryPulse
	entryEnd
)

// entry is one pending journal write.
type entry struct {
	typ     entryType
	session store.Session
	pulse   store.Pulse
	id      string
	reason  string
	endedAt time.Time
	ticks   int64
}

// entryQueue is a thread-safe FIFO queue for journal writes.
//
// The queue is unbounded so a slow disk never blocks a tick. It uses a
// channel for signaling to enable context-aware waiting in the Run loop.
type entryQueue struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
	signal  chan struct{} // Signals entry availability (buffered, size 1)
}

func newEntryQueue() *entryQueue {
	return &entryQueue{
		entries: make([]entry, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an entry to the back of the queue.
// Returns false if the queue is closed.
func (q *entryQueue) Enqueue(e entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.entries = append(q.entries, e)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *entryQueue) TryDequeue() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return entry{}, false
	}

	e := q.entries[0]
	q.entries[0] = entry{}

	if len(q.entries) == 1 {
		q.entries = q.entries[:0]
	} else {
		q.entries = q.entries[1:]
	}

	return e, true
}

// Wait returns a channel that signals when entries may be available.
// The channel is closed once the queue is closed.
func (q *entryQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *entryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// drained reports whether the queue is closed and empty.
func (q *entryQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.entries) == 0
}

// Close signals that no more entries will be enqueued.
func (q *entryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// AsyncJournal queues journal writes and applies them on the goroutine
// running Run, in the order they were made.
//
// Write errors are logged and dropped: losing a journal row never stops
// playback.
//
// Thread-safety model:
//   - BeginSession, RecordPulse, EndSession, Close: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type AsyncJournal struct {
	next   Journal
	queue  *entryQueue
	logger *slog.Logger
}

// NewAsyncJournal wraps next. A nil logger uses slog.Default().
func NewAsyncJournal(next Journal, logger *slog.Logger) *AsyncJournal {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncJournal{next: next, queue: newEntryQueue(), logger: logger}
}

// BeginSession implements Journal.
func (j *AsyncJournal) BeginSession(_ context.Context, sess store.Session) error {
	return j.enqueue(entry{typ: entryBegin, session: sess})
}

// RecordPulse implements Journal.
func (j *AsyncJournal) RecordPulse(_ context.Context, p store.Pulse) error {
	return j.enqueue(entry{typ: entryPulse, pulse: p})
}

// EndSession implements Journal.
func (j *AsyncJournal) EndSession(_ context.Context, id, reason string, endedAt time.Time, ticks int64) error {
	return j.enqueue(entry{typ: entryEnd, id: id, reason: reason, endedAt: endedAt, ticks: ticks})
}

func (j *AsyncJournal) enqueue(e entry) error {
	if !j.queue.Enqueue(e) {
		return ErrJournalClosed
	}
	return nil
}

// Pending returns the number of writes not yet applied.
func (j *AsyncJournal) Pending() int {
	return j.queue.Len()
}

// Close stops accepting writes. Run applies what is already queued and
// then returns nil.
func (j *AsyncJournal) Close() {
	j.queue.Close()
}

// Run applies queued writes until Close has been called and the queue is
// empty, or ctx is cancelled.
//
// On cancellation the queue is closed and the remaining entries are still
// written, so an interrupted session keeps its end row.
func (j *AsyncJournal) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return j.shutdown(ctx)
		}
		if e, ok := j.queue.TryDequeue(); ok {
			j.apply(ctx, e)
			continue
		}

		select {
		case <-ctx.Done():
			return j.shutdown(ctx)

		case <-j.queue.Wait():
			if j.queue.drained() {
				return nil
			}
		}
	}
}

func (j *AsyncJournal) shutdown(ctx context.Context) error {
	j.queue.Close()
	j.flush(context.WithoutCancel(ctx))
	return ctx.Err()
}

func (j *AsyncJournal) flush(ctx context.Context) {
	for {
		e, ok := j.queue.TryDequeue()
		if !ok {
			return
		}
		j.apply(ctx, e)
	}
}

func (j *AsyncJournal) apply(ctx context.Context, e entry) {
	var err error
	switch e.typ {
	case entryBegin:
		err = j.next.BeginSession(ctx, e.session)
	case entryPulse:
		err = j.next.RecordPulse(ctx, e.pulse)
	case entryEnd:
		err = j.next.EndSession(ctx, e.id, e.reason, e.endedAt, e.ticks)
	}
	if err != nil {
		logEntryError(j.logger, e, err)
	}
}

// logEntryError logs a failed write with enough context to reconstruct it.
func logEntryError(logger *slog.Logger, e entry, err error) {
	switch e.typ {
	case entryBegin:
		logger.Error("journal write failed",
			"entry", "begin",
			"session", e.session.ID,
			"error", err,
		)
	case entryPulse:
		logger.Error("journal write failed",
			"entry", "pulse",
			"session", e.pulse.SessionID,
			"seq", e.pulse.Seq,
			"position_ms", e.pulse.PositionMs,
			"error", err,
		)
	case entryEnd:
		logger.Error("journal write failed",
			"entry", "end",
			"session", e.id,
			"reason", e.reason,
			"error", err,
		)
	}
}
