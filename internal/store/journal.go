package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session is one sync session: from start to stop of the sync loop.
type Session struct {
	ID            string    `json:"id"`
	Policy        string    `json:"policy"`
	ScriptActions int       `json:"script_actions"`
	PeriodMs      int64     `json:"period_ms"`
	Settings      string    `json:"settings"` // JSON snapshot of the parameters at start
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitzero"`
	EndReason     string    `json:"end_reason,omitempty"`
	Ticks         int64     `json:"ticks"`
	Pulses        int       `json:"pulses"`
}

// Open reports whether the session has not been ended.
func (s Session) Open() bool {
	return s.EndedAt.IsZero()
}

// Pulse is one actuation emitted during a session.
type Pulse struct {
	SessionID  string  `json:"session_id"`
	Seq        int64   `json:"seq"`
	PositionMs float64 `json:"position_ms"`
	Pattern    []int   `json:"pattern"`
}

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// BeginSession inserts a new open session.
func (s *Store) BeginSession(ctx context.Context, sess Session) error {
	settings := sess.Settings
	if settings == "" {
		settings = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, policy, script_actions, period_ms, settings, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.Policy,
		sess.ScriptActions,
		sess.PeriodMs,
		settings,
		sess.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("begin session %s: %w", sess.ID, err)
	}
	return nil
}

// RecordPulse appends a pulse. Duplicate (session_id, seq) writes are ignored.
func (s *Store) RecordPulse(ctx context.Context, p Pulse) error {
	pattern, err := json.Marshal(p.Pattern)
	if err != nil {
		return fmt.Errorf("record pulse: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pulses (session_id, seq, position_ms, pattern)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, p.SessionID, p.Seq, p.PositionMs, string(pattern))
	if err != nil {
		return fmt.Errorf("record pulse %s/%d: %w", p.SessionID, p.Seq, err)
	}
	return nil
}

// EndSession closes an open session. Ending an already-closed session is
// a no-op; ending an unknown one returns ErrSessionNotFound.
func (s *Store) EndSession(ctx context.Context, id, reason string, endedAt time.Time, ticks int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ?, ticks = ?
		WHERE id = ? AND ended_at IS NULL
	`, endedAt.UnixMilli(), reason, ticks, id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n == 0 {
		if _, err := s.ReadSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

const sessionColumns = `
	s.id, s.policy, s.script_actions, s.period_ms, s.settings,
	s.started_at, s.ended_at, s.end_reason, s.ticks,
	(SELECT COUNT(*) FROM pulses p WHERE p.session_id = s.id)
`

// ReadSession returns one session with its pulse count.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns the most recent sessions first, at most limit
// (0 means no limit).
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.started_at DESC, s.id COLLATE BINARY ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadPulses returns a session's pulses ordered by seq.
// Returns an empty slice (not nil) when the session has none.
func (s *Store) ReadPulses(ctx context.Context, sessionID string) ([]Pulse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, position_ms, pattern
		FROM pulses
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query pulses: %w", err)
	}
	defer rows.Close()

	pulses := []Pulse{}
	for rows.Next() {
		var p Pulse
		var pattern string
		if err := rows.Scan(&p.SessionID, &p.Seq, &p.PositionMs, &pattern); err != nil {
			return nil, fmt.Errorf("scan pulse: %w", err)
		}
		if err := json.Unmarshal([]byte(pattern), &p.Pattern); err != nil {
			return nil, fmt.Errorf("decode pulse pattern %s/%d: %w", p.SessionID, p.Seq, err)
		}
		pulses = append(pulses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pulses: %w", err)
	}
	return pulses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess      Session
		startedAt int64
		endedAt   sql.NullInt64
		reason    sql.NullString
	)
	err := row.Scan(
		&sess.ID, &sess.Policy, &sess.ScriptActions, &sess.PeriodMs, &sess.Settings,
		&startedAt, &endedAt, &reason, &sess.Ticks, &sess.Pulses,
	)
	if err != nil {
		return Session{}, err
	}

	sess.StartedAt = time.UnixMilli(startedAt).UTC()
	if endedAt.Valid {
		sess.EndedAt = time.UnixMilli(endedAt.Int64).UTC()
	}
	sess.EndReason = reason.String
	return sess, nil
}
