// Package store provides a SQLite-backed journal of sync sessions.
//
// The journal is append-only:
//   - Sessions: one row per sync session, opened on start and closed on stop
//   - Pulses: one row per actuation, keyed by (session_id, seq)
//
// # Ordering
//
// Pulses are ordered by their tick seq within a session, never by wall
// time. Sessions are listed by started_at, then id, so listings are stable
// across reads.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads (the trace command) during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000ms: wait for locks instead of failing
//   - foreign_keys=ON: pulses must reference an existing session
//
// The journal records what the engine did. It never stores settings for
// reuse in a later session.
package store
