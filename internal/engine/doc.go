// Package engine implements the hapsync sync loop.
//
// The engine follows a playback source and, while the media plays, turns
// the action script around the current position into vibration patterns.
//
// ARCHITECTURE:
//
// Serialized Session Model:
// Every state change and every tick runs under one engine mutex. This
// reproduces a single event timeline:
// - A tick reads the playback state exactly once and uses that snapshot
// for the whole decision
// - A stop that returns has already invalidated the session generation, so
// a timer firing late finds a stale generation and does nothing
// - Restarting a running session cancels the old timer first, so two
// timers never run at once
//
// Tick Flow:
// 1. Scheduler fires (TickerScheduler in production, a virtual clock in tests)
// 2. Generation guard discards ticks from ended sessions
// 3. PlaybackSource.Snapshot() is read once
// 4. Not playing, or fullscreen without permission: skip
// 5. mapper.Policy decides a pattern from the script and settings
// 6. actuator.Gateway forwards it (fire-and-forget)
// 7. Journal records the pulse
//
// The script is swapped through an atomic pointer, so a load never leaves
// a tick reading a half-built script. Settings are read through the
// settings store on every tick; disabling vibration there stops the
// session synchronously.
//
// Failures never reach the tick path. A missing actuator turns actuation
// into a no-op; a journal error is logged and playback continues.
package engine
