// Package harness runs scripted playback scenarios against the sync engine.
//
// A scenario drives a real engine.Engine with a virtual clock, a virtual
// player and a recording actuator, then checks what reached the actuator.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: basic_play
//	description: "What this scenario validates"
//	policy: windowed            # or nearest; default windowed
//	period_ms: 50               # tick period; default 50
//	duration_ms: 60000          # media length; default 60000
//	settings:                   # overrides, validated like a settings file
//	  intensity: 1.5
//	script:                     # inline actions, or script_file: path
//	  - {at: 0, pos: 0}
//	  - {at: 100, pos: 80}
//	steps:
//	  - play
//	  - advance: 200
//	  - fullscreen: true
//	  - pause
//	assertions:
//	  - type: pulses
//	    count: 4
//	  - type: last_pattern
//	    pattern: [50]
//
// # Steps
//
// Bare steps: play, pause, end, stop, clear_script, test_pulse.
// Keyed steps: seek (ms), advance (ms), fullscreen (bool), enable (bool),
// allow_fullscreen (bool), intensity (number), policy (name) and
// load_script (action list).
//
// advance moves the virtual clock, fires every tick that comes due and
// then polls the player so the end of media is noticed.
//
// # Assertion Types
//
//   - pulses: exactly count vibrate calls
//   - cancels: exactly count cancel calls
//   - last_pattern: the last vibrate call carried pattern
//   - state: the engine ends in state (idle or running)
//   - quiet: no vibrate call with from_ms <= at_ms <= to_ms
//   - session: the journaled session has end_reason and, if set, pulses
//
// # Deterministic Testing
//
// Every run uses a fresh virtual clock starting at testutil.Epoch, session
// IDs "<name>-1", "<name>-2", ... and an in-memory journal. The same
// scenario therefore always yields a byte-identical trace, which golden
// files compare against.
package harness
