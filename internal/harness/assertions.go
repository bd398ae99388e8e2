package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] t=%dms pos=%gms %s %v\n", i+1, event.AtMs, event.PositionMs, event.Kind, event.Pattern)
		}
	}

	return buf.String()
}

// assertCount checks that kind appears exactly the specified number of times.
func assertCount(result *Result, kind actuator.CallKind, assertion Assertion) error {
	got := result.Count(kind)
	if got == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: fmt.Sprintf("%d %s calls", assertion.Count, kind),
		Actual:   fmt.Sprintf("%d %s calls", got, kind),
		Trace:    result.Trace,
	}
}

// assertLastPattern checks the pattern of the last vibrate call.
func assertLastPattern(result *Result, assertion Assertion) error {
	last := result.LastPattern()
	if slices.Equal(last, assertion.Pattern) {
		return nil
	}
	actual := "no vibrate calls"
	if last != nil {
		actual = fmt.Sprintf("pattern %v", last)
	}
	return &AssertionError{
		Type:     AssertLastPattern,
		Expected: fmt.Sprintf("pattern %v", assertion.Pattern),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertState checks the engine state after the last step.
func assertState(result *Result, assertion Assertion) error {
	if result.State == assertion.State {
		return nil
	}
	return &AssertionError{
		Type:     AssertState,
		Expected: assertion.State,
		Actual:   result.State,
	}
}

// assertQuiet checks that no vibrate call falls in [FromMs, ToMs].
func assertQuiet(result *Result, assertion Assertion) error {
	for _, e := range result.Trace {
		if e.Kind == actuator.CallVibrate && e.AtMs >= assertion.FromMs && e.AtMs <= assertion.ToMs {
			return &AssertionError{
				Type:     AssertQuiet,
				Expected: fmt.Sprintf("no vibrate calls in [%d, %d]ms", assertion.FromMs, assertion.ToMs),
				Actual:   fmt.Sprintf("vibrate %v at %dms", e.Pattern, e.AtMs),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertSession checks a journaled session.
func assertSession(ctx context.Context, st *store.Store, assertion Assertion) error {
	if st == nil {
		return fmt.Errorf("session assertion requires a store")
	}

	sess, err := st.ReadSession(ctx, assertion.Session)
	if errors.Is(err, store.ErrSessionNotFound) {
		return &AssertionError{
			Type:     AssertSession,
			Expected: fmt.Sprintf("session %s in journal", assertion.Session),
			Actual:   "not found",
		}
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	if sess.EndReason != assertion.EndReason {
		return &AssertionError{
			Type:     AssertSession,
			Expected: fmt.Sprintf("session %s end_reason %q", assertion.Session, assertion.EndReason),
			Actual:   fmt.Sprintf("end_reason %q", sess.EndReason),
		}
	}
	if assertion.Count > 0 && sess.Pulses != assertion.Count {
		return &AssertionError{
			Type:     AssertSession,
			Expected: fmt.Sprintf("session %s with %d pulses", assertion.Session, assertion.Count),
			Actual:   fmt.Sprintf("%d pulses", sess.Pulses),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for session assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertPulses:
			err = assertCount(result, actuator.CallVibrate, assertion)
		case AssertCancels:
			err = assertCount(result, actuator.CallCancel, assertion)
		case AssertLastPattern:
			err = assertLastPattern(result, assertion)
		case AssertState:
			err = assertState(result, assertion)
		case AssertQuiet:
			err = assertQuiet(result, assertion)
		case AssertSession:
			ctx := context.Background()
			var st *store.Store
			if actx != nil {
				st = actx.Store
				if actx.Ctx != nil {
					ctx = actx.Ctx
				}
			}
			err = assertSession(ctx, st, assertion)
		default:
			err = fmt.Errorf("unknown assertion type: %s", assertion.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s) failed: %v", i, assertion.Type, err))
		}
	}

	return errs
}
