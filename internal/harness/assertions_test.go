package harness

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/mapper"
	"github.com/roach88/hapsync/internal/store"
	"github.com/roach88/hapsync/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sampleResult() *Result {
	r := NewResult()
	r.AddCall(50*time.Millisecond, 50*time.Millisecond, actuator.Call{Kind: actuator.CallVibrate, Pattern: mapper.Pattern{50}})
	r.AddCall(100*time.Millisecond, 100*time.Millisecond, actuator.Call{Kind: actuator.CallVibrate, Pattern: mapper.Pattern{70}})
	r.AddCall(100*time.Millisecond, 100*time.Millisecond, actuator.Call{Kind: actuator.CallCancel})
	r.State = "idle"
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertPulses, Count: 2},
		{Type: AssertCancels, Count: 1},
		{Type: AssertLastPattern, Pattern: []int{70}},
		{Type: AssertState, State: "idle"},
		{Type: AssertQuiet, FromMs: 101, ToMs: 500},
	}, nil)

	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Fail(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		contains  string
	}{
		{"pulses", Assertion{Type: AssertPulses, Count: 3}, "Expected: 3 vibrate calls"},
		{"cancels", Assertion{Type: AssertCancels, Count: 0}, "Actual: 1 cancel calls"},
		{"last_pattern", Assertion{Type: AssertLastPattern, Pattern: []int{50}}, "Actual: pattern [70]"},
		{"state", Assertion{Type: AssertState, State: "running"}, "Expected: running"},
		{"quiet", Assertion{Type: AssertQuiet, FromMs: 0, ToMs: 60}, "vibrate [50] at 50ms"},
		{"unknown", Assertion{Type: "vibes"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion}, nil)
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.contains)
		})
	}
}

func TestAssertLastPattern_NoPulses(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertLastPattern, Pattern: []int{50}}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no vibrate calls")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertPulses,
		Expected: "3 vibrate calls",
		Actual:   "2 vibrate calls",
		Trace:    sampleResult().Trace,
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: pulses")
	assert.Contains(t, msg, "[1] t=50ms pos=50ms vibrate [50]")
	assert.Contains(t, msg, "[3] t=100ms pos=100ms cancel []")
}

func TestAssertSession(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.BeginSession(ctx, store.Session{ID: "s-1", Policy: "windowed", StartedAt: testutil.Epoch}))
	require.NoError(t, st.RecordPulse(ctx, store.Pulse{SessionID: "s-1", Seq: 1, Pattern: []int{50}}))
	require.NoError(t, st.EndSession(ctx, "s-1", "pause", testutil.Epoch.Add(time.Second), 4))

	actx := &AssertionContext{Store: st, Ctx: ctx}

	assert.Empty(t, EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertSession, Session: "s-1", EndReason: "pause", Count: 1},
	}, actx))

	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertSession, Session: "s-1", EndReason: "stop"},
		{Type: AssertSession, Session: "s-1", EndReason: "pause", Count: 9},
		{Type: AssertSession, Session: "s-404", EndReason: "pause"},
	}, actx)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], `end_reason "pause"`)
	assert.Contains(t, errs[1], "1 pulses")
	assert.Contains(t, errs[2], "not found")

	errs = EvaluateAssertions(NewResult(), []Assertion{{Type: AssertSession, Session: "s-1"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires a store")
}

func TestMarshalTrace(t *testing.T) {
	data, err := MarshalTrace(sampleResult().Trace)
	require.NoError(t, err)

	want := `{"at_ms":50,"position_ms":50,"kind":"vibrate","pattern":[50]}
{"at_ms":100,"position_ms":100,"kind":"vibrate","pattern":[70]}
{"at_ms":100,"position_ms":100,"kind":"cancel"}
`
	assert.Equal(t, want, string(data))
}
