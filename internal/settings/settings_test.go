package settings

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	p := Defaults()
	assert.Equal(t, 1.0, p.Intensity)
	assert.Equal(t, 1.0, p.Sensitivity)
	assert.Equal(t, 50, p.MinDuration)
	assert.Equal(t, 1000, p.MaxDuration)
	assert.True(t, p.Enabled)
	assert.True(t, p.AllowDuringFullscreen)
	assert.NoError(t, p.Validate())
}

func TestStore_SettersRejectInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		set   func(*Store) error
		field string
	}{
		{"zero intensity", func(s *Store) error { return s.SetIntensity(0) }, "intensity"},
		{"negative intensity", func(s *Store) error { return s.SetIntensity(-1) }, "intensity"},
		{"nan sensitivity", func(s *Store) error { return s.SetSensitivity(math.NaN()) }, "sensitivity"},
		{"inf sensitivity", func(s *Store) error { return s.SetSensitivity(math.Inf(1)) }, "sensitivity"},
		{"zero min", func(s *Store) error { return s.SetMinDuration(0) }, "min_duration"},
		{"min above max", func(s *Store) error { return s.SetMinDuration(2000) }, "max_duration"},
		{"max below min", func(s *Store) error { return s.SetMaxDuration(49) }, "max_duration"},
		{"inverted pair", func(s *Store) error { return s.SetDurations(100, 10) }, "max_duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDefaultStore()
			err := tt.set(s)
			require.Error(t, err)
			assert.True(t, IsParamError(err))

			var pe *ParamError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
			assert.Equal(t, Defaults(), s.Params(), "rejected change must not alter state")
		})
	}
}

func TestStore_SettersApplyValidValues(t *testing.T) {
	s := NewDefaultStore()
	require.NoError(t, s.SetIntensity(2.5))
	require.NoError(t, s.SetSensitivity(0.5))
	require.NoError(t, s.SetDurations(10, 20))
	require.NoError(t, s.SetMaxDuration(20))
	require.NoError(t, s.SetAllowDuringFullscreen(false))

	p := s.Params()
	assert.Equal(t, 2.5, p.Intensity)
	assert.Equal(t, 0.5, p.Sensitivity)
	assert.Equal(t, 10, p.MinDuration)
	assert.Equal(t, 20, p.MaxDuration)
	assert.False(t, p.AllowDuringFullscreen)
}

func TestStore_DisableRunsHooksOnce(t *testing.T) {
	s := NewDefaultStore()
	calls := 0
	s.OnDisable(func() { calls++ })

	require.NoError(t, s.SetEnabled(false))
	assert.Equal(t, 1, calls)

	// Already disabled: no transition, no hook.
	require.NoError(t, s.SetEnabled(false))
	assert.Equal(t, 1, calls)

	require.NoError(t, s.SetEnabled(true))
	assert.Equal(t, 1, calls)
}

func TestStore_DisableHookCanReadStore(t *testing.T) {
	s := NewDefaultStore()
	var seen Params
	s.OnDisable(func() { seen = s.Params() })

	require.NoError(t, s.SetEnabled(false))
	assert.False(t, seen.Enabled)
}

func TestStore_OnChange(t *testing.T) {
	s := NewDefaultStore()
	var got []float64
	s.OnChange(func(p Params) { got = append(got, p.Intensity) })

	require.NoError(t, s.SetIntensity(1.5))
	require.Error(t, s.SetIntensity(-1))
	require.NoError(t, s.SetIntensity(3))

	assert.Equal(t, []float64{1.5, 3}, got)
}

func TestStore_HooksRegisteredDuringChangeWaitForNextChange(t *testing.T) {
	s := NewDefaultStore()
	var late []float64
	s.OnChange(func(p Params) {
		if p.Intensity == 1.5 {
			s.OnChange(func(p Params) { late = append(late, p.Intensity) })
		}
	})

	require.NoError(t, s.SetIntensity(1.5))
	assert.Empty(t, late)

	require.NoError(t, s.SetIntensity(2))
	assert.Equal(t, []float64{2}, late)
}

func TestStore_Reset(t *testing.T) {
	s := NewDefaultStore()
	require.NoError(t, s.SetIntensity(4))
	require.NoError(t, s.SetEnabled(false))

	s.Reset()
	assert.Equal(t, Defaults(), s.Params())
}

func TestNewStore_RejectsInvalid(t *testing.T) {
	p := Defaults()
	p.MaxDuration = 10
	_, err := NewStore(p)
	assert.True(t, IsParamError(err))
}

func TestDecode_EmptyYieldsDefaults(t *testing.T) {
	p, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestDecode_PartialOverrides(t *testing.T) {
	p, err := Decode([]byte("intensity: 2\nmin_duration: 20\nallow_during_fullscreen: false\n"))
	require.NoError(t, err)

	want := Defaults()
	want.Intensity = 2
	want.MinDuration = 20
	want.AllowDuringFullscreen = false
	assert.Equal(t, want, p)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"negative intensity", "intensity: -1\n"},
		{"fractional duration", "min_duration: 12.5\n"},
		{"string enabled", "enabled: \"yes\"\n"},
		{"unknown field", "volume: 3\n"},
		{"max below min", "min_duration: 100\nmax_duration: 50\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, IsParamError(err), "got %v", err)
		})
	}
}

func TestDecode_InvalidYAML(t *testing.T) {
	_, err := Decode([]byte("intensity: [1"))
	require.Error(t, err)
	assert.False(t, IsParamError(err))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sensitivity: 1.5\n"), 0644))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1.5, p.Sensitivity)

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
