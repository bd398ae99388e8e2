package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hapsync/internal/settings"
)

func TestSettings_Defaults(t *testing.T) {
	out, err := execute(t, "settings")
	require.NoError(t, err)

	assert.Contains(t, out, "intensity:               1\n")
	assert.Contains(t, out, "min_duration:            50ms")
	assert.Contains(t, out, "allow_during_fullscreen: true")
}

func TestSettings_FlagsOverrideFile(t *testing.T) {
	file := writeTemp(t, "hapsync.yaml", "intensity: 1.5\nmin_duration: 40\nallow_during_fullscreen: false\n")

	out, err := execute(t, "--format", "json", "settings", "--settings", file, "--intensity", "2", "--disabled")
	require.NoError(t, err)

	var resp struct {
		Data settings.Params `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	want := settings.Defaults()
	want.Intensity = 2
	want.MinDuration = 40
	want.AllowDuringFullscreen = false
	want.Enabled = false
	assert.Equal(t, want, resp.Data)
}

func TestSettings_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{"zero intensity flag", []string{"--intensity", "0"}, "intensity"},
		{"inverted durations", []string{"--min-duration", "300", "--max-duration", "100"}, "max_duration"},
		{"bad file value", []string{"--settings", writeTemp(t, "s.yaml", "sensitivity: -1\n")}, "sensitivity"},
		{"unknown file field", []string{"--settings", writeTemp(t, "u.yaml", "loudness: 3\n")}, "loudness"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"settings"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, out, CodeInvalidSettings)
		})
	}
}

func TestSettings_MissingFile(t *testing.T) {
	_, err := execute(t, "settings", "--settings", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings file not found")
}
