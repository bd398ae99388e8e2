package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/script"
	"github.com/roach88/hapsync/internal/settings"
)

// Actuator backends selectable with --actuator.
const (
	ActuatorLog    = "log"
	ActuatorRumble = "rumble"
	ActuatorNone   = "none"
)

// SettingsFlags are the sync parameter flags shared by play, settings
// and buzz. Flags given on the command line override the settings file.
type SettingsFlags struct {
	File         string
	Intensity    float64
	Sensitivity  float64
	MinDuration  int
	MaxDuration  int
	Disabled     bool
	NoFullscreen bool
}

func (f *SettingsFlags) register(cmd *cobra.Command) {
	d := settings.Defaults()
	fs := cmd.Flags()
	fs.StringVar(&f.File, "settings", "", "settings file (YAML or JSON)")
	fs.Float64Var(&f.Intensity, "intensity", d.Intensity, "pulse length multiplier")
	fs.Float64Var(&f.Sensitivity, "sensitivity", d.Sensitivity, "multiplier applied to position change")
	fs.IntVar(&f.MinDuration, "min-duration", d.MinDuration, "shortest pulse in ms")
	fs.IntVar(&f.MaxDuration, "max-duration", d.MaxDuration, "longest pulse in ms")
	fs.BoolVar(&f.Disabled, "disabled", false, "start with vibration disabled")
	fs.BoolVar(&f.NoFullscreen, "no-fullscreen", false, "suppress vibration while fullscreen")
}

// resolve loads the settings file, if any, then applies flags the user set.
func (f *SettingsFlags) resolve(cmd *cobra.Command) (settings.Params, error) {
	p := settings.Defaults()
	if f.File != "" {
		loaded, err := settings.LoadFile(f.File)
		if err != nil {
			return settings.Params{}, err
		}
		p = loaded
	}

	changed := cmd.Flags().Changed
	if changed("intensity") {
		p.Intensity = f.Intensity
	}
	if changed("sensitivity") {
		p.Sensitivity = f.Sensitivity
	}
	if changed("min-duration") {
		p.MinDuration = f.MinDuration
	}
	if changed("max-duration") {
		p.MaxDuration = f.MaxDuration
	}
	if changed("disabled") {
		p.Enabled = !f.Disabled
	}
	if changed("no-fullscreen") {
		p.AllowDuringFullscreen = !f.NoFullscreen
	}

	if err := p.Validate(); err != nil {
		return settings.Params{}, err
	}
	return p, nil
}

// settingsExitError maps a settings failure to an exit error.
func settingsExitError(err error) *ExitError {
	if errors.Is(err, os.ErrNotExist) {
		return WrapExitError(ExitCommandError, "settings file not found", err)
	}
	return WrapExitError(ExitCommandError, "invalid settings", err)
}

// openActuator returns the named backend and a func releasing it.
//
// A rumble that cannot open the audio device is still returned: the
// engine sees it as unsupported and runs without actuating.
func openActuator(name string, logger *slog.Logger) (actuator.Actuator, func(), error) {
	switch name {
	case ActuatorLog, "":
		return actuator.LogActuator{Logger: logger}, func() {}, nil
	case ActuatorRumble:
		r := actuator.NewRumble(actuator.DefaultRumbleHz, 0.8)
		if err := r.Init(); err != nil {
			logger.Warn("audio output unavailable", "error", err)
		}
		return r, r.Close, nil
	case ActuatorNone:
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown actuator %q: must be one of [%s %s %s]",
			name, ActuatorLog, ActuatorRumble, ActuatorNone)
	}
}

// loadScript parses a funscript file, mapping failures to exit errors.
func loadScript(path string) (*script.Script, error) {
	s, err := script.ParseFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, WrapExitError(ExitCommandError, "script not found", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to parse script", err)
	}
	return s, nil
}
