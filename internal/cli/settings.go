package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hapsync/internal/settings"
)

// SettingsOptions holds flags for the settings command.
type SettingsOptions struct {
	*RootOptions
	Settings SettingsFlags
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Validate and print the effective sync parameters",
		Long: `Resolve sync parameters the way 'hapsync play' does (defaults, then
the settings file, then flags) and print the result.

Exits with code 2 naming the offending field if any value is out of
range.

Example:
  hapsync settings
  hapsync settings --settings ./hapsync.yaml --intensity 1.5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettings(opts, cmd)
		},
	}

	opts.Settings.register(cmd)
	return cmd
}

func runSettings(opts *SettingsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	p, err := opts.Settings.resolve(cmd)
	if err != nil {
		if settings.IsParamError(err) {
			_ = formatter.Error(CodeInvalidSettings, err.Error(), nil)
		}
		return settingsExitError(err)
	}

	return formatter.Emit(p, func(w io.Writer) {
		fmt.Fprintf(w, "intensity:               %g\n", p.Intensity)
		fmt.Fprintf(w, "sensitivity:             %g\n", p.Sensitivity)
		fmt.Fprintf(w, "min_duration:            %dms\n", p.MinDuration)
		fmt.Fprintf(w, "max_duration:            %dms\n", p.MaxDuration)
		fmt.Fprintf(w, "enabled:                 %t\n", p.Enabled)
		fmt.Fprintf(w, "allow_during_fullscreen: %t\n", p.AllowDuringFullscreen)
	})
}
