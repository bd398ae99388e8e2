package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/engine"
	"github.com/roach88/hapsync/internal/playback"
	"github.com/roach88/hapsync/internal/settings"
)

// BuzzOptions holds flags for the buzz command.
type BuzzOptions struct {
	*RootOptions
	Actuator string
}

// NewBuzzCommand creates the buzz command.
func NewBuzzCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuzzOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "buzz",
		Short: "Fire the test vibration pattern",
		Long: `Send the fixed test pattern to the actuator, independent of any
playback, to check the device works.

Exits with code 1 if the actuator cannot vibrate.

Example:
  hapsync buzz --actuator rumble`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuzz(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actuator, "actuator", ActuatorLog, "actuator backend (log|rumble|none)")
	return cmd
}

func runBuzz(opts *BuzzOptions, cmd *cobra.Command) error {
	logger := opts.Logger(cmd)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	act, release, err := openActuator(opts.Actuator, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid actuator", err)
	}
	defer release()

	idle := playback.SourceFunc(func() playback.State { return playback.State{} })
	eng := engine.New(idle, act, settings.NewDefaultStore(), engine.WithLogger(logger))
	defer eng.Close()

	if err := eng.TestPulse(); err != nil {
		_ = formatter.Error(CodeUnavailable, err.Error(), nil)
		return WrapExitError(ExitFailure, "test pulse failed", err)
	}

	// The rumble renders asynchronously; let the pattern finish before exit.
	if opts.Actuator == ActuatorRumble {
		time.Sleep(time.Duration(actuator.TestPattern.Total()) * time.Millisecond)
	}

	return formatter.Emit(map[string]any{"pattern": actuator.TestPattern}, func(w io.Writer) {
		fmt.Fprintf(w, "Sent test pattern %v\n", actuator.TestPattern)
	})
}
