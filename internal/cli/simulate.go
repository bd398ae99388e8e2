package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hapsync/internal/actuator"
	"github.com/roach88/hapsync/internal/harness"
	"github.com/roach88/hapsync/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml|dir>",
		Short: "Run scenarios against a virtual clock",
		Long: `Run one scenario file, or every scenario in a directory, against a
virtual media clock and a recording actuator.

Each scenario scripts playback events (play, pause, seek, advance,
settings changes) and asserts on the resulting actuator calls. No time
passes for real, so runs are instant and deterministic.

With --db, sessions are journaled to a new SQLite database so they can
be inspected with 'hapsync trace'. Session IDs are the scenario name
plus a counter, so the database must not exist yet.

Example:
  hapsync simulate ./scenarios/basic_play.yaml
  hapsync simulate ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal simulated sessions to this SQLite database")

	return cmd
}

func runSimulate(opts *SimulateOptions, target string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd)

	info, err := os.Stat(target)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario path not found", err)
	}

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Database != "" {
		if _, err := os.Stat(opts.Database); err == nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("database %s already exists", opts.Database))
		}
		db, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer db.Close()
		runOpts = append(runOpts, harness.WithStore(db))
	}

	var result *harness.SuiteResult
	if info.IsDir() {
		result, err = harness.RunSuite(target, runOpts...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list scenarios", err)
		}
		if result.Total == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files in %s", target))
		}
	} else {
		result = harness.RunFiles([]string{target}, runOpts...)
	}
	for _, sr := range result.Scenarios {
		logger.Debug("scenario finished", "path", sr.Path, "pass", sr.Pass)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	single := !info.IsDir()
	if err := formatter.Emit(result, func(w io.Writer) { printSimulate(w, result, single) }); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

func printSimulate(w io.Writer, result *harness.SuiteResult, withTrace bool) {
	for _, sr := range result.Scenarios {
		name := sr.Name
		if name == "" {
			name = sr.Path
		}
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", name)
		} else {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}

		if withTrace {
			for _, ev := range sr.Trace {
				if ev.Kind == actuator.CallVibrate {
					fmt.Fprintf(w, "  t=%dms pos=%gms vibrate %v\n", ev.AtMs, ev.PositionMs, ev.Pattern)
				} else {
					fmt.Fprintf(w, "  t=%dms pos=%gms %s\n", ev.AtMs, ev.PositionMs, ev.Kind)
				}
			}
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
