package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hapsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Limit    int
}

// SessionTrace is one session with its pulses.
type SessionTrace struct {
	Session store.Session `json:"session"`
	Pulses  []store.Pulse `json:"pulses"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the session journal",
		Long: `List journaled sync sessions, newest first, or show one session with
every pulse it sent.

Example:
  hapsync trace --db ./hapsync.db
  hapsync trace --db ./hapsync.db --session 0192f0c4-...
  hapsync trace --db ./hapsync.db --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "show pulses of this session")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum sessions to list")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	// Trace never creates a database: a missing file is a user error.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list sessions", err)
		}
		return formatter.Emit(sessions, func(w io.Writer) { printSessions(w, sessions) })
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			_ = formatter.Error(CodeSessionNotFound, fmt.Sprintf("session %s not found", opts.Session), nil)
			return WrapExitError(ExitCommandError, "session not found", err)
		}
		return WrapExitError(ExitFailure, "failed to read session", err)
	}
	pulses, err := st.ReadPulses(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read pulses", err)
	}

	result := SessionTrace{Session: sess, Pulses: pulses}
	return formatter.Emit(result, func(w io.Writer) { printSessionTrace(w, result) })
}

func printSessions(w io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %-8s %4d pulses  %s\n",
			s.ID, s.StartedAt.Format(time.RFC3339), s.Policy, s.Pulses, endLabel(s))
	}
}

func printSessionTrace(w io.Writer, t SessionTrace) {
	s := t.Session
	fmt.Fprintf(w, "Session %s\n", s.ID)
	fmt.Fprintf(w, "  policy:   %s (period %dms, %d actions)\n", s.Policy, s.PeriodMs, s.ScriptActions)
	fmt.Fprintf(w, "  started:  %s\n", s.StartedAt.Format(time.RFC3339Nano))
	fmt.Fprintf(w, "  ended:    %s\n", endLabel(s))
	fmt.Fprintf(w, "  ticks:    %d\n", s.Ticks)
	fmt.Fprintf(w, "  settings: %s\n", s.Settings)
	fmt.Fprintf(w, "  pulses:   %d\n", len(t.Pulses))
	for _, p := range t.Pulses {
		fmt.Fprintf(w, "    [%d] pos=%gms %v\n", p.Seq, p.PositionMs, p.Pattern)
	}
}

func endLabel(s store.Session) string {
	if s.Open() {
		return "open"
	}
	return fmt.Sprintf("%s (%s)", s.EndReason, s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond))
}
