package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hapsync/internal/engine"
	"github.com/roach88/hapsync/internal/mapper"
	"github.com/roach88/hapsync/internal/playback"
	"github.com/roach88/hapsync/internal/settings"
	"github.com/roach88/hapsync/internal/store"
)

// endTail is how long the virtual media keeps running past the last action
// when --duration is not given.
const endTail = 500 * time.Millisecond

// pollInterval is how often the play loop checks for end of media.
const pollInterval = 10 * time.Millisecond

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Settings SettingsFlags
	Policy   string
	Actuator string
	Database string
	Duration time.Duration
	From     time.Duration
	Period   time.Duration

	// SessionIDs overrides the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionIDs engine.SessionIDGenerator
}

// PlaySummary is what play reports once playback is over.
type PlaySummary struct {
	Sessions    []string `json:"sessions"`
	Pulses      int      `json:"pulses"`
	PositionMs  float64  `json:"position_ms"`
	Interrupted bool     `json:"interrupted"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlayCommand(&PlayOptions{RootOptions: rootOpts})
}

func newPlayCommand(opts *PlayOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <script.funscript>",
		Short: "Play a script against a real-time media clock",
		Long: `Play a funscript in real time.

A virtual media clock runs from --from to --duration (default: the last
action plus a short tail) and the sync loop drives the chosen actuator
while it plays. Ctrl-C stops early. With --db every session and pulse is
journaled to SQLite for later inspection with 'hapsync trace'.

Example:
  hapsync play clip.funscript
  hapsync play clip.funscript --actuator rumble --intensity 1.5
  hapsync play clip.funscript --db ./hapsync.db --policy nearest`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, args[0], cmd)
		},
	}

	opts.Settings.register(cmd)
	cmd.Flags().StringVar(&opts.Policy, "policy", "windowed", fmt.Sprintf("pattern policy %v", mapper.Names()))
	cmd.Flags().StringVar(&opts.Actuator, "actuator", ActuatorLog, "actuator backend (log|rumble|none)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal sessions to this SQLite database")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "media length (default: script length plus tail)")
	cmd.Flags().DurationVar(&opts.From, "from", 0, "start position")
	cmd.Flags().DurationVar(&opts.Period, "period", engine.DefaultPeriod, "sync loop period")

	return cmd
}

func runPlay(opts *PlayOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd)

	sc, err := loadScript(path)
	if err != nil {
		return err
	}
	params, err := opts.Settings.resolve(cmd)
	if err != nil {
		return settingsExitError(err)
	}
	st, err := settings.NewStore(params)
	if err != nil {
		return settingsExitError(err)
	}
	policy, err := mapper.ByName(opts.Policy)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid policy", err)
	}
	if opts.Period <= 0 {
		return NewExitError(ExitCommandError, "period must be positive")
	}

	act, release, err := openActuator(opts.Actuator, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid actuator", err)
	}
	defer release()

	duration := opts.Duration
	if duration <= 0 {
		duration = time.Duration(sc.Duration())*time.Millisecond + endTail
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	ids := opts.SessionIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	tracked := &trackedIDs{next: ids}

	engOpts := []engine.Option{
		engine.WithPolicy(policy),
		engine.WithPeriod(opts.Period),
		engine.WithSessionIDs(tracked),
		engine.WithLogger(logger),
	}

	var journalDone chan error
	var aj *engine.AsyncJournal
	if opts.Database != "" {
		db, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		// The writer outlives ctx so the final session end still lands;
		// Close below stops it once the queue drains.
		aj = engine.NewAsyncJournal(db, logger)
		journalDone = make(chan error, 1)
		go func() { journalDone <- aj.Run(context.WithoutCancel(ctx)) }()
		engOpts = append(engOpts, engine.WithJournal(aj))
	}

	player := playback.NewPlayer(duration)
	eng := engine.New(player, act, st, engOpts...)
	player.Subscribe(eng)
	eng.LoadScript(sc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("playing", "script", path, "duration", duration, "from", opts.From)
	player.Seek(opts.From)
	player.Play()

	interrupted := playLoop(ctx, player, sigChan, logger)
	player.Pause()
	eng.Close()

	if aj != nil {
		aj.Close()
		if err := <-journalDone; err != nil {
			logger.Error("journal stopped", "error", err)
		}
	}

	summary := PlaySummary{
		Sessions:    tracked.ids,
		Pulses:      eng.Pulses(),
		PositionMs:  player.Snapshot().PositionMs,
		Interrupted: interrupted,
	}
	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Emit(summary, func(w io.Writer) {
		fmt.Fprintf(w, "Played %s: %d pulses, stopped at %.0fms\n", path, summary.Pulses, summary.PositionMs)
		if summary.Interrupted {
			fmt.Fprintln(w, "Interrupted before end of media.")
		}
		for _, id := range summary.Sessions {
			fmt.Fprintf(w, "  session %s\n", id)
		}
	})
}

// playLoop polls the player until media ends, a signal arrives or ctx is
// cancelled. Returns true if playback did not reach the end.
func playLoop(ctx context.Context, player *playback.Player, sigChan <-chan os.Signal, logger *slog.Logger) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			return true
		case <-ctx.Done():
			return true
		case <-ticker.C:
			if player.Poll() || player.Ended() {
				return false
			}
		}
	}
}

// trackedIDs remembers every session ID the engine asks for. The engine
// calls Generate under its own lock, so no further locking is needed.
type trackedIDs struct {
	next engine.SessionIDGenerator
	ids  []string
}

func (t *trackedIDs) Generate() string {
	id := t.next.Generate()
	t.ids = append(t.ids, id)
	return id
}
