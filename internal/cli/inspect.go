package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hapsync/internal/script"
)

// InspectResult describes a parsed script.
type InspectResult struct {
	Path     string          `json:"path"`
	Version  string          `json:"version,omitempty"`
	Inverted bool            `json:"inverted"`
	Range    float64         `json:"range"`
	Metadata script.Metadata `json:"metadata"`
	Stats    script.Stats    `json:"stats"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <script.funscript>",
		Short: "Validate a script and print its summary",
		Long: `Parse a funscript and print its header, metadata and statistics.

Exits with code 2 if the script cannot be parsed; the error names the
offending field.

Example:
  hapsync inspect clip.funscript
  hapsync inspect clip.funscript --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout())

	sc, err := loadScript(path)
	if err != nil {
		if script.IsParseError(err) {
			_ = formatter.Error(CodeInvalidScript, err.Error(), nil)
		}
		return err
	}

	result := InspectResult{
		Path:     path,
		Version:  sc.Version(),
		Inverted: sc.Inverted(),
		Range:    sc.Range(),
		Metadata: sc.Metadata(),
		Stats:    sc.Stats(),
	}
	return formatter.Emit(result, func(w io.Writer) { printInspect(w, result) })
}

func printInspect(w io.Writer, r InspectResult) {
	fmt.Fprintf(w, "%s\n", r.Path)
	if r.Metadata.Title != "" {
		fmt.Fprintf(w, "  title:      %s\n", r.Metadata.Title)
	}
	if r.Metadata.Creator != "" {
		fmt.Fprintf(w, "  creator:    %s\n", r.Metadata.Creator)
	}
	if len(r.Metadata.Tags) > 0 {
		fmt.Fprintf(w, "  tags:       %s\n", strings.Join(r.Metadata.Tags, ", "))
	}
	if r.Version != "" {
		fmt.Fprintf(w, "  version:    %s\n", r.Version)
	}
	fmt.Fprintf(w, "  inverted:   %t\n", r.Inverted)
	fmt.Fprintf(w, "  range:      %g\n", r.Range)
	fmt.Fprintf(w, "  actions:    %d\n", r.Stats.Actions)
	fmt.Fprintf(w, "  duration:   %dms\n", r.Stats.DurationMs)
	fmt.Fprintf(w, "  positions:  %g..%g\n", r.Stats.MinPos, r.Stats.MaxPos)
	fmt.Fprintf(w, "  mean speed: %.1f/s\n", r.Stats.MeanSpeed)
}
