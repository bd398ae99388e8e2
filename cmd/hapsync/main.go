// Command hapsync drives a vibration actuator in time with media playback.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/hapsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
