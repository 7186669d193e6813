// Command stepfly is the entry point for the DAG execution engine: it
// starts a session (run), drives one DAG node to completion as a re-invoked
// subprocess (worker), and observes a session's timeout markers
// (trace-watch). A persistent --config flag feeds
// internal/config.Load, and each subcommand builds only the components it
// needs from the resolved Config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "stepfly",
		Short: "TSG/PlanDAG execution engine",
		Long: "stepfly walks a troubleshooting guide's pre-compiled DAG, dispatching a " +
			"per-node worker process for each triggerable step until the DAG reaches " +
			"a stable state.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (optional; env STEPFLY_* and defaults otherwise)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newTraceWatchCmd())
	root.AddCommand(newDemoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
