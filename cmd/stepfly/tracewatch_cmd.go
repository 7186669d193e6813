package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/microsoft/stepfly/internal/config"
	"github.com/microsoft/stepfly/internal/tracewatch"
)

// newTraceWatchCmd builds the `stepfly trace-watch` subcommand: a thin
// CLI consumer of internal/tracewatch, surfacing a running
// session's worker-timeout marker files as they are written. Purely
// observational: the scheduler's own termination logic never depends on
// this, only on memstore.
func newTraceWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace-watch <session-id>",
		Short: "Stream worker-timeout marker events for a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, _, _ := buildTelemetry()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			w := tracewatch.New(cfg.Paths.TraceDir, args[0], log)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start trace watcher: %w", err)
			}

			for {
				select {
				case ev, ok := <-w.Events():
					if !ok {
						return nil
					}
					cmd.Printf("timeout: executor=%s path=%s\n", ev.ExecutorID, ev.Path)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	return cmd
}
