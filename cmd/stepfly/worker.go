package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microsoft/stepfly/internal/config"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/worker"
)

// newWorkerCmd builds the `stepfly worker` subcommand: the internal
// re-exec target procengine.Engine.Dispatch invokes as its own OS process
// for a single DAG node. Not
// meant to be invoked directly by a human, though nothing prevents it.
func newWorkerCmd() *cobra.Command {
	var (
		sessionID  string
		nodeName   string
		executorID string
		role       string
	)

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run a single DAG node's ReAct loop to completion (internal re-exec target)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if sessionID == "" || nodeName == "" || executorID == "" {
				return fmt.Errorf("--session, --node, and --executor are all required")
			}

			log, metrics, tracer := buildTelemetry()

			store, err := openSessionStore(cfg, sessionID)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			tsgName := resolveTSGName(ctx, store)

			llm, err := buildLLMClient(cfg)
			if err != nil {
				return fmt.Errorf("build llm client: %w", err)
			}
			reg, err := buildToolRegistry(cfg, store, llm, executorID, tsgName)
			if err != nil {
				return err
			}

			w := &worker.Worker{
				NodeName:   nodeName,
				SessionID:  sessionID,
				ExecutorID: executorID,
				Role:       role,
				Store:      store,
				LLM:        llm,
				Tools:      reg,
				Log:        log,
				Tracer:     tracer,
				Metrics:    metrics,
				Config: worker.Config{
					MaxIterations: cfg.Worker.MaxIterations,
					LLMRetry:      cfg.Worker.LLMRetry,
					Model:         cfg.LLM.Model,
				},
			}

			verdict, err := w.Run(ctx)
			if err != nil {
				return fmt.Errorf("worker run: %w", err)
			}
			cmd.Printf("node %s finished: status=%s result=%s\n", nodeName, verdict.Status, verdict.Result)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (shared with the dispatching scheduler process)")
	cmd.Flags().StringVar(&nodeName, "node", "", "DAG node name this process executes")
	cmd.Flags().StringVar(&executorID, "executor", "", "executor id minted by the scheduler at dispatch")
	cmd.Flags().StringVar(&role, "role", "Executor", "tool-registry role filter applied to this worker")
	return cmd
}

// resolveTSGName reads the tsg_name the supervisor recorded alongside
// tsg_content so the worker knows which plugin_N_tool set, if
// any, to pre-load. A missing or unreadable record just means no
// plugin tools are registered, not a worker failure.
func resolveTSGName(ctx context.Context, store memstore.Store) string {
	rec, found, err := store.GetDataByKey(ctx, "tsg_content")
	if err != nil || !found {
		return ""
	}
	name, _ := rec.Metadata["tsg_name"].(string)
	return name
}
