package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/microsoft/stepfly/internal/config"
	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/engine/procengine"
	"github.com/microsoft/stepfly/internal/ident"
	"github.com/microsoft/stepfly/internal/scheduler"
	"github.com/microsoft/stepfly/internal/supervisor"
)

// newRunCmd builds the `stepfly run` subcommand: the out-of-core-scope
// supervisor role of resolving an incident to its TSG/PlanDAG
// pair, seeding a fresh session's Memory, and handing control to the
// Scheduler until the DAG reaches a stable state.
func newRunCmd() *cobra.Command {
	var (
		incidentID   string
		incidentFile string
		tsgOverride  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve an incident, seed a session, and drive its PlanDAG to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if incidentID == "" {
				return fmt.Errorf("--incident is required")
			}
			if incidentFile == "" {
				return fmt.Errorf("--incident-file is required")
			}

			log, metrics, tracer := buildTelemetry()

			sup, err := supervisor.New(supervisor.Config{
				IncidentMapping: cfg.Paths.IncidentMapping,
				TSGDir:          cfg.Paths.TSGDir,
				PlanDAGDir:      cfg.Paths.PlanDAGDir,
				EnablePlugins:   cfg.Tools.EnablePlugins,
			}, log)
			if err != nil {
				return fmt.Errorf("init supervisor: %w", err)
			}

			tsgFilename := tsgOverride
			if tsgFilename == "" {
				tsgFilename, err = sup.Resolve(incidentID)
				if err != nil {
					cmd.PrintErrf("warning: %v; pass --tsg to override\n", err)
					return err
				}
			}

			sessionID := ident.NewSession(deterministicNow())
			store, err := openSessionStore(cfg, sessionID)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			if err := sup.Init(ctx, store, incidentID, incidentFile, tsgFilename); err != nil {
				return fmt.Errorf("seed session: %w", err)
			}

			sched := &scheduler.Scheduler{
				SessionID: sessionID,
				Store:     store,
				Engine:    procengine.New("", configPath),
				Log:       log,
				Metrics:   metrics,
				Tracer:    tracer,
				Config: scheduler.Config{
					Concurrency:   cfg.Scheduler.Concurrency,
					PollInterval:  cfg.Scheduler.PollInterval,
					WorkerTimeout: cfg.Worker.Timeout,
					TraceDir:      cfg.Paths.TraceDir,
				},
			}

			cmd.Printf("session %s started for incident %s (tsg %s)\n", sessionID, incidentID, tsgFilename)
			if err := sched.Run(ctx); err != nil {
				return fmt.Errorf("scheduler run: %w", err)
			}

			nodeRec, _, err := store.GetDataByKey(ctx, "Node_Status")
			if err != nil {
				return fmt.Errorf("read final Node_Status: %w", err)
			}
			nodes, err := dagmodel.DecodeNodes(nodeRec.Data)
			if err != nil {
				return fmt.Errorf("decode final Node_Status: %w", err)
			}
			cmd.Println(supervisor.Conclusion(nodes))
			return nil
		},
	}

	cmd.Flags().StringVar(&incidentID, "incident", "", "incident identifier")
	cmd.Flags().StringVar(&incidentFile, "incident-file", "", "path to the raw incident description text")
	cmd.Flags().StringVar(&tsgOverride, "tsg", "", "TSG filename override, used when the incident has no mapping entry")
	return cmd
}

// deterministicNow returns the wall-clock time `run` builds the session id
// from.
func deterministicNow() time.Time { return time.Now() }
