package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/microsoft/stepfly/internal/config"
	"github.com/microsoft/stepfly/internal/demodata"
	"github.com/microsoft/stepfly/internal/sqlstore"
)

// demoTSGName names the bundled TSG/PlanDAG/plugin-catalog fixture: a
// four-step "start -> investigate_version_regression ->
// check_host_health -> end" walk over the checkout v1.5.0 regression
// demodata.Defaults() generates, exercising two of the five catalog
// templates' deferred-dispatch protocol end-to-end.
const demoTSGName = "Distributed_System_Low_Availability"

const demoIncidentID = "INC-1001"

// newDemoCmd builds the `stepfly demo` subcommand: it materializes the
// demo SQLite dataset (internal/demodata) and a matching
// incident/TSG/PlanDAG fixture set on disk, so `stepfly run --incident
// INC-1001 ...` has something real to execute without an operator having
// to author a TSG by hand first.
func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Generate the bundled demo dataset, TSG, and PlanDAG fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// The five fixtures are independent of each other; the SQLite
			// dataset generation dominates, so the file writes ride along
			// concurrently.
			g, ctx := errgroup.WithContext(context.Background())
			var incidentPath string
			g.Go(func() error { return generateDemoDataset(ctx, cfg) })
			g.Go(func() error {
				var err error
				incidentPath, err = writeDemoIncident(cfg)
				return err
			})
			g.Go(func() error { return writeDemoTSG(cfg) })
			g.Go(func() error { return writeDemoPlanDAG(cfg) })
			g.Go(func() error { return writeDemoIncidentMapping(cfg) })
			if err := g.Wait(); err != nil {
				return err
			}

			cmd.Printf("demo fixtures ready: sqlite=%s incident=%s tsg=%s.md plandag=%s\n",
				cfg.Paths.DemoDB, incidentPath, demoTSGName, demoTSGName+"_plan_dag.json")
			cmd.Printf("run it with: stepfly run --incident %s --incident-file %s\n", demoIncidentID, incidentPath)
			return nil
		},
	}
	return cmd
}

func generateDemoDataset(ctx context.Context, cfg config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.DemoDB), 0o755); err != nil {
		return fmt.Errorf("create demo db directory: %w", err)
	}
	db, err := sqlstore.Open(cfg.Paths.DemoDB)
	if err != nil {
		return fmt.Errorf("open demo db: %w", err)
	}
	defer db.Close()
	if err := demodata.Generate(ctx, db, demodata.Defaults()); err != nil {
		return fmt.Errorf("generate demo dataset: %w", err)
	}
	return nil
}

func writeDemoIncident(cfg config.Config) (string, error) {
	dir := filepath.Join(filepath.Dir(cfg.Paths.IncidentMapping), "incidents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create incident directory: %w", err)
	}
	path := filepath.Join(dir, demoIncidentID+".txt")
	body := "Checkout service is returning elevated 5xx rates in eastus since the v1.5.0 rollout. " +
		"On-call paged at 08:30 UTC; customer-visible checkout failures reported in the #incidents channel " +
		"at https://incidents.example.com/INC-1001.\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write incident file: %w", err)
	}
	return path, nil
}

func writeDemoIncidentMapping(cfg config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.IncidentMapping), 0o755); err != nil {
		return fmt.Errorf("create incident mapping directory: %w", err)
	}
	mapping := map[string]string{demoIncidentID: demoTSGName + ".md"}
	raw, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cfg.Paths.IncidentMapping, raw, 0o644)
}

func writeDemoTSG(cfg config.Config) error {
	if err := os.MkdirAll(cfg.Paths.TSGDir, 0o755); err != nil {
		return fmt.Errorf("create tsg directory: %w", err)
	}
	doc := fmt.Sprintf(`<!-- TSG_PLUGINS:%s -->
# Distributed System Low Availability

## Step 1: investigate_version_regression

Compare failure rate by service_version for the affected service and time
window to check whether the rollout correlates with the regression.

<PLUGIN_1>
Parameters: start_time, end_time, region, environment, service_name
</PLUGIN_1>

## Step 2: check_host_health

Check host-level CPU and memory pressure for the affected service during
the incident window to rule out a resource-exhaustion root cause.

<PLUGIN_4>
Parameters: start_time, end_time, region, environment, service_name
</PLUGIN_4>

## Step 3: end

Summarize findings and conclude the investigation.
`, demoTSGName)
	return os.WriteFile(filepath.Join(cfg.Paths.TSGDir, demoTSGName+".md"), []byte(doc), 0o644)
}

func writeDemoPlanDAG(cfg config.Config) error {
	if err := os.MkdirAll(cfg.Paths.PlanDAGDir, 0o755); err != nil {
		return fmt.Errorf("create plandag directory: %w", err)
	}
	plan := map[string]any{
		"nodes": []map[string]any{
			{
				"node":         "start",
				"description":  "Session entry point",
				"output_edges": []map[string]string{{"edge": "e_start_version", "condition": "none"}},
			},
			{
				"node":         "investigate_version_regression",
				"description":  "Compare failure rate by service_version",
				"input_edges":  []map[string]string{{"edge": "e_start_version", "condition": "none"}},
				"output_edges": []map[string]string{{"edge": "e_version_host", "condition": "none"}},
			},
			{
				"node":         "check_host_health",
				"description":  "Check host-level CPU/memory pressure",
				"input_edges":  []map[string]string{{"edge": "e_version_host", "condition": "none"}},
				"output_edges": []map[string]string{{"edge": "e_host_end", "condition": "none"}},
			},
			{
				"node":        "end",
				"description": "Summarize and conclude",
				"input_edges": []map[string]string{{"edge": "e_host_end", "condition": "none"}},
			},
		},
	}
	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Paths.PlanDAGDir, demoTSGName+"_plan_dag.json")
	return os.WriteFile(path, raw, 0o644)
}
