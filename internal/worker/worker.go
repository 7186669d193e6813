// Package worker implements the per-node Worker: the ReAct loop that
// drives one DAG node to completion by iterating LLM calls, dispatching
// tools, and returning a verdict. The tool set is a toolregistry.Registry
// built fresh per worker invocation, since each Worker runs as its own OS
// process.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/llmjson"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/model"
	"github.com/microsoft/stepfly/internal/plugin"
	"github.com/microsoft/stepfly/internal/retry"
	"github.com/microsoft/stepfly/internal/telemetry"
	"github.com/microsoft/stepfly/internal/toolerrors"
	"github.com/microsoft/stepfly/internal/toolregistry"
)

// Verdict is the worker's completion payload,
// written to Memory under "{executor_id}_step_result".
type Verdict struct {
	Result        string            `json:"result"`
	Status        string            `json:"status"`
	SetEdgeStatus map[string]string `json:"set_edge_status"`
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Config bounds the ReAct loop, all overridable via internal/config;
// zero values fall back to the defaults noted below.
type Config struct {
	MaxIterations int // default 10
	LLMRetry      int // default 3
	Model         string
	Temperature   float32
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.LLMRetry <= 0 {
		c.LLMRetry = 3
	}
	return c
}

// Worker drives one DAG node to completion.
type Worker struct {
	NodeName   string
	SessionID  string
	ExecutorID string
	Role       string

	Store   memstore.Store
	LLM     model.Client
	Tools   *toolregistry.Registry
	Log     telemetry.Logger
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics
	Config  Config
}

// Run assembles context, drives the ReAct loop, and writes the verdict to
// Memory. It is the entry point the procengine's re-invoked "stepfly worker"
// subcommand calls.
func (w *Worker) Run(ctx context.Context) (Verdict, error) {
	cfg := w.Config.withDefaults()

	ctx, span := w.Tracer.Start(ctx, "worker.run")
	started := time.Now()
	defer func() {
		w.Metrics.RecordTimer("worker.node_duration", time.Since(started), "node", w.NodeName)
		span.End()
	}()

	if _, err := w.Store.RegisterAgent(ctx, "executor_"+w.NodeName, w.ExecutorID); err != nil {
		span.RecordError(err)
		return Verdict{}, fmt.Errorf("register worker agent: %w", err)
	}

	if strings.EqualFold(w.NodeName, dagmodel.EndNode) {
		return w.finish(ctx, llmjson.EndShortcut())
	}

	history, err := w.assembleContext(ctx)
	if err != nil {
		span.RecordError(err)
		return Verdict{}, fmt.Errorf("assemble worker context: %w", err)
	}
	for _, m := range history {
		w.record(ctx, m.Role, m.Content)
	}

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		action, err := w.nextAction(ctx, history, cfg)
		if err != nil {
			return Verdict{}, err
		}
		assistantContent, _ := json.Marshal(action)
		history = append(history, model.Message{Role: model.RoleAssistant, Content: string(assistantContent)})
		w.record(ctx, model.RoleAssistant, string(assistantContent))

		if action.Action == "finish_step" {
			return w.finish(ctx, action)
		}

		observation := w.dispatch(ctx, action.Action, action.Parameters)
		history = append(history, model.Message{Role: model.RoleUser, Content: observation})
		w.record(ctx, model.RoleUser, observation)

		// Deferred plugin -> sql_query_tool dispatch: hard-coded here,
		// never left to the model. Only a snippet-id observation triggers
		// it; a missing-param or error observation goes back to the model.
		if strings.HasPrefix(action.Action, "plugin_") && strings.HasPrefix(observation, plugin.SnippetPrefix) {
			snippetID := strings.TrimSpace(strings.TrimPrefix(observation, plugin.SnippetPrefix))
			sqlParams := map[string]any{
				"snippet_id":         snippetID,
				"result_description": fmt.Sprintf("Result of %s step execution", w.NodeName),
			}
			synthAction := llmjson.Action{
				Thought:    fmt.Sprintf("I will execute the SQL query using the plugin with the provided snippet ID: %s", snippetID),
				Action:     "sql_query_tool",
				Parameters: sqlParams,
			}
			synthContent, _ := json.Marshal(synthAction)
			history = append(history, model.Message{Role: model.RoleAssistant, Content: string(synthContent)})
			w.record(ctx, model.RoleAssistant, string(synthContent))

			sqlObservation := w.dispatch(ctx, "sql_query_tool", sqlParams)
			history = append(history, model.Message{Role: model.RoleUser, Content: sqlObservation})
			w.record(ctx, model.RoleUser, sqlObservation)
		}
	}

	// Iteration cap exceeded without finish_step.
	return w.finish(ctx, llmjson.Action{
		Thought: "Exceeded maximum iterations without a finish_step call.",
		Action:  "finish_step",
		Parameters: map[string]any{
			"result":          fmt.Sprintf("Step %s was executed, but no finish_step action was provided.", w.NodeName),
			"status":          StatusFailed,
			"set_edge_status": map[string]any{},
		},
	})
}

// nextAction calls the LLM and parses its {thought,action,parameters}
// response, retrying up to cfg.LLMRetry times on malformed JSON before
// synthesizing a failed finish_step. A transport failure is not retried
// here — it aborts the worker, whose process exit the scheduler reaps as a
// verdictless failure.
func (w *Worker) nextAction(ctx context.Context, history []model.Message, cfg Config) (llmjson.Action, error) {
	var action llmjson.Action
	var transportErr error
	err := retry.Do(ctx, cfg.LLMRetry, func(attempt int) error {
		resp, err := w.LLM.Complete(ctx, model.Request{
			Model:       cfg.Model,
			Messages:    history,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			transportErr = fmt.Errorf("llm completion: %w", err)
			return retry.Permanent(transportErr)
		}
		parsed, perr := llmjson.Parse(resp.Content)
		if perr != nil {
			w.Log.Debug(ctx, "worker: malformed LLM response, retrying", "node", w.NodeName, "attempt", attempt, "error", perr)
			return perr
		}
		action = parsed
		return nil
	})
	if transportErr != nil {
		return llmjson.Action{}, transportErr
	}
	if err != nil {
		w.Log.Warn(ctx, "worker: LLM response unparseable after retries", "node", w.NodeName, "error", err)
		return llmjson.FallbackFailed("Failed to decode LLM response after multiple attempts."), nil
	}
	return action, nil
}

// dispatch resolves and executes a single tool call, returning the
// observation string handed back into the transcript. Tool errors never
// propagate out of the ReAct loop: they become a
// normal observation the model may retry against.
func (w *Worker) dispatch(ctx context.Context, action string, params map[string]any) string {
	if action == "" {
		return "No action to execute. Continuing with the session."
	}
	if _, ok := w.Tools.Lookup(action); !ok {
		return toolerrors.NotFound(action, w.Tools.Names(w.Role)).Error()
	}
	out, err := w.Tools.Invoke(ctx, action, params)
	if err != nil {
		te := toolerrors.Execution(action, err)
		w.Log.Warn(ctx, "worker: tool execution failed", "node", w.NodeName, "action", action, "error", te)
		return te.Error()
	}
	return out
}

// finish builds the Verdict from a finish_step action and persists it.
func (w *Worker) finish(ctx context.Context, action llmjson.Action) (Verdict, error) {
	result, _ := action.Parameters["result"].(string)
	if result == "" {
		result = "Step completed"
	}
	status, _ := action.Parameters["status"].(string)
	if status == "" {
		status = StatusCompleted
	}
	setEdge := map[string]string{}
	if raw, ok := action.Parameters["set_edge_status"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				setEdge[k] = s
			}
		}
	}
	verdict := Verdict{Result: result, Status: status, SetEdgeStatus: setEdge}

	if _, err := w.Store.UpdateDataByKey(ctx, w.ExecutorID+"_step_result", memstore.Record{
		Data: map[string]any{
			"node_name":   w.NodeName,
			"executor_id": w.ExecutorID,
			"result":      verdict,
		},
		DataType:    "executor_result",
		AgentID:     w.ExecutorID,
		Description: fmt.Sprintf("Store execution result for node %s", w.NodeName),
	}); err != nil {
		return Verdict{}, fmt.Errorf("persist verdict: %w", err)
	}
	return verdict, nil
}

func (w *Worker) record(ctx context.Context, role model.Role, content string) {
	if err := w.Store.AddAgentContext(ctx, w.ExecutorID, string(role), map[string]any{
		"role":    string(role),
		"content": content,
	}, ""); err != nil {
		w.Log.Warn(ctx, "worker: failed to persist conversation entry", "node", w.NodeName, "error", err)
	}
}

