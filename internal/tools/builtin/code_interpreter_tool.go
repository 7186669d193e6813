package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microsoft/stepfly/internal/llmjson"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/model"
	"github.com/microsoft/stepfly/internal/retry"
	"github.com/microsoft/stepfly/internal/sandbox"
)

// codeOperation is what the code-generation model turn must return: a
// choice of allow-listed sandbox operation plus its structured input. There
// is no runtime that executes arbitrary generated source here —
// sandbox.Runtime only ever runs its built-in operation set or an
// ahead-of-time-compiled WASM module (see internal/sandbox's doc comment).
type codeOperation struct {
	Operation string         `json:"operation"`
	Input     map[string]any `json:"input"`
}

// CodeInterpreterTool performs data analysis by driving a code-generation
// model turn that selects one of a fixed set of sandboxed operations,
// retrying on generation or execution failure up to a bounded cap.
type CodeInterpreterTool struct {
	Store      memstore.Store
	Sandbox    *sandbox.Runtime
	LLM        model.Client
	Model      string
	MaxRetries int // default 3
}

func (CodeInterpreterTool) Name() string    { return "code_interpreter" }
func (CodeInterpreterTool) Roles() []string { return []string{"Executor"} }
func (CodeInterpreterTool) ParamSchema() any { return nil }
func (CodeInterpreterTool) Description() string {
	return "Analyze data and perform computations by choosing one of the available " +
		"sandboxed modules (numeric, tabular, datetime, statistics).\n\n" +
		"Required Parameters:\n" +
		"- task: Description of the task to accomplish\n" +
		"- input_type: Either \"memory_data\" (values are memory data IDs to load) or \"direct_data\" (values are literal)\n" +
		"- input_data: Map of variable name to memory data ID or literal value, depending on input_type\n\n" +
		"Notes:\n" +
		"- No visualization libraries are available; provide textual summaries only."
}

func (t CodeInterpreterTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	task, _ := params["task"].(string)
	if task == "" {
		return "Error: 'task' is required.", nil
	}
	inputType, _ := params["input_type"].(string)
	if inputType != "memory_data" && inputType != "direct_data" {
		return "Error: 'input_type' must be either 'memory_data' or 'direct_data'.", nil
	}
	rawInput, _ := params["input_data"].(map[string]any)

	dataInfo, dataValues, err := t.resolveInput(ctx, inputType, rawInput)
	if err != nil {
		return fmt.Sprintf("Error resolving input_data: %s", err), nil
	}

	maxRetries := t.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastCode codeOperation
	var lastErr, lastStdout string
	retryErr := retry.Do(ctx, maxRetries, func(attempt int) error {
		op, genErr := t.generate(ctx, task, dataInfo, attempt, lastErr)
		if genErr != nil {
			lastErr = genErr.Error()
			return genErr
		}
		lastCode = op

		mergedInput := map[string]any{}
		for k, v := range dataValues {
			mergedInput[k] = v
		}
		for k, v := range op.Input {
			mergedInput[k] = v
		}
		stdin, marshalErr := json.Marshal(mergedInput)
		if marshalErr != nil {
			return marshalErr
		}

		stdout, stderr, runErr := t.Sandbox.Run(ctx, op.Operation, stdin)
		if runErr != nil {
			lastErr = runErr.Error()
			return runErr
		}
		if stderr != "" {
			lastErr = stderr
			return fmt.Errorf("module %s wrote to stderr: %s", op.Operation, stderr)
		}
		lastStdout = stdout
		return nil
	})

	if retryErr == nil {
		return formatSuccess(lastCode.Operation, lastStdout), nil
	}
	return formatFailure(lastCode.Operation, lastErr, maxRetries), nil
}

func (t CodeInterpreterTool) generate(ctx context.Context, task string, dataInfo map[string]any, attempt int, lastErr string) (codeOperation, error) {
	dataJSON, _ := json.MarshalIndent(dataInfo, "", "  ")
	userMsg := fmt.Sprintf(
		"# Task: %s\n# Attempt: %d\n\n# Data available:\n```json\n%s\n```\n\n"+
			"Respond with a JSON object {\"operation\": <module name>, \"input\": <object>} "+
			"choosing one allow-listed module (numeric, tabular, datetime, statistics) and the input it needs.",
		task, attempt, string(dataJSON),
	)
	if lastErr != "" {
		userMsg += fmt.Sprintf("\n\nYour previous attempt failed:\n%s\nPlease correct the operation or input and try again.", lastErr)
	}

	resp, err := t.LLM.Complete(ctx, model.Request{
		Model: t.Model,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "You select and parameterize a sandboxed analysis module. Respond with JSON only."},
			{Role: model.RoleUser, Content: userMsg},
		},
	})
	if err != nil {
		return codeOperation{}, fmt.Errorf("code generation llm call: %w", err)
	}

	stripped := llmjson.StripFence(resp.Content)
	var op codeOperation
	if err := json.Unmarshal([]byte(stripped), &op); err != nil {
		return codeOperation{}, fmt.Errorf("decode code operation: %w", err)
	}
	if op.Operation == "" {
		return codeOperation{}, fmt.Errorf("code generation returned no operation")
	}
	return op, nil
}

func (t CodeInterpreterTool) resolveInput(ctx context.Context, inputType string, raw map[string]any) (dataInfo map[string]any, dataValues map[string]any, err error) {
	dataInfo = map[string]any{}
	dataValues = map[string]any{}

	if inputType == "direct_data" {
		for varName, v := range raw {
			dataValues[varName] = v
			dataInfo[varName] = map[string]any{
				"description": fmt.Sprintf("Directly provided data for variable '%s'", varName),
				"preview":     previewOf(v),
			}
		}
		return dataInfo, dataValues, nil
	}

	for dataID, descAny := range raw {
		desc, _ := descAny.(string)
		rec, found, getErr := t.Store.GetData(ctx, dataID)
		if getErr != nil {
			return nil, nil, getErr
		}
		if !found {
			return nil, nil, fmt.Errorf("data with ID %q not found in memory", dataID)
		}
		varName := "data_" + strings.ReplaceAll(dataID, "-", "_")
		dataValues[varName] = rec.Data
		dataInfo[varName] = map[string]any{
			"data_id":     dataID,
			"description": desc,
			"is_table":    rec.IsTable,
			"columns":     rec.Columns,
			"preview":     previewOf(rec.Data),
		}
	}
	return dataInfo, dataValues, nil
}

func previewOf(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if len(s) > 1000 {
		return s[:1000] + "..."
	}
	return s
}

func formatSuccess(operation, stdout string) string {
	var b strings.Builder
	b.WriteString("Code executed successfully:\n")
	b.WriteString(fmt.Sprintf("```%s\n", operation))
	out := strings.TrimSpace(stdout)
	if out == "" {
		out = "[No output]"
	}
	b.WriteString(out)
	b.WriteString("\n```")
	return b.String()
}

func formatFailure(operation, lastErr string, attempts int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Failed to execute %q after %d attempts.\n\n", operation, attempts))
	b.WriteString("Error:\n```\n")
	b.WriteString(strings.TrimSpace(lastErr))
	b.WriteString("\n```\n\n")
	b.WriteString("Please try again with a more specific task description or simpler requirements.")
	return b.String()
}
