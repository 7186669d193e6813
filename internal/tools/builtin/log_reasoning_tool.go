package builtin

import (
	"context"
	"fmt"
	"strings"
)

// LogReasoningTool records a worker's reasoning without performing any
// computation — the lightweight alternative to code_interpreter for steps
// that only need to reason about data already visible in the transcript.
type LogReasoningTool struct{}

func (LogReasoningTool) Name() string    { return "log_reasoning_tool" }
func (LogReasoningTool) Roles() []string { return []string{"Executor"} }
func (LogReasoningTool) ParamSchema() any { return nil }
func (LogReasoningTool) Description() string {
	return "Log the reasoning process when only reasoning is needed for the action. Use this tool " +
		"instead of code_interpreter when you only need to analyze, extract, or reason about data " +
		"without performing computations.\n\n" +
		"Optional Parameters:\n" +
		"- reasoning (string): Explanation of your reasoning process\n" +
		"- observation (string): Observation about the data or situation"
}

func (LogReasoningTool) Execute(_ context.Context, params map[string]any) (string, error) {
	reasoning, _ := params["reasoning"].(string)
	observation, _ := params["observation"].(string)

	var b strings.Builder
	b.WriteString("Reasoning process logged successfully.\n\n")
	if reasoning != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n\n", reasoning)
	}
	if observation != "" {
		fmt.Fprintf(&b, "Observation: %s\n\n", observation)
	}
	if reasoning == "" && observation == "" {
		b.WriteString("No specific reasoning or observations provided.")
	}
	return b.String(), nil
}
