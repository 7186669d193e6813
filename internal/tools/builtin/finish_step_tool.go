package builtin

import "context"

// FinishStepTool exists only so toolregistry.Describe lists finish_step
// among the worker's available actions; it is never actually invoked
// through the registry. The ReAct loop in internal/worker recognizes
// action == "finish_step" and exits the loop before dispatch — the
// completion sentinel itself has no side effects on Memory.
type FinishStepTool struct{}

func (FinishStepTool) Name() string    { return "finish_step" }
func (FinishStepTool) Roles() []string { return []string{"Executor"} }
func (FinishStepTool) ParamSchema() any { return nil }
func (FinishStepTool) Description() string {
	return "Mark the current step as complete and provide structured output with result and edge status updates.\n\n" +
		"Required Parameters:\n" +
		"- result: Detailed summary of your observations, findings, and conclusions from this step\n" +
		"- status: Status of the step, either 'completed' or 'failed'\n" +
		"- set_edge_status: Map of edge name to its new status ('enabled' or 'disabled')\n\n" +
		"If the step fails, disable all of this step's output edges."
}

func (FinishStepTool) Execute(context.Context, map[string]any) (string, error) {
	panic("finish_step is intercepted by the worker loop and never dispatched through the tool registry")
}
