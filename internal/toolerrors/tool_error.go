// Package toolerrors renders tool-dispatch failures as the observation
// strings a worker hands back to the model, keeping the underlying cause
// attached for logs and traces. A ToolError never propagates past the ReAct
// loop: its Error() text is the observation, and the model decides whether
// to retry with adjusted parameters.
package toolerrors

import (
	"fmt"
	"strings"
)

// ToolError describes one failed tool dispatch: which action the worker
// attempted and the observation text the model sees for it.
type ToolError struct {
	Action      string
	observation string
	cause       error
}

// Execution wraps an error returned by a tool's Execute so the observation
// names the action that failed.
func Execution(action string, cause error) *ToolError {
	return &ToolError{
		Action:      action,
		observation: fmt.Sprintf("Error executing %s: %s", action, cause),
		cause:       cause,
	}
}

// NotFound reports an action name that matched no registered tool, listing
// the tools available to the worker's role so the model can correct itself
// on its next turn.
func NotFound(action string, available []string) *ToolError {
	return &ToolError{
		Action:      action,
		observation: fmt.Sprintf("Error: Tool '%s' not found. Available tools: %s", action, strings.Join(available, ", ")),
	}
}

// Error implements error; the text doubles as the observation fed into the
// worker's transcript.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.observation
}

// Unwrap exposes the underlying tool failure to errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}
