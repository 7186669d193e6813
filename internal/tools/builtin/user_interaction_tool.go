package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/microsoft/stepfly/internal/tools/userinteraction"
)

// UserInteractionTool relays info/question/options turns to a human over
// a userinteraction.Transport. A question times out after Timeout and
// delivers the empty string rather than blocking the worker process
// forever.
type UserInteractionTool struct {
	Transport userinteraction.Transport
	Timeout   time.Duration // default 300s
}

func (UserInteractionTool) Name() string    { return "user_interaction" }
func (UserInteractionTool) Roles() []string { return []string{"Executor"} }
func (UserInteractionTool) ParamSchema() any { return nil }
func (UserInteractionTool) Description() string {
	return "Interact with the user to gather information, provide updates, or get user choices.\n\n" +
		"Required Parameters:\n" +
		"- message: Text to display to the user\n\n" +
		"Optional Parameters:\n" +
		"- type: Type of interaction (\"info\", \"question\", or \"options\", default: \"info\")\n" +
		"- options: List of options for type=\"options\""
}

func (t UserInteractionTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return "Error: 'message' is required.", nil
	}
	kind, _ := params["type"].(string)
	if kind == "" {
		kind = "info"
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch kind {
	case "info":
		if err := t.Transport.Info(ctx, message); err != nil {
			return fmt.Sprintf("Error during user interaction: %s", err), nil
		}
		return "Message displayed to user.", nil

	case "question":
		reply, err := t.Transport.Ask(ctx, message)
		if err != nil {
			if ctx.Err() != nil {
				return "User response: ", nil
			}
			return fmt.Sprintf("Error during user interaction: %s", err), nil
		}
		return fmt.Sprintf("User response: %s", reply), nil

	case "options":
		options, ok := toStringSlice(params["options"])
		if !ok || len(options) == 0 {
			return "Error: options parameter must be a non-empty list for type=options", nil
		}
		idx, err := t.Transport.Choose(ctx, message, options)
		if err != nil {
			if ctx.Err() != nil {
				return "User response: ", nil
			}
			return fmt.Sprintf("Invalid choice: %s", err), nil
		}
		return fmt.Sprintf("User selected: %s", options[idx]), nil

	default:
		return fmt.Sprintf("Unsupported interaction type: %s", kind), nil
	}
}

func toStringSlice(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
