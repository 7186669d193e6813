// Package llmjson decodes and validates the {thought,action,parameters} JSON
// object a worker's model turn is expected to produce, tolerating the
// fenced-code-block wrapping models commonly emit.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Action is one parsed ReAct turn: a thought, the tool (or finish_step) to
// invoke, and its parameters.
type Action struct {
	Thought    string         `json:"thought"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// schema validates the decoded shape: action is required, parameters
// defaults to an object so tools always receive a map rather than nil.
var schema = mustCompileSchema(`{
	"type": "object",
	"required": ["action"],
	"properties": {
		"thought": {"type": "string"},
		"action": {"type": "string"},
		"parameters": {"type": "object"}
	}
}`)

func mustCompileSchema(src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("action.json", mustUnmarshal(src)); err != nil {
		panic(err)
	}
	s, err := c.Compile("action.json")
	if err != nil {
		panic(err)
	}
	return s
}

func mustUnmarshal(src string) any {
	var v any
	if err := json.Unmarshal([]byte(src), &v); err != nil {
		panic(err)
	}
	return v
}

// StripFence removes a leading ```json / trailing ``` fence, if present,
// before decoding.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Parse strips any code fence, decodes the JSON object, and validates it
// against the {thought,action,parameters} shape. Parameters defaults to an
// empty map when the model omits it.
func Parse(raw string) (Action, error) {
	stripped := StripFence(raw)

	var doc any
	if err := json.Unmarshal([]byte(stripped), &doc); err != nil {
		return Action{}, fmt.Errorf("decode action json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Action{}, fmt.Errorf("validate action json: %w", err)
	}

	var action Action
	if err := json.Unmarshal([]byte(stripped), &action); err != nil {
		return Action{}, fmt.Errorf("decode action json: %w", err)
	}
	if action.Parameters == nil {
		action.Parameters = map[string]any{}
	}
	return action, nil
}

// FallbackFailed builds the synthetic finish_step verdict used when the LLM
// response cannot be parsed after the configured retry budget is exhausted.
func FallbackFailed(reason string) Action {
	return Action{
		Thought: reason,
		Action:  "finish_step",
		Parameters: map[string]any{
			"result":          "LLM response decoding failed",
			"status":          "failed",
			"set_edge_status": map[string]any{},
		},
	}
}

// EndShortcut is the fixed finish_step verdict used for the terminal "end"
// node, bypassing the model entirely.
func EndShortcut() Action {
	return Action{
		Thought: "No further actions required. Ending step execution.",
		Action:  "finish_step",
		Parameters: map[string]any{
			"result":          "The full TSG execution completed",
			"status":          "completed",
			"set_edge_status": map[string]any{},
		},
	}
}
