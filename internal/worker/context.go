package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/model"
)

// assembleContext builds the worker's initial message history: incident
// description, full TSG document, finished predecessor context, a role
// statement, and the finish_step output requirements for this node's
// output edges, assembled as a system+user message pair to fit the
// model.Client chat contract.
func (w *Worker) assembleContext(ctx context.Context) ([]model.Message, error) {
	node, nodeStatus, err := w.loadNode(ctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Context for %s execution\n\n", w.NodeName)

	if incident, found, err := w.Store.GetDataByKey(ctx, "incident_info"); err == nil && found {
		fmt.Fprintf(&b, "## Incident Information\n%s\n\n<!-- INCIDENT INFO END -->\n\n", renderText(incident.Data))
	}
	if tsg, found, err := w.Store.GetDataByKey(ctx, "tsg_content"); err == nil && found {
		fmt.Fprintf(&b, "## TSG Document\n%s\n\n<!-- TSG DOCUMENT END -->\n\n", renderText(tsg.Data))
	}

	if predecessors := w.predecessorContext(ctx, node, nodeStatus); predecessors != "" {
		b.WriteString("## Previous Steps that have been completed\n")
		b.WriteString(predecessors)
		b.WriteString("<!-- PREVIOUS STEPS END -->\n\n")
	}

	fmt.Fprintf(&b, "# Now, begin your execution for %s!\n\n", w.NodeName)
	fmt.Fprintf(&b,
		"You are responsible for executing a single step, i.e., %s, in the TSG document. "+
			"Your job is to complete the assigned step and provide a structured conclusion with edge status "+
			"updates. Do not execute any step, sub-step, or content that is not part of the assigned step. "+
			"For tasks that do not require tool execution but only reasoning, use `log_reasoning_tool` "+
			"instead.\n\n", w.NodeName)

	b.WriteString(outputRequirements(node))

	system := "You are a TSG step executor. Respond with a single JSON object of the form " +
		`{"thought": "...", "action": "...", "parameters": {...}}` + ", optionally wrapped in a ```json fence. " +
		"Available tools:\n" + w.Tools.Describe(w.Role)

	return []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: b.String() + "\n\nExecute this step and provide a clear result. Focus on specific findings and conclusions."},
	}, nil
}

func (w *Worker) loadNode(ctx context.Context) (dagmodel.Node, []dagmodel.Node, error) {
	rec, found, err := w.Store.GetDataByKey(ctx, "Node_Status")
	if err != nil {
		return dagmodel.Node{}, nil, fmt.Errorf("load Node_Status: %w", err)
	}
	if !found {
		return dagmodel.Node{}, nil, fmt.Errorf("Node_Status not found in memory")
	}
	nodes, err := dagmodel.DecodeNodes(rec.Data)
	if err != nil {
		return dagmodel.Node{}, nil, fmt.Errorf("decode Node_Status: %w", err)
	}
	for _, n := range nodes {
		if n.Node == w.NodeName {
			return n, nodes, nil
		}
	}
	return dagmodel.Node{}, nodes, fmt.Errorf("node %q not found in Node_Status", w.NodeName)
}

// predecessorContext walks Node_Status in declared order up to this node,
// rendering every finished predecessor's description, verdict, and edge
// decisions, plus its reproduced conversation (skipping the first two turns
// — system + priming user message — to avoid duplicating them here), exactly
// as _get_node_context_info does.
func (w *Worker) predecessorContext(ctx context.Context, self dagmodel.Node, all []dagmodel.Node) string {
	var parts []string
	for _, n := range all {
		if n.Node == self.Node {
			break
		}
		if n.Status != dagmodel.NodeFinished {
			continue
		}
		var section strings.Builder
		fmt.Fprintf(&section, "### %s Context\n**Status**: %s\n**Description**: %s\n", n.Node, n.Status, orNA(n.Description))

		if n.Result != "" {
			var verdict Verdict
			if err := json.Unmarshal([]byte(n.Result), &verdict); err == nil {
				fmt.Fprintf(&section, "**Result**: %s\n", verdict.Result)
				section.WriteString("**Edge Status Updates**: ")
				if len(verdict.SetEdgeStatus) == 0 {
					section.WriteString("None\n")
				} else {
					var updates []string
					for edge, status := range verdict.SetEdgeStatus {
						updates = append(updates, fmt.Sprintf("%s->%s", edge, status))
					}
					section.WriteString(strings.Join(updates, "; "))
					section.WriteString("\n")
				}
			}
		}

		if n.ExecutorID != "" {
			if convo := w.renderConversation(ctx, n.ExecutorID); convo != "" {
				section.WriteString("**Conversation History**:\n")
				section.WriteString(convo)
			}
		}

		parts = append(parts, section.String())
	}
	return strings.Join(parts, "\n")
}

// renderConversation reproduces a predecessor's assistant/user turns,
// skipping the first two entries (system priming + first user message) to
// avoid duplicating context already rendered above.
func (w *Worker) renderConversation(ctx context.Context, executorID string) string {
	entries, err := w.Store.GetAgentContext(ctx, executorID, 0, true)
	if err != nil {
		return ""
	}
	var lines []string
	for i, entry := range entries {
		if i < 2 {
			continue
		}
		msg, ok := entry.Value.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)
		content, _ := msg["content"].(string)
		switch role {
		case string(model.RoleAssistant):
			lines = append(lines, "- "+formatAssistantMessage(content))
		case string(model.RoleUser):
			lines = append(lines, "- "+content)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// formatAssistantMessage renders a synthesized "Action: tool `x` is called
// with parameters: y" line from a JSON-encoded {thought,action,parameters}
// assistant turn.
func formatAssistantMessage(content string) string {
	var action struct {
		Action     string         `json:"action"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(content), &action); err != nil {
		return content
	}
	return fmt.Sprintf("Action: tool `%s` is called with parameters: %v", action.Action, action.Parameters)
}

// outputRequirements renders the finish_step template shown to the worker,
// listing this node's output edges and conditions.
func outputRequirements(node dagmodel.Node) string {
	var b strings.Builder
	if len(node.OutputEdges) == 0 {
		b.WriteString("## Output Requirements\n\n" +
			"No output edges defined for this step, which is the end of the workflow.\n" +
			"You can still provide a result summary by calling `finish_step`, but no edge status updates will " +
			"be required.\n\n```json\n{\n  \"thought\": \"Your analysis and conclusion.\",\n  \"action\": \"finish_step\",\n" +
			"  \"parameters\": {\"result\": \"...\", \"status\": \"completed\", \"set_edge_status\": {}}\n}\n```\n\n")
		return b.String()
	}

	b.WriteString("## Output Requirements\n\nWhen your execution is complete, you MUST call `finish_step` as follows:\n\n")
	b.WriteString("```json\n{\n  \"thought\": \"Your analysis and conclusion.\",\n  \"action\": \"finish_step\",\n  \"parameters\": {\n")
	b.WriteString("    \"result\": \"Detailed summary of your findings and conclusions\",\n    \"set_edge_status\": {\n")
	for i, e := range node.OutputEdges {
		comma := ","
		if i == len(node.OutputEdges)-1 {
			comma = ""
		}
		if e.Condition != "" && e.Condition != "none" {
			fmt.Fprintf(&b, "      \"%s\": \"enabled/disabled\" // Based on: %s%s\n", e.Edge, e.Condition, comma)
		} else {
			fmt.Fprintf(&b, "      \"%s\": \"enabled/disabled\"%s\n", e.Edge, comma)
		}
	}
	b.WriteString("    }\n  }\n}\n```\n\n")

	b.WriteString("The available output edges and their conditions are:\n")
	for _, e := range node.OutputEdges {
		if e.Condition != "" && e.Condition != "none" {
			fmt.Fprintf(&b, "- %s: Enable if %s\n", e.Edge, e.Condition)
		} else {
			fmt.Fprintf(&b, "- %s: Unconditional connection\n", e.Edge)
		}
	}
	return b.String()
}

func renderText(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
