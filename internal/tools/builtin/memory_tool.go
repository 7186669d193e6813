// Package builtin implements the fixed set of tools every worker
// registers regardless of TSG-specific plugins: memory_tool,
// sql_query_tool, log_reasoning_tool, user_interaction, and
// code_interpreter.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/microsoft/stepfly/internal/memstore"
)

// MemoryTool is the read-only memory accessor every worker gets,
// dispatching on an action parameter (get_data/list_data/
// get_data_summary/get_data_section/search_data/get_code_snippet).
type MemoryTool struct {
	Store memstore.Store
}

func (MemoryTool) Name() string    { return "memory_tool" }
func (MemoryTool) Roles() []string { return nil }
func (MemoryTool) ParamSchema() any { return nil }
func (MemoryTool) Description() string {
	return "Read-only tool for accessing information from the shared memory used by multiple agents.\n\n" +
		"Required Parameters:\n" +
		"- action: Action to perform (get_data, list_data, get_data_summary, get_data_section, search_data, get_code_snippet)\n\n" +
		"Optional Parameters (action-specific):\n" +
		"- data_id: ID of the data to access\n" +
		"- data_type: Filter by data type\n" +
		"- agent_id: Filter by agent ID\n" +
		"- start_line: Starting line/row (default: 0)\n" +
		"- num_lines: Number of lines/rows (default: 20)\n" +
		"- search_term: Text to search for\n" +
		"- snippet_id: ID of the code snippet"
}

func (t MemoryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	action, _ := params["action"].(string)
	switch action {
	case "get_data":
		dataID, _ := params["data_id"].(string)
		if dataID == "" {
			return "Error: data_id parameter is required", nil
		}
		rec, found, err := t.Store.GetData(ctx, dataID)
		if err != nil {
			return "", err
		}
		if !found {
			return fmt.Sprintf("No data found with ID: %s", dataID), nil
		}
		if rec.IsTable {
			summary, err := t.Store.GetDataSummary(ctx, dataID)
			if err != nil {
				return "", err
			}
			return summary + "\n\nUse code_interpreter tool to analyze this table efficiently.", nil
		}
		switch v := rec.Data.(type) {
		case string:
			return v, nil
		default:
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("%v", v), nil
			}
			return string(b), nil
		}

	case "list_data":
		dataType, _ := params["data_type"].(string)
		agentID, _ := params["agent_id"].(string)
		return t.Store.ListData(ctx, dataType, agentID)

	case "get_data_summary":
		dataID, _ := params["data_id"].(string)
		if dataID == "" {
			return "Error: data_id parameter is required", nil
		}
		return t.Store.GetDataSummary(ctx, dataID)

	case "get_data_section":
		dataID, _ := params["data_id"].(string)
		if dataID == "" {
			return "Error: data_id parameter is required", nil
		}
		startLine := intParam(params, "start_line", 0)
		numLines := intParam(params, "num_lines", 20)
		return t.Store.GetDataSection(ctx, dataID, startLine, numLines)

	case "search_data":
		dataID, _ := params["data_id"].(string)
		term, _ := params["search_term"].(string)
		if dataID == "" {
			return "Error: data_id parameter is required", nil
		}
		if term == "" {
			return "Error: search_term parameter is required", nil
		}
		return t.Store.SearchData(ctx, dataID, term)

	case "get_code_snippet":
		snippetID, _ := params["snippet_id"].(string)
		if snippetID == "" {
			return "Error: snippet_id parameter is required", nil
		}
		snip, found, err := t.Store.GetSnippet(ctx, snippetID)
		if err != nil {
			return "", err
		}
		if !found {
			return fmt.Sprintf("Error: Code snippet with ID %s not found", snippetID), nil
		}
		return fmt.Sprintf("```\n%s\n```", snip.Code), nil

	default:
		return fmt.Sprintf("Error: Action '%s' not allowed or not found. This is a read-only tool.", action), nil
	}
}

func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}
