package plugin

import (
	"context"
	"fmt"

	"github.com/microsoft/stepfly/internal/memstore"
)

// SnippetPrefix is the fixed observation prefix a PluginTool returns on
// success; the worker's deferred sql_query_tool dispatch parses the
// snippet id out of it.
const SnippetPrefix = "SQL query snippet stored with ID: "

// ToolAdapter wraps a Template as a toolregistry.Tool, storing the rendered
// snippet in the Shared Memory Service and handing the worker back a
// reference rather than inlining SQL text into the ReAct transcript.
type ToolAdapter struct {
	Template Template
	Store    memstore.Store
	AgentID  string
}

func (a ToolAdapter) Name() string        { return a.Template.ToolName() }
func (a ToolAdapter) Roles() []string     { return []string{"Executor"} }
func (a ToolAdapter) ParamSchema() any     { return nil }
func (a ToolAdapter) Description() string {
	return fmt.Sprintf("%s Usage: %s with parameters", a.Template.Description, a.Template.ToolName())
}

func (a ToolAdapter) Execute(ctx context.Context, params map[string]any) (string, error) {
	snippet, err := a.Template.Execute(params)
	if err != nil {
		return "", err
	}
	if IsMissingParam(snippet) {
		return snippet, nil
	}

	id, err := a.Store.StoreSnippet(ctx, memstore.Snippet{
		Code:        snippet,
		PluginID:    a.Template.PluginID,
		TSGName:     a.Template.SourceTSG,
		Parameters:  params,
		Description: fmt.Sprintf("Query/code generated from TSG %s", a.Template.SourceTSG),
	})
	if err != nil {
		return "", fmt.Errorf("store plugin snippet: %w", err)
	}
	return SnippetPrefix + id, nil
}
