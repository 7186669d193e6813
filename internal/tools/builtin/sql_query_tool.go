package builtin

import (
	"context"
	"fmt"

	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/sqlstore"
)

// SQLQueryTool executes a direct query string or a stored plugin snippet
// against an external SQLite database.
// Results are always stashed into the Shared Memory Service rather than
// inlined into the ReAct transcript, the same reference-not-payload
// discipline the plugin adapter uses for generated SQL.
type SQLQueryTool struct {
	Store       memstore.Store
	DefaultPath string
	Open        func(path string) (*sqlstore.DB, error)
}

func (SQLQueryTool) Name() string    { return "sql_query_tool" }
func (SQLQueryTool) Roles() []string { return []string{"Executor"} }
func (SQLQueryTool) ParamSchema() any { return nil }
func (SQLQueryTool) Description() string {
	return "Execute SQL queries against a database.\n\n" +
		"Required Parameters (choose one):\n" +
		"- query_string: Full SQL query to execute directly\n" +
		"- snippet_id: ID of a stored SQL query snippet in memory\n\n" +
		"Optional Parameters:\n" +
		"- database_path: Path to SQLite database file\n" +
		"- result_description: Description for the stored result"
}

func (t SQLQueryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	snippetID, _ := params["snippet_id"].(string)
	queryString, _ := params["query_string"].(string)
	dbPath, _ := params["database_path"].(string)
	description, _ := params["result_description"].(string)

	var sqlQuery string
	switch {
	case snippetID != "":
		snip, found, err := t.Store.GetSnippet(ctx, snippetID)
		if err != nil {
			return "", err
		}
		if !found {
			return fmt.Sprintf("Error: SQL snippet with ID '%s' not found in memory.", snippetID), nil
		}
		sqlQuery = snip.Code
	case queryString != "":
		sqlQuery = queryString
	default:
		return "Error: Please provide either 'query_string' or 'snippet_id'.", nil
	}

	if dbPath == "" {
		dbPath = t.DefaultPath
	}

	db, err := t.Open(dbPath)
	if err != nil {
		return fmt.Sprintf("Error executing SQL query: %s", err), nil
	}
	defer db.Close()

	rows, columns, err := db.Query(ctx, sqlQuery)
	if err != nil {
		return fmt.Sprintf("Error executing SQL query: %s", err), nil
	}
	if rows == nil {
		return "Query executed successfully (no results returned).", nil
	}
	if len(rows) == 0 {
		return "Query executed successfully but returned no rows.", nil
	}

	if description == "" {
		description = "SQL query result"
	}
	resultID, err := t.Store.AddTable(ctx, rows, columns, "sql_result", "", description, map[string]any{
		"query":        sqlQuery,
		"database":     dbPath,
		"row_count":    len(rows),
		"column_count": len(columns),
	})
	if err != nil {
		return "", err
	}

	summary, err := t.Store.GetDataSummary(ctx, resultID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Query has been successfully executed. The query results are stored in memory with ID: %s\n"+
		"The description of the result is as follows:\nSummary:\n%s\n\n", resultID, summary), nil
}
