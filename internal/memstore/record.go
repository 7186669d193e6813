// Package memstore implements the Shared Memory Service: the sole
// synchronization channel between the scheduler process and the worker
// processes it forks. The store is backed by modernc.org/sqlite because a
// worker runs as a *separate OS process* and must open its own handle to
// the store using the session id rather than share a Go map. A single
// SQLite file in WAL mode, opened by both the scheduler and every worker it
// forks, is a genuine multi-process store; an embedded KV engine that takes
// an exclusive directory lock (as github.com/dgraph-io/badger/v4 does) is
// not.
package memstore

import "time"

// Record is one stored data item: a step result, TSG content, agent state,
// or any other JSON-serializable payload an agent stashes in memory.
type Record struct {
	ID          string         `json:"id"`
	Data        any            `json:"data"`
	DataType    string         `json:"data_type"`
	Timestamp   time.Time      `json:"timestamp"`
	AgentID     string         `json:"agent_id,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// IsTable marks a Record whose Data is []map[string]any — a tabular
	// result (e.g. a sql_query_tool result set) — so shape/summary queries
	// can report columns/row counts without requiring a dataframe library.
	IsTable bool     `json:"is_table,omitempty"`
	Columns []string `json:"columns,omitempty"`

	// Summary is precomputed for large text payloads (>1000 chars).
	Summary string `json:"summary,omitempty"`
}

// ContextEntry is one entry in an agent's conversation/context history.
type ContextEntry struct {
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Snippet is a stored code/SQL snippet, used by the plugin adapter (C3) to
// hand workers a reference rather than inlining SQL text into the ReAct
// transcript.
type Snippet struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	PluginID    string         `json:"plugin_id,omitempty"`
	TSGName     string         `json:"tsg_name,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
