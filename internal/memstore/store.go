package memstore

import "context"

// Store is the Shared Memory Service contract every tool and worker depends
// on. Implementations must be safe for use by multiple OS processes sharing
// one session id — the only implementation is the SQLite-backed
// one in sqlitestore.go; a second in-process implementation would not
// satisfy that requirement and so is not provided.
type Store interface {
	RegisterAgent(ctx context.Context, name, agentID string) (string, error)

	AddAgentContext(ctx context.Context, agentID, key string, value any, description string) error
	// GetAgentContext returns agentID's context log. limit <= 0 returns
	// the full log; otherwise only the most recent limit entries. When
	// messagesOnly is set, only entries whose value is a JSON object
	// carrying both a "role" and a "content" field are returned.
	GetAgentContext(ctx context.Context, agentID string, limit int, messagesOnly bool) ([]ContextEntry, error)

	AddData(ctx context.Context, rec Record) (string, error)
	AddTable(ctx context.Context, rows []map[string]any, columns []string, dataType, agentID, description string, metadata map[string]any) (string, error)
	GetData(ctx context.Context, id string) (Record, bool, error)
	GetDataSummary(ctx context.Context, id string) (string, error)
	GetDataSection(ctx context.Context, id string, startLine, numLines int) (string, error)
	SearchData(ctx context.Context, id, term string) (string, error)
	ListData(ctx context.Context, dataType, agentID string) (string, error)

	GetDataByKey(ctx context.Context, key string) (Record, bool, error)
	UpdateDataByKey(ctx context.Context, key string, rec Record) (string, error)

	StoreSnippet(ctx context.Context, s Snippet) (string, error)
	GetSnippet(ctx context.Context, id string) (Snippet, bool, error)

	Close() error
}
