package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/microsoft/stepfly/internal/ident"
)

// schema lays out the records/keys/agents/context/snippets shapes as plain
// tables, so a scheduler process and every worker process it forks can each
// open their own *sql.DB handle against the same file and observe each
// other's writes through SQLite's own locking rather than a Go-level mutex
// that only one process could see.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	data_type   TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	agent_id    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	is_table    INTEGER NOT NULL DEFAULT 0,
	columns     TEXT NOT NULL DEFAULT '[]',
	summary     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS record_keys (
	key       TEXT PRIMARY KEY,
	record_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS agents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS agent_context (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id    TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_context_agent ON agent_context(agent_id);
CREATE TABLE IF NOT EXISTS snippets (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL,
	plugin_id   TEXT NOT NULL DEFAULT '',
	tsg_name    TEXT NOT NULL DEFAULT '',
	parameters  TEXT NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	timestamp   TEXT NOT NULL
);
`

// SQLiteStore implements Store on top of a modernc.org/sqlite database file
// opened at a session-scoped directory, in WAL mode with a busy-timeout so
// concurrent OS processes can share it. A worker spawned by procengine opens
// its own *SQLiteStore against the same path the scheduler is holding
// open — handle-sharing an embedded store that takes an exclusive
// directory lock could not provide.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) a session's Shared Memory Service database
// at dir/memory.db. Every caller — the scheduler process and each worker
// process it forks — calls Open independently against the same dir.
func Open(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory store dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "memory.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory store at %s: %w", path, err)
	}
	// A single SQLite connection per process, serialized, is what lets
	// several OS processes share one file without stepping on each
	// other's writes; busy_timeout makes a writer wait out another
	// process's write lock instead of failing immediately.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RegisterAgent(ctx context.Context, name, agentID string) (string, error) {
	if agentID == "" {
		agentID = ident.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO agents (id, name, created_at) VALUES (?, ?, ?)`,
		agentID, name, time.Now().UTC().Format(time.RFC3339Nano))
	return agentID, err
}

func (s *SQLiteStore) agentExists(ctx context.Context, agentID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, agentID).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) AddAgentContext(ctx context.Context, agentID, key string, value any, description string) error {
	found, err := s.agentExists(ctx, agentID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("agent %q not registered", agentID)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal context value: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_context (agent_id, key, value, description, timestamp) VALUES (?, ?, ?, ?, ?)`,
		agentID, key, string(raw), description, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetAgentContext(ctx context.Context, agentID string, limit int, messagesOnly bool) ([]ContextEntry, error) {
	found, err := s.agentExists(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("agent %q not registered", agentID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, description, timestamp FROM agent_context WHERE agent_id = ? ORDER BY seq ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query agent context: %w", err)
	}
	defer rows.Close()

	var entries []ContextEntry
	for rows.Next() {
		var (
			key, raw, description, ts string
		)
		if err := rows.Scan(&key, &raw, &description, &ts); err != nil {
			return nil, fmt.Errorf("scan agent context row: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("unmarshal context value: %w", err)
		}
		timestamp, _ := time.Parse(time.RFC3339Nano, ts)
		entry := ContextEntry{Key: key, Value: value, Description: description, Timestamp: timestamp}
		if messagesOnly && !isMessageEntry(entry) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent context: %w", err)
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// isMessageEntry reports whether entry.Value is a role/content message, the
// shape get_context(messages_only=true) filters down to.
func isMessageEntry(entry ContextEntry) bool {
	m, ok := entry.Value.(map[string]any)
	if !ok {
		return false
	}
	_, hasRole := m["role"]
	_, hasContent := m["content"]
	return hasRole && hasContent
}

func (s *SQLiteStore) AddData(ctx context.Context, rec Record) (string, error) {
	return s.addData(ctx, rec)
}

func (s *SQLiteStore) addData(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = ident.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if text, ok := rec.Data.(string); ok && len(text) > 1000 {
		rec.Summary = generateSummary(text)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin add data: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecord(ctx, tx, rec); err != nil {
		return "", err
	}
	if key, ok := rec.Metadata["key"].(string); ok && key != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO record_keys (key, record_id) VALUES (?, ?)`, key, rec.ID); err != nil {
			return "", fmt.Errorf("index data by key %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit add data: %w", err)
	}
	return rec.ID, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal record metadata: %w", err)
	}
	columns, err := json.Marshal(rec.Columns)
	if err != nil {
		return fmt.Errorf("marshal record columns: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO records
			(id, data, data_type, timestamp, agent_id, description, metadata, is_table, columns, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(data), rec.DataType, rec.Timestamp.Format(time.RFC3339Nano),
		rec.AgentID, rec.Description, string(metadata), boolToInt(rec.IsTable), string(columns), rec.Summary)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) AddTable(ctx context.Context, rows []map[string]any, columns []string, dataType, agentID, description string, metadata map[string]any) (string, error) {
	rec := Record{
		Data:        rows,
		DataType:    dataType,
		AgentID:     agentID,
		Description: description,
		Metadata:    metadata,
		IsTable:     true,
		Columns:     columns,
	}
	return s.addData(ctx, rec)
}

func (s *SQLiteStore) GetData(ctx context.Context, id string) (Record, bool, error) {
	return s.getRecordByID(ctx, id)
}

func (s *SQLiteStore) getRecordByID(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data, data_type, timestamp, agent_id, description, metadata, is_table, columns, summary
		FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec               Record
		data, metadata    string
		columns, ts       string
		isTable           int
	)
	if err := row.Scan(&rec.ID, &data, &rec.DataType, &ts, &rec.AgentID, &rec.Description, &metadata, &isTable, &columns, &rec.Summary); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return Record{}, fmt.Errorf("unmarshal record data: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("unmarshal record metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(columns), &rec.Columns); err != nil {
		return Record{}, fmt.Errorf("unmarshal record columns: %w", err)
	}
	rec.IsTable = isTable != 0
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return rec, nil
}

func (s *SQLiteStore) GetDataSummary(ctx context.Context, id string) (string, error) {
	rec, found, err := s.GetData(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("Error: Data with ID %s not found", id), nil
	}
	if rec.IsTable {
		rows, ok := toRows(rec.Data)
		if !ok {
			return fmt.Sprintf("Error: table data %s is malformed", id), nil
		}
		return tableSummary(rows, rec.Columns), nil
	}
	if rec.Summary != "" {
		return rec.Summary, nil
	}
	if text, ok := rec.Data.(string); ok {
		return generateSummary(text), nil
	}
	return fmt.Sprintf("Data of type %s (no detailed summary available)", rec.DataType), nil
}

func (s *SQLiteStore) GetDataSection(ctx context.Context, id string, startLine, numLines int) (string, error) {
	rec, found, err := s.GetData(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("Error: Data with ID %s not found", id), nil
	}
	if rec.IsTable {
		rows, ok := toRows(rec.Data)
		if !ok {
			return fmt.Sprintf("Error: table data %s is malformed", id), nil
		}
		total := len(rows)
		if startLine >= total {
			return fmt.Sprintf("Error: Start line %d exceeds total rows %d", startLine, total), nil
		}
		end := min(startLine+numLines, total)
		return fmt.Sprintf("Rows %d-%d of %d from table %s:\n\n%s", startLine+1, end, total, id, renderRows(rows[startLine:end], rec.Columns)), nil
	}
	text, ok := rec.Data.(string)
	if !ok {
		return fmt.Sprintf("Error: Data with ID %s is not text data", id), nil
	}
	lines := strings.Split(text, "\n")
	total := len(lines)
	if startLine >= total {
		return fmt.Sprintf("Error: Start line %d exceeds total lines %d", startLine, total), nil
	}
	end := min(startLine+numLines, total)
	return fmt.Sprintf("Lines %d-%d of %d from data %s:\n\n%s", startLine+1, end, total, id, strings.Join(lines[startLine:end], "\n")), nil
}

func (s *SQLiteStore) SearchData(ctx context.Context, id, term string) (string, error) {
	rec, found, err := s.GetData(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("Error: Data with ID %s not found", id), nil
	}
	if rec.IsTable {
		rows, ok := toRows(rec.Data)
		if !ok {
			return fmt.Sprintf("Error: table data %s is malformed", id), nil
		}
		var matches []map[string]any
		for _, row := range rows {
			for _, col := range rec.Columns {
				if strings.Contains(fmt.Sprintf("%v", row[col]), term) {
					matches = append(matches, row)
					break
				}
			}
		}
		if len(matches) == 0 {
			return fmt.Sprintf("No matches found for '%s' in table %s", term, id), nil
		}
		sample := matches
		extra := 0
		if len(sample) > 10 {
			extra = len(sample) - 10
			sample = sample[:10]
		}
		out := fmt.Sprintf("Found %d matches for '%s' in table %s:\n\n%s", len(matches), term, id, renderRows(sample, rec.Columns))
		if extra > 0 {
			out += fmt.Sprintf("\n\n... and %d more matches", extra)
		}
		return out, nil
	}
	text, ok := rec.Data.(string)
	if !ok {
		return fmt.Sprintf("Error: Data with ID %s is not text data", id), nil
	}
	var matches []string
	for i, line := range strings.Split(text, "\n") {
		if strings.Contains(line, term) {
			matches = append(matches, fmt.Sprintf("Line %d: %s", i+1, strings.TrimSpace(line)))
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for '%s' in data %s", term, id), nil
	}
	out := fmt.Sprintf("Found %d matches for '%s' in data %s:\n\n", len(matches), term, id)
	shown := matches
	extra := 0
	if len(shown) > 10 {
		extra = len(shown) - 10
		shown = shown[:10]
	}
	out += strings.Join(shown, "\n")
	if extra > 0 {
		out += fmt.Sprintf("\n... and %d more matches", extra)
	}
	return out, nil
}

func (s *SQLiteStore) ListData(ctx context.Context, dataType, agentID string) (string, error) {
	query := `SELECT id, data, data_type, timestamp, agent_id, description, metadata, is_table, columns, summary FROM records WHERE 1=1`
	var args []any
	if dataType != "" {
		query += " AND data_type = ?"
		args = append(args, dataType)
	}
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("list data: %w", err)
	}
	defer rows.Close()

	var matched []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return "", fmt.Errorf("list data: %w", err)
		}
		matched = append(matched, rec)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list data: %w", err)
	}

	if len(matched) == 0 {
		var filters []string
		if dataType != "" {
			filters = append(filters, fmt.Sprintf("type '%s'", dataType))
		}
		if agentID != "" {
			filters = append(filters, fmt.Sprintf("agent '%s'", agentID))
		}
		suffix := ""
		if len(filters) > 0 {
			suffix = " matching " + strings.Join(filters, " and ")
		}
		return fmt.Sprintf("No data%s found", suffix), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d data items", len(matched))
	if dataType != "" {
		fmt.Fprintf(&b, " of type '%s'", dataType)
	}
	if agentID != "" {
		fmt.Fprintf(&b, " for agent '%s'", agentID)
	}
	b.WriteString(":\n\n")
	for _, rec := range matched {
		fmt.Fprintf(&b, "ID: %s\nType: %s\n", rec.ID, rec.DataType)
		if rec.IsTable {
			b.WriteString("Format: Table\n")
		}
		fmt.Fprintf(&b, "Time: %s\n", rec.Timestamp.Format(time.RFC3339))
		if rec.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", rec.Description)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (s *SQLiteStore) GetDataByKey(ctx context.Context, key string) (Record, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT record_id FROM record_keys WHERE key = ?`, key).Scan(&id)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("look up key %q: %w", key, err)
	}
	return s.getRecordByID(ctx, id)
}

// UpdateDataByKey replaces the record addressed by key, reusing the
// existing record's id (found via record_keys) inside one transaction
// rather than minting a new id and repointing the key — there is only ever
// one records row per key by construction, so no old row is ever left
// orphaned.
func (s *SQLiteStore) UpdateDataByKey(ctx context.Context, key string, rec Record) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin update by key: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT record_id FROM record_keys WHERE key = ?`, key).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		if rec.DataType == "" {
			rec.DataType = "new_data"
		}
		if rec.ID == "" {
			rec.ID = ident.New()
		}
	case err != nil:
		return "", fmt.Errorf("look up key %q: %w", key, err)
	default:
		existing, existingErr := scanRecord(tx.QueryRowContext(ctx, `
			SELECT id, data, data_type, timestamp, agent_id, description, metadata, is_table, columns, summary
			FROM records WHERE id = ?`, existingID))
		if existingErr != nil {
			return "", fmt.Errorf("read existing record for key %q: %w", key, existingErr)
		}
		if rec.DataType == "" {
			rec.DataType = existing.DataType
		}
		if rec.Description == "" {
			rec.Description = existing.Description
		}
		rec.ID = existingID
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if text, ok := rec.Data.(string); ok && len(text) > 1000 {
		rec.Summary = generateSummary(text)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	rec.Metadata["key"] = key

	if err := insertRecord(ctx, tx, rec); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO record_keys (key, record_id) VALUES (?, ?)`, key, rec.ID); err != nil {
		return "", fmt.Errorf("index data by key %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit update by key: %w", err)
	}
	return rec.ID, nil
}

func (s *SQLiteStore) StoreSnippet(ctx context.Context, snip Snippet) (string, error) {
	if snip.ID == "" {
		snip.ID = ident.New()
	}
	if snip.Timestamp.IsZero() {
		snip.Timestamp = time.Now().UTC()
	}
	parameters, err := json.Marshal(snip.Parameters)
	if err != nil {
		return "", fmt.Errorf("marshal snippet parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snippets (id, code, plugin_id, tsg_name, parameters, description, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snip.ID, snip.Code, snip.PluginID, snip.TSGName, string(parameters), snip.Description,
		snip.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("store snippet %s: %w", snip.ID, err)
	}
	return snip.ID, nil
}

func (s *SQLiteStore) GetSnippet(ctx context.Context, id string) (Snippet, bool, error) {
	var (
		snip       Snippet
		parameters string
		ts         string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, plugin_id, tsg_name, parameters, description, timestamp FROM snippets WHERE id = ?`, id).
		Scan(&snip.ID, &snip.Code, &snip.PluginID, &snip.TSGName, &parameters, &snip.Description, &ts)
	if err == sql.ErrNoRows {
		return Snippet{}, false, nil
	}
	if err != nil {
		return Snippet{}, false, fmt.Errorf("get snippet %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(parameters), &snip.Parameters); err != nil {
		return Snippet{}, false, fmt.Errorf("unmarshal snippet parameters: %w", err)
	}
	snip.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return snip, true, nil
}

func toRows(data any) ([]map[string]any, bool) {
	switch v := data.(type) {
	case []map[string]any:
		return v, true
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			rows = append(rows, m)
		}
		return rows, true
	default:
		return nil, false
	}
}
