// Package sqlstore wraps modernc.org/sqlite (pure Go, no cgo) for the two
// needs sql_query_tool has: running arbitrary queries against an external
// incident database and returning rows the worker can stash into the
// Shared Memory Service.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB executes SQL queries against a SQLite file.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) a SQLite database file at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// Query runs the statement. SELECT/PRAGMA/WITH statements return rows as a
// slice of column->value maps, preserving column order; any other
// statement is executed and returns (nil, nil, nil) rows with no error,
// since writes have no result set to stash.
func (d *DB) Query(ctx context.Context, query string) ([]map[string]any, []string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	isRead := strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "PRAGMA") || strings.HasPrefix(trimmed, "WITH")

	if !isRead {
		if _, err := d.conn.ExecContext(ctx, query); err != nil {
			return nil, nil, fmt.Errorf("execute statement: %w", err)
		}
		return nil, nil, nil
	}

	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, columns, nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
