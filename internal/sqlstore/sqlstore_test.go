package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryCreateInsertSelectRoundtrip(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	_, _, err = db.Query(ctx, "CREATE TABLE hosts (name TEXT, latency_ms INTEGER)")
	require.NoError(t, err)

	_, _, err = db.Query(ctx, "INSERT INTO hosts (name, latency_ms) VALUES ('a', 120)")
	require.NoError(t, err)
	_, _, err = db.Query(ctx, "INSERT INTO hosts (name, latency_ms) VALUES ('b', 340)")
	require.NoError(t, err)

	rows, columns, err := db.Query(ctx, "SELECT name, latency_ms FROM hosts ORDER BY latency_ms")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "latency_ms"}, columns)
	require.Len(t, rows, 2)
	require.Equal(t, "a", rows[0]["name"])
	require.EqualValues(t, 120, rows[0]["latency_ms"])
	require.Equal(t, "b", rows[1]["name"])
}

func TestQueryWriteStatementReturnsNoRows(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	rows, columns, err := db.Query(ctx, "CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	require.Nil(t, rows)
	require.Nil(t, columns)
}

func TestQueryInvalidSQLReturnsError(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	_, _, err = db.Query(ctx, "SELECT * FROM no_such_table")
	require.Error(t, err)
}

func TestQueryPragmaIsTreatedAsRead(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	rows, _, err := db.Query(ctx, "PRAGMA table_info(sqlite_master)")
	require.NoError(t, err)
	require.NotNil(t, rows)
}
