package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRejectsPathTraversalOperationNames(t *testing.T) {
	rt := New(t.TempDir(), 0)

	_, _, err := rt.Run(context.Background(), "../../etc/passwd", nil)
	var notAllowed ErrModuleNotAllowed
	require.True(t, errors.As(err, &notAllowed))
}

func TestRunUnknownOperationIsNotAllowed(t *testing.T) {
	rt := New(t.TempDir(), 0)

	_, _, err := rt.Run(context.Background(), "does_not_exist", nil)
	var notAllowed ErrModuleNotAllowed
	require.True(t, errors.As(err, &notAllowed))
	require.Contains(t, err.Error(), "does_not_exist")
	require.Contains(t, err.Error(), "statistics", "the error must list the built-in operations")
}

func TestRunStatisticsBuiltin(t *testing.T) {
	rt := New(t.TempDir(), 0)

	stdout, stderr, err := rt.Run(context.Background(), "statistics", []byte(`{"values": [1, 2, 3, 4]}`))
	require.NoError(t, err)
	require.Empty(t, stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Equal(t, float64(4), out["count"])
	require.Equal(t, 2.5, out["mean"])
	require.Equal(t, 2.5, out["median"])
	require.Equal(t, float64(1), out["min"])
	require.Equal(t, float64(4), out["max"])
}

func TestRunNumericBuiltin(t *testing.T) {
	rt := New(t.TempDir(), 0)

	stdout, stderr, err := rt.Run(context.Background(), "numeric", []byte(`{"values": [10, 20, 30], "op": "sum"}`))
	require.NoError(t, err)
	require.Empty(t, stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Equal(t, float64(60), out["result"])
}

func TestRunTabularBuiltin(t *testing.T) {
	rt := New(t.TempDir(), 0)

	input := `{"rows": [{"region": "eastus"}, {"region": "westus"}, {"region": "eastus"}], "op": "distinct", "column": "region"}`
	stdout, stderr, err := rt.Run(context.Background(), "tabular", []byte(input))
	require.NoError(t, err)
	require.Empty(t, stderr)

	var out struct {
		Result []string `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Equal(t, []string{"eastus", "westus"}, out.Result)
}

func TestRunDatetimeBuiltin(t *testing.T) {
	rt := New(t.TempDir(), 0)

	input := `{"op": "duration", "start": "2026-08-01 08:30:00", "end": "2026-08-01 09:00:00"}`
	stdout, stderr, err := rt.Run(context.Background(), "datetime", []byte(input))
	require.NoError(t, err)
	require.Empty(t, stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Equal(t, float64(1800), out["seconds"])
}

func TestRunBuiltinBadInputWritesStderr(t *testing.T) {
	rt := New(t.TempDir(), 0)

	stdout, stderr, err := rt.Run(context.Background(), "statistics", []byte(`{"values": []}`))
	require.NoError(t, err)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "non-empty")
}

// emptyStartModule is the smallest valid WASM binary exporting a no-op
// _start: magic+version, a ()->() type, one function of that type, the
// "_start" export, and a body that immediately returns.
var emptyStartModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // \0asm, version 1
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: ()->()
	0x03, 0x02, 0x01, 0x00, // function section: func 0 has type 0
	0x07, 0x0a, 0x01, 0x06, 0x5f, 0x73, 0x74, 0x61, 0x72, 0x74, 0x00, 0x00, // export "_start" func 0
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b, // code section: no locals, end
}

func TestRunCompiledModuleTakesPrecedenceOverBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "statistics.wasm"), emptyStartModule, 0o644))
	rt := New(dir, 0)

	// The on-disk module overrides the built-in: it runs to completion and
	// produces no output, where the built-in would have summarized.
	stdout, stderr, err := rt.Run(context.Background(), "statistics", []byte(`{"values": [1, 2, 3]}`))
	require.NoError(t, err)
	require.Empty(t, stdout)
	require.Empty(t, stderr)
}
