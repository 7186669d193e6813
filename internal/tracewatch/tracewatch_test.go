package tracewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/telemetry"
)

func TestWatcherObservesTimeoutMarker(t *testing.T) {
	traceDir := t.TempDir()
	sessionDir := filepath.Join(traceDir, "sess-1")
	require.NoError(t, os.MkdirAll(sessionDir, 0o755))

	w := New(traceDir, "sess-1", telemetry.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "exec-42_timeout.flag"), []byte("timeout\n"), 0o644))

	select {
	case ev := <-w.Events():
		require.Equal(t, "exec-42", ev.ExecutorID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for timeout marker event")
	}
}

func TestWatcherIgnoresNonMarkerFiles(t *testing.T) {
	traceDir := t.TempDir()
	sessionDir := filepath.Join(traceDir, "sess-2")
	require.NoError(t, os.MkdirAll(sessionDir, 0o755))

	w := New(traceDir, "sess-2", telemetry.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "unrelated.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "exec-7_timeout.flag"), []byte("timeout\n"), 0o644))

	select {
	case ev := <-w.Events():
		require.Equal(t, "exec-7", ev.ExecutorID, "the unrelated file must not surface as an event")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for timeout marker event")
	}
}

func TestWatcherMissingDirectoryIsNotFatal(t *testing.T) {
	traceDir := t.TempDir()
	w := New(traceDir, "never-created", telemetry.NewNoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Start(ctx))
	<-ctx.Done()
}
