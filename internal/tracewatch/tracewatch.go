// Package tracewatch watches a session's trace directory for
// worker-timeout marker files and surfaces them as a live event stream.
// Purely observational: the scheduler's own termination/verdict logic
// never depends on this watcher, only on internal/memstore.
package tracewatch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/microsoft/stepfly/internal/telemetry"
)

// TimeoutSuffix is the marker filename suffix dropped by the scheduler for
// each timed-out executor.
const TimeoutSuffix = "_timeout.flag"

// Event is one observed worker timeout.
type Event struct {
	ExecutorID string
	Path       string
}

// Watcher watches one session's trace directory.
type Watcher struct {
	dir    string
	log    telemetry.Logger
	events chan Event
}

// New constructs a Watcher over trace/<session_id>/.
func New(traceDir, sessionID string, log telemetry.Logger) *Watcher {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Watcher{
		dir:    filepath.Join(traceDir, sessionID),
		log:    log,
		events: make(chan Event, 16),
	}
}

// Events returns the channel of observed timeout markers. Closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start begins watching in the background; it returns once the watch is
// established. The watcher stops when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		// The directory may not exist yet if the scheduler hasn't timed out
		// any worker; that's not an error for the watcher's purposes.
		w.log.Debug(ctx, "tracewatch: trace directory not yet present", "dir", w.dir, "error", err)
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				if !strings.HasSuffix(name, TimeoutSuffix) {
					continue
				}
				executorID := strings.TrimSuffix(name, TimeoutSuffix)
				select {
				case w.events <- Event{ExecutorID: executorID, Path: ev.Name}:
				default:
				}
				w.log.Info(ctx, "tracewatch: worker timeout observed", "executor_id", executorID)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.log.Warn(ctx, "tracewatch: watch error", "error", err)
			}
		}
	}()
	return nil
}
