// Package engine abstracts "how a worker actually executes" away from the
// scheduler: an abstract seam with a concrete backend behind it. The only
// backend that satisfies the fault-isolation and hard-kill requirements is
// procengine, which runs each node in its own OS process.
package engine

import "context"

// DispatchRequest identifies one worker invocation.
type DispatchRequest struct {
	SessionID  string
	NodeName   string
	ExecutorID string
}

// Handle tracks one dispatched worker's OS process.
type Handle interface {
	// Alive reports whether the underlying process is still running,
	// without blocking.
	Alive() bool
	// Wait blocks until the process exits or ctx is done, returning the
	// process's exit error (nil on a clean exit).
	Wait(ctx context.Context) error
	// Kill forcibly terminates the process; the scheduler uses it to
	// enforce the hard wall-clock timeout.
	Kill() error
}

// Engine dispatches a node to a worker and returns a handle the scheduler
// uses to reap it.
type Engine interface {
	Dispatch(ctx context.Context, req DispatchRequest) (Handle, error)
}
