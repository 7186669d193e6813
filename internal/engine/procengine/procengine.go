// Package procengine implements engine.Engine by re-invoking the stepfly
// binary as a "stepfly worker" subprocess per dispatched node, so each node
// runs in its own isolated OS-level process. The parent tracks the
// *exec.Cmd and kills it on the scheduler's hard wall-clock timeout;
// reaping happens via cmd.Wait() in a background goroutine so Alive() never
// blocks the scheduler's single driver thread.
package procengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/microsoft/stepfly/internal/engine"
)

// Engine spawns one OS process per dispatched node.
type Engine struct {
	// BinaryPath is the stepfly executable to re-invoke. Empty means
	// os.Executable() (the currently running binary).
	BinaryPath string
	// ConfigPath is forwarded to the worker subprocess as --config, if set.
	ConfigPath string
	// Stdout/Stderr receive the worker subprocess's output; nil discards it.
	Stdout, Stderr io.Writer
}

// New constructs a procengine.Engine.
func New(binaryPath, configPath string) *Engine {
	return &Engine{BinaryPath: binaryPath, ConfigPath: configPath}
}

func (e *Engine) Dispatch(ctx context.Context, req engine.DispatchRequest) (engine.Handle, error) {
	bin := e.BinaryPath
	if bin == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve stepfly binary: %w", err)
		}
		bin = self
	}

	args := []string{"worker", "--session", req.SessionID, "--node", req.NodeName, "--executor", req.ExecutorID}
	if e.ConfigPath != "" {
		args = append(args, "--config", e.ConfigPath)
	}

	cmd := exec.Command(bin, args...)
	cmd.Stdout = outOrDiscard(e.Stdout)
	cmd.Stderr = outOrDiscard(e.Stderr)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process for node %q: %w", req.NodeName, err)
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

func outOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

type handle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (h *handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *handle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}
