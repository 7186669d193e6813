// Package sandbox executes the code interpreter's allow-listed analysis
// operations with captured stdout/stderr. The seed set (numeric, tabular,
// datetime, statistics — visualization denied by omission) is built in, so
// a fresh checkout answers analysis tasks with no compiled artifacts. A
// deployment extends or overrides an operation by dropping an
// ahead-of-time-compiled <operation>.wasm into the configured modules
// directory, which runs inside a wazero WASM runtime; the interpreter never
// compiles arbitrary model output, it only selects an operation by name,
// giving the same allow/deny-list guarantee as a full just-in-time compiler
// without requiring one.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Runtime executes allow-listed operations with stdin fed in and
// stdout/stderr captured: built-in operations directly, compiled modules
// each in a fresh wazero runtime per Run call, so a misbehaving module
// cannot leak state into the next one.
type Runtime struct {
	modulesDir string
	timeout    time.Duration
}

// New constructs a Runtime that loads modules from modulesDir.
func New(modulesDir string, timeout time.Duration) *Runtime {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runtime{modulesDir: modulesDir, timeout: timeout}
}

// ErrModuleNotAllowed is returned when the requested operation is neither a
// built-in nor a compiled module in the allow-listed modules directory.
type ErrModuleNotAllowed struct{ Operation string }

func (e ErrModuleNotAllowed) Error() string {
	return fmt.Sprintf("sandbox: operation %q is not an allow-listed module (built-in operations: %s)", e.Operation, describeOps())
}

// Run executes operation with stdin fed in and stdout/stderr captured. A
// compiled <operation>.wasm in the modules directory takes precedence (so a
// deployment can override a built-in); otherwise the built-in operation set
// answers. A module runs under WASI with no filesystem or network access
// beyond stdio.
func (r *Runtime) Run(ctx context.Context, operation string, stdin []byte) (stdout, stderr string, err error) {
	if strings.ContainsAny(operation, "/\\.") {
		return "", "", ErrModuleNotAllowed{Operation: operation}
	}
	path := filepath.Join(r.modulesDir, operation+".wasm")
	code, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("read module %s: %w", path, err)
		}
		op, ok := builtinOps[operation]
		if !ok {
			return "", "", ErrModuleNotAllowed{Operation: operation}
		}
		stdout, stderr = op(stdin)
		return stdout, stderr, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return "", "", fmt.Errorf("instantiate wasi: %w", err)
	}

	var outBuf, errBuf strings.Builder
	cfg := wazero.NewModuleConfig().
		WithStdin(strings.NewReader(string(stdin))).
		WithStdout(&outBuf).
		WithStderr(&errBuf).
		WithStartFunctions("_start")

	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("compile module %s: %w", operation, err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf("run module %s: %w", operation, err)
	}
	defer mod.Close(ctx)

	return outBuf.String(), errBuf.String(), nil
}
