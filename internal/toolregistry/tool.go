// Package toolregistry implements the Tool Registry & Contracts component:
// a flat, name-keyed map of tools available to a worker, filtered by role,
// with JSON-Schema-validated parameters. Tools are registered at process
// startup; there is no code-generation or discovery step.
package toolregistry

import "context"

// Tool is one executable capability a worker can invoke by name.
type Tool interface {
	// Name is the identifier a worker's action field matches against.
	Name() string
	// Description is shown to the model in the tools-available prompt section.
	Description() string
	// Roles restricts which agent roles may invoke this tool; empty means
	// any role may invoke it.
	Roles() []string
	// ParamSchema is the JSON Schema (as a decoded document) parameters must
	// satisfy; nil means no schema validation is performed.
	ParamSchema() any
	// Execute runs the tool and returns the observation string handed back
	// to the model. Tools speak a string-only protocol: no structured tool
	// results feed back into the transcript.
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// Func adapts a plain function into a Tool with no schema or role
// restriction, for simple built-ins.
type Func struct {
	FuncName        string
	FuncDescription string
	FuncRoles       []string
	FuncSchema      any
	FuncExecute     func(ctx context.Context, params map[string]any) (string, error)
}

func (f Func) Name() string        { return f.FuncName }
func (f Func) Description() string { return f.FuncDescription }
func (f Func) Roles() []string     { return f.FuncRoles }
func (f Func) ParamSchema() any     { return f.FuncSchema }
func (f Func) Execute(ctx context.Context, params map[string]any) (string, error) {
	return f.FuncExecute(ctx, params)
}
