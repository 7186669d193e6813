package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is a flat, name-keyed map of tools, guarded by a mutex. There
// is no cross-process tool bus; tools run in-process within the worker
// that owns them.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, returning an error if the name is already taken —
// a plugin tool name is never silently overwritten.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Lookup resolves an action name to a Tool, trying an exact match first
// and falling back to a case-insensitive scan.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t, true
	}
	lower := strings.ToLower(name)
	for toolName, t := range r.tools {
		if strings.ToLower(toolName) == lower {
			return t, true
		}
	}
	return nil, false
}

// Names returns every registered tool name available to the given role,
// sorted for deterministic prompt rendering. An empty role returns every
// tool regardless of its role restriction.
func (r *Registry) Names(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, t := range r.tools {
		if allowedForRole(t, role) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Describe renders the "name: description" lines used in a worker's system
// prompt, filtered by role.
func (r *Registry) Describe(role string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var lines []string
	for name, t := range r.tools {
		if !allowedForRole(t, role) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", name, t.Description()))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func allowedForRole(t Tool, role string) bool {
	roles := t.Roles()
	if len(roles) == 0 || role == "" {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Invoke validates params against the tool's schema (if any) and executes
// it, returning the observation string.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (string, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("tool %q not registered", name)
	}
	if schema := t.ParamSchema(); schema != nil {
		if s, ok := schema.(*jsonschema.Schema); ok {
			if err := s.Validate(toAnyMap(params)); err != nil {
				return "", fmt.Errorf("validate %s parameters: %w", name, err)
			}
		}
	}
	return t.Execute(ctx, params)
}

func toAnyMap(params map[string]any) any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
