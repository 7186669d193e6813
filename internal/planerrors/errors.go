// Package planerrors defines sentinel errors for malformed PlanDAG and
// configuration input, distinct from tool-execution failures (toolerrors):
// these fail a session outright rather than producing an observation for
// the model to react to.
package planerrors

import (
	"errors"
	"fmt"
)

// ErrConfigMissing is returned when a required input is missing: a
// configuration value, or a session's incident, TSG, or PlanDAG file.
var ErrConfigMissing = errors.New("required configuration value is missing")

// ErrBadPlan is returned when a PlanDAG references an edge or node that
// does not exist in Edge_Status/Node_Status. It indicates an authoring
// bug, never a recoverable runtime condition.
var ErrBadPlan = errors.New("plan dag is malformed")

// ConfigMissing wraps ErrConfigMissing with the offending key.
func ConfigMissing(key string) error {
	return fmt.Errorf("%w: %s", ErrConfigMissing, key)
}

// BadPlanEdge wraps ErrBadPlan with the unknown edge name.
func BadPlanEdge(name string) error {
	return fmt.Errorf("%w: edge %q not found in Edge_Status", ErrBadPlan, name)
}

// BadPlanNode wraps ErrBadPlan with the unknown node name.
func BadPlanNode(name string) error {
	return fmt.Errorf("%w: node %q not found in Node_Status", ErrBadPlan, name)
}

// BadPlanNoInputs wraps ErrBadPlan for a non-start node with zero input
// edges.
func BadPlanNoInputs(node string) error {
	return fmt.Errorf("%w: node %q has no input edges", ErrBadPlan, node)
}
