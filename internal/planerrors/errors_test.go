package planerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigMissingWrapsSentinelWithKey(t *testing.T) {
	err := ConfigMissing("llm.api_key")
	require.ErrorIs(t, err, ErrConfigMissing)
	require.Contains(t, err.Error(), "llm.api_key")
}

func TestBadPlanEdgeWrapsSentinelWithName(t *testing.T) {
	err := BadPlanEdge("e_missing")
	require.ErrorIs(t, err, ErrBadPlan)
	require.Contains(t, err.Error(), `"e_missing"`)
}

func TestBadPlanNodeWrapsSentinelWithName(t *testing.T) {
	err := BadPlanNode("phantom_step")
	require.ErrorIs(t, err, ErrBadPlan)
	require.Contains(t, err.Error(), "phantom_step")
}

func TestBadPlanNoInputsWrapsSentinel(t *testing.T) {
	err := BadPlanNoInputs("check_host_health")
	require.ErrorIs(t, err, ErrBadPlan)
	require.Contains(t, err.Error(), "no input edges")
}

func TestDistinctSentinelsDoNotCrossMatch(t *testing.T) {
	require.False(t, errors.Is(ConfigMissing("x"), ErrBadPlan))
	require.False(t, errors.Is(BadPlanEdge("y"), ErrConfigMissing))
}
