package dagmodel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/planerrors"
)

const samplePlan = `{
  "nodes": [
    {"node": "start", "output_edges": [{"edge": "e1"}]},
    {"node": "investigate", "input_edges": [{"edge": "e1"}], "output_edges": [{"edge": "e2"}]},
    {"node": "end", "input_edges": [{"edge": "e2"}]}
  ]
}`

func TestParseValidPlan(t *testing.T) {
	plan, err := dagmodel.Parse([]byte(samplePlan))
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 3)
}

func TestParseRejectsMissingStart(t *testing.T) {
	_, err := dagmodel.Parse([]byte(`{"nodes": [{"node": "end", "input_edges": [{"edge":"e1"}]}]}`))
	require.ErrorIs(t, err, planerrors.ErrBadPlan)
}

func TestParseRejectsNonStartWithNoInputs(t *testing.T) {
	raw := `{"nodes": [
		{"node": "start", "output_edges": [{"edge":"e1"}]},
		{"node": "orphan"},
		{"node": "end", "input_edges": [{"edge":"e1"}]}
	]}`
	_, err := dagmodel.Parse([]byte(raw))
	require.ErrorIs(t, err, planerrors.ErrBadPlan)
}

func TestParseRejectsDuplicateOutputEdge(t *testing.T) {
	raw := `{"nodes": [
		{"node": "start", "output_edges": [{"edge":"e1"}]},
		{"node": "a", "input_edges": [{"edge":"e1"}], "output_edges": [{"edge":"e2"}]},
		{"node": "b", "input_edges": [{"edge":"e1"}], "output_edges": [{"edge":"e2"}]},
		{"node": "end", "input_edges": [{"edge":"e2"}]}
	]}`
	_, err := dagmodel.Parse([]byte(raw))
	require.ErrorIs(t, err, planerrors.ErrBadPlan)
}

func TestSeedEnablesStartOutputsAndFinishesStart(t *testing.T) {
	plan, err := dagmodel.Parse([]byte(samplePlan))
	require.NoError(t, err)

	nodes, edges := plan.Seed()
	byName := dagmodel.EdgeMap(edges)

	start, ok := findNode(nodes, "start")
	require.True(t, ok)
	require.Equal(t, dagmodel.NodeFinished, start.Status)

	require.Equal(t, dagmodel.EdgeEnabled, byName["e1"].Status)
	require.Equal(t, dagmodel.EdgePending, byName["e2"].Status)

	investigate, ok := findNode(nodes, "investigate")
	require.True(t, ok)
	require.Equal(t, dagmodel.NodePending, investigate.Status)
}

func TestShouldTriggerRequiresNoPendingInput(t *testing.T) {
	plan, err := dagmodel.Parse([]byte(samplePlan))
	require.NoError(t, err)
	nodes, edges := plan.Seed()
	byName := dagmodel.EdgeMap(edges)

	investigate, _ := findNode(nodes, "investigate")
	trigger, endPriority := dagmodel.ShouldTrigger(investigate, byName)
	require.True(t, trigger)
	require.False(t, endPriority)

	end, _ := findNode(nodes, "end")
	trigger, endPriority = dagmodel.ShouldTrigger(end, byName)
	require.False(t, trigger)
	require.False(t, endPriority)
}

func TestShouldTriggerEndIsPriority(t *testing.T) {
	plan, err := dagmodel.Parse([]byte(samplePlan))
	require.NoError(t, err)
	nodes, edges := plan.Seed()
	byName := dagmodel.EdgeMap(edges)
	byName["e2"].Status = dagmodel.EdgeEnabled

	end, _ := findNode(nodes, "end")
	trigger, endPriority := dagmodel.ShouldTrigger(end, byName)
	require.True(t, trigger)
	require.True(t, endPriority)
}

func TestUpdateOutputEdgesRejectsUnknownEdge(t *testing.T) {
	plan, err := dagmodel.Parse([]byte(samplePlan))
	require.NoError(t, err)
	_, edges := plan.Seed()
	byName := dagmodel.EdgeMap(edges)

	err = dagmodel.UpdateOutputEdges(byName, map[string]string{"nonexistent": "enabled"})
	require.ErrorIs(t, err, planerrors.ErrBadPlan)
}

func TestIsExecutionCompleteFalseUntilEndFinishesOrAllEdgesSettle(t *testing.T) {
	plan, err := dagmodel.Parse([]byte(samplePlan))
	require.NoError(t, err)
	nodes, edges := plan.Seed()

	require.False(t, dagmodel.IsExecutionComplete(nodes, edges))

	for i := range nodes {
		if nodes[i].Node == "end" {
			nodes[i].Status = dagmodel.NodeFinished
		}
	}
	require.True(t, dagmodel.IsExecutionComplete(nodes, edges))
}

func findNode(nodes []dagmodel.Node, name string) (dagmodel.Node, bool) {
	for _, n := range nodes {
		if n.Node == name {
			return n, true
		}
	}
	return dagmodel.Node{}, false
}

func TestShouldTriggerEndWaitsForAllInputs(t *testing.T) {
	raw := `{"nodes": [
		{"node": "start", "output_edges": [{"edge":"e1"}, {"edge":"e2"}]},
		{"node": "a", "input_edges": [{"edge":"e1"}], "output_edges": [{"edge":"e3"}]},
		{"node": "b", "input_edges": [{"edge":"e2"}], "output_edges": [{"edge":"e4"}]},
		{"node": "end", "input_edges": [{"edge":"e3"}, {"edge":"e4"}]}
	]}`
	plan, err := dagmodel.Parse([]byte(raw))
	require.NoError(t, err)
	nodes, edges := plan.Seed()
	byName := dagmodel.EdgeMap(edges)

	byName["e3"].Status = dagmodel.EdgeEnabled // e4 still pending

	end, _ := findNode(nodes, "end")
	trigger, endPriority := dagmodel.ShouldTrigger(end, byName)
	require.False(t, trigger, "end must not trigger while another input edge is still pending")
	require.False(t, endPriority)

	byName["e4"].Status = dagmodel.EdgeDisabled
	trigger, endPriority = dagmodel.ShouldTrigger(end, byName)
	require.True(t, trigger)
	require.True(t, endPriority)
}
