package supervisor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/planerrors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewWithMissingMappingFileIsNotAnError(t *testing.T) {
	s, err := New(Config{IncidentMapping: filepath.Join(t.TempDir(), "absent.json")}, nil)
	require.NoError(t, err)

	_, err = s.Resolve("INC-1")
	require.ErrorIs(t, err, ErrNoMapping)
}

func TestResolveReturnsMappedTSG(t *testing.T) {
	dir := t.TempDir()
	mappingPath := filepath.Join(dir, "mapping.json")
	mapping, err := json.Marshal(map[string]string{"INC-1001": "checkout_regression.md"})
	require.NoError(t, err)
	writeFile(t, mappingPath, string(mapping))

	s, err := New(Config{IncidentMapping: mappingPath}, nil)
	require.NoError(t, err)

	name, err := s.Resolve("INC-1001")
	require.NoError(t, err)
	require.Equal(t, "checkout_regression.md", name)
}

func TestInitMissingIncidentFileIsConfigMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{TSGDir: dir, PlanDAGDir: dir}, nil)
	require.NoError(t, err)

	store, err := memstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	err = s.Init(context.Background(), store, "INC-1", filepath.Join(dir, "missing.txt"), "tsg.md")
	require.ErrorIs(t, err, planerrors.ErrConfigMissing)
}

func TestInitEmptyTSGFileIsConfigMissing(t *testing.T) {
	dir := t.TempDir()
	incidentPath := filepath.Join(dir, "incident.txt")
	writeFile(t, incidentPath, "service is down")
	writeFile(t, filepath.Join(dir, "tsg.md"), "")

	s, err := New(Config{TSGDir: dir, PlanDAGDir: dir}, nil)
	require.NoError(t, err)

	store, err := memstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	err = s.Init(context.Background(), store, "INC-1", incidentPath, "tsg.md")
	require.ErrorIs(t, err, planerrors.ErrConfigMissing)
}

func TestInitSeedsMemoryAndScrubsURLs(t *testing.T) {
	dir := t.TempDir()
	incidentPath := filepath.Join(dir, "incident.txt")
	writeFile(t, incidentPath, "see https://example.com/dashboard for details")
	writeFile(t, filepath.Join(dir, "tsg.md"), "# Step 1\nbody\n")
	writeFile(t, filepath.Join(dir, "tsg_plan_dag.json"), `{"nodes": [
		{"node": "start", "output_edges": [{"edge": "eS_A"}]},
		{"node": "end", "input_edges": [{"edge": "eS_A"}]}
	]}`)

	s, err := New(Config{TSGDir: dir, PlanDAGDir: dir}, nil)
	require.NoError(t, err)

	store, err := memstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, s.Init(ctx, store, "INC-1", incidentPath, "tsg.md"))

	incident, found, err := store.GetDataByKey(ctx, "incident_info")
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, incident.Data, "[URL removed]")
	require.NotContains(t, incident.Data, "https://")

	tsg, found, err := store.GetDataByKey(ctx, "tsg_content")
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, tsg.Data, "Step 1")

	nodeRec, found, err := store.GetDataByKey(ctx, "Node_Status")
	require.NoError(t, err)
	require.True(t, found)
	nodes, err := dagmodel.DecodeNodes(nodeRec.Data)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	edgeRec, found, err := store.GetDataByKey(ctx, "Edge_Status")
	require.NoError(t, err)
	require.True(t, found)
	edges, err := dagmodel.DecodeEdges(edgeRec.Data)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, dagmodel.EdgeEnabled, edges[0].Status)
}

func TestBaseTSGNameStripsVariantSuffixAndExtension(t *testing.T) {
	require.Equal(t, "checkout_regression", baseTSGName("checkout_regression.md"))
	require.Equal(t, "checkout_regression", baseTSGName("checkout_regression_WITH_REFERENCES.md"))
	require.Equal(t, "checkout_regression", baseTSGName("checkout_regression_WITH_PLUGIN_REFERENCES.md"))
}

func TestConclusionReflectsEndNodeStatus(t *testing.T) {
	success := []dagmodel.Node{{Node: "end", Status: dagmodel.NodeFinished}}
	require.Equal(t, "completed with status: success", Conclusion(success))

	failure := []dagmodel.Node{{Node: "end", Status: dagmodel.NodeSkipped}}
	require.Equal(t, "completed with status: failure", Conclusion(failure))
}
