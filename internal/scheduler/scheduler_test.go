package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/engine"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/telemetry"
	"github.com/microsoft/stepfly/internal/worker"
)

// fakeHandle simulates one OS process: alive until either the scripted
// verdict goroutine finishes or Kill is called.
type fakeHandle struct {
	mu     sync.Mutex
	alive  bool
	killed bool
	done   chan struct{}
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{alive: true, done: make(chan struct{})}
}

func (h *fakeHandle) finish() {
	h.mu.Lock()
	if h.alive {
		h.alive = false
		close(h.done)
	}
	h.mu.Unlock()
}

func (h *fakeHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

func (h *fakeHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	if h.alive {
		h.alive = false
		close(h.done)
	}
	return nil
}

// scriptedEngine's verdicts map gives each node a func producing its
// worker.Verdict; a node with no entry simulates a worker that never
// completes (used for the timeout scenario).
type scriptedEngine struct {
	store    memstore.Store
	verdicts map[string]func() *worker.Verdict

	mu         sync.Mutex
	dispatched []string
}

func (e *scriptedEngine) Dispatch(ctx context.Context, req engine.DispatchRequest) (engine.Handle, error) {
	e.mu.Lock()
	e.dispatched = append(e.dispatched, req.NodeName)
	e.mu.Unlock()

	h := newFakeHandle()
	fn := e.verdicts[req.NodeName]
	if fn == nil {
		return h, nil // never completes until the scheduler kills it
	}
	go func() {
		v := fn()
		_, _ = e.store.UpdateDataByKey(context.Background(), req.ExecutorID+"_step_result", memstore.Record{
			Data: map[string]any{
				"node_name":   req.NodeName,
				"executor_id": req.ExecutorID,
				"result":      v,
			},
		})
		h.finish()
	}()
	return h, nil
}

func newTestStore(t *testing.T) memstore.Store {
	t.Helper()
	s, err := memstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

// seedFourNodePlan builds the four-node seed fixture: start -> A -> B -> end.
func seedFourNodePlan(t *testing.T, store memstore.Store) {
	t.Helper()
	plan, err := dagmodel.Parse([]byte(`{"nodes": [
		{"node": "start", "output_edges": [{"edge": "eS_A", "condition": "none"}]},
		{"node": "A", "input_edges": [{"edge": "eS_A", "condition": "none"}], "output_edges": [{"edge": "eA_B", "condition": "none"}]},
		{"node": "B", "input_edges": [{"edge": "eA_B", "condition": "none"}], "output_edges": [{"edge": "eB_E", "condition": "none"}]},
		{"node": "end", "input_edges": [{"edge": "eB_E", "condition": "none"}]}
	]}`))
	require.NoError(t, err)
	nodes, edges := plan.Seed()
	nodeRec, edgeRec := dagmodel.Store(nodes, edges)
	ctx := context.Background()
	_, err = store.UpdateDataByKey(ctx, "Node_Status", nodeRec)
	require.NoError(t, err)
	_, err = store.UpdateDataByKey(ctx, "Edge_Status", edgeRec)
	require.NoError(t, err)
}

func readNodeStatus(t *testing.T, store memstore.Store) map[string]dagmodel.Node {
	t.Helper()
	rec, found, err := store.GetDataByKey(context.Background(), "Node_Status")
	require.NoError(t, err)
	require.True(t, found)
	nodes, err := dagmodel.DecodeNodes(rec.Data)
	require.NoError(t, err)
	byName := make(map[string]dagmodel.Node, len(nodes))
	for _, n := range nodes {
		byName[n.Node] = n
	}
	return byName
}

func readEdgeStatus(t *testing.T, store memstore.Store) map[string]dagmodel.Edge {
	t.Helper()
	rec, found, err := store.GetDataByKey(context.Background(), "Edge_Status")
	require.NoError(t, err)
	require.True(t, found)
	edges, err := dagmodel.DecodeEdges(rec.Data)
	require.NoError(t, err)
	byName := make(map[string]dagmodel.Edge, len(edges))
	for _, e := range edges {
		byName[e.Edge] = e
	}
	return byName
}

func completedVerdict(result string, edges map[string]string) func() *worker.Verdict {
	return func() *worker.Verdict {
		return &worker.Verdict{Result: result, Status: worker.StatusCompleted, SetEdgeStatus: edges}
	}
}

func failedVerdict(result string) func() *worker.Verdict {
	return func() *worker.Verdict {
		return &worker.Verdict{Result: result, Status: worker.StatusFailed, SetEdgeStatus: map[string]string{}}
	}
}

func newScheduler(store memstore.Store, eng engine.Engine, traceDir string) *Scheduler {
	return &Scheduler{
		SessionID: "sess-1",
		Store:     store,
		Engine:    eng,
		Log:       telemetry.NewNoopLogger(),
		Metrics:   telemetry.NewNoopMetrics(),
		Tracer:    telemetry.NewNoopTracer(),
		Config: Config{
			Concurrency:   3,
			PollInterval:  5 * time.Millisecond,
			WorkerTimeout: 180 * time.Second,
			TraceDir:      traceDir,
		},
	}
}

// scenario 1: happy path, every node completes and enables its
// sole output edge; end finishes and the loop terminates.
func TestScheduler_HappyPath(t *testing.T) {
	store := newTestStore(t)
	seedFourNodePlan(t, store)

	eng := &scriptedEngine{
		store: store,
		verdicts: map[string]func() *worker.Verdict{
			"A":   completedVerdict("a ok", map[string]string{"eA_B": "enabled"}),
			"B":   completedVerdict("b ok", map[string]string{"eB_E": "enabled"}),
			"end": completedVerdict("terminal", map[string]string{}),
		},
	}
	sched := newScheduler(store, eng, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Run(ctx))

	nodes := readNodeStatus(t, store)
	for _, name := range []string{"start", "A", "B", "end"} {
		require.Equal(t, dagmodel.NodeFinished, nodes[name].Status, "node %s", name)
	}
	edges := readEdgeStatus(t, store)
	for _, name := range []string{"eS_A", "eA_B", "eB_E"} {
		require.Equal(t, dagmodel.EdgeEnabled, edges[name].Status, "edge %s", name)
	}
}

// scenario 2: A disables its only output edge; B is skipped,
// eB_E is forced disabled, end is skipped and the loop still terminates.
func TestScheduler_BranchDisabledSkipsDownstream(t *testing.T) {
	store := newTestStore(t)
	seedFourNodePlan(t, store)

	eng := &scriptedEngine{
		store: store,
		verdicts: map[string]func() *worker.Verdict{
			"A": completedVerdict("a disabled branch", map[string]string{"eA_B": "disabled"}),
		},
	}
	sched := newScheduler(store, eng, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Run(ctx))

	nodes := readNodeStatus(t, store)
	require.Equal(t, dagmodel.NodeFinished, nodes["A"].Status)
	require.Equal(t, dagmodel.NodeSkipped, nodes["B"].Status)
	require.Equal(t, dagmodel.NodeSkipped, nodes["end"].Status)

	edges := readEdgeStatus(t, store)
	require.Equal(t, dagmodel.EdgeDisabled, edges["eA_B"].Status)
	require.Equal(t, dagmodel.EdgeDisabled, edges["eB_E"].Status)
}

// scenario 3: a failed verdict forces every output edge disabled
// regardless of what set_edge_status claims.
func TestScheduler_WorkerFailureForcesOutputEdgesDisabled(t *testing.T) {
	store := newTestStore(t)
	seedFourNodePlan(t, store)

	eng := &scriptedEngine{
		store: store,
		verdicts: map[string]func() *worker.Verdict{
			"A": func() *worker.Verdict {
				// even if the worker somehow claimed "enabled", failure wins.
				return &worker.Verdict{Result: "boom", Status: worker.StatusFailed, SetEdgeStatus: map[string]string{"eA_B": "enabled"}}
			},
		},
	}
	sched := newScheduler(store, eng, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Run(ctx))

	nodes := readNodeStatus(t, store)
	require.Equal(t, dagmodel.NodeFailed, nodes["A"].Status)
	require.Equal(t, dagmodel.NodeSkipped, nodes["B"].Status)

	edges := readEdgeStatus(t, store)
	require.Equal(t, dagmodel.EdgeDisabled, edges["eA_B"].Status)
	require.Equal(t, dagmodel.EdgeDisabled, edges["eB_E"].Status)
}

// scenario 5: a worker that never completes is killed once the
// hard wall-clock timeout elapses; a synthetic failed verdict is recorded
// both in Memory and as a trace marker file.
func TestScheduler_WorkerTimeout(t *testing.T) {
	store := newTestStore(t)
	seedFourNodePlan(t, store)

	eng := &scriptedEngine{
		store:    store,
		verdicts: map[string]func() *worker.Verdict{}, // A never completes
	}
	traceDir := t.TempDir()
	sched := newScheduler(store, eng, traceDir)
	sched.Config.WorkerTimeout = 20 * time.Millisecond
	sched.Config.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Run(ctx))

	nodes := readNodeStatus(t, store)
	require.Equal(t, dagmodel.NodeFailed, nodes["A"].Status)

	edges := readEdgeStatus(t, store)
	require.Equal(t, dagmodel.EdgeDisabled, edges["eA_B"].Status)

	entries, err := os.ReadDir(filepath.Join(traceDir, "sess-1"))
	require.NoError(t, err)
	var sawMarker bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".flag" {
			sawMarker = true
		}
	}
	require.True(t, sawMarker, "expected a <executor_id>_timeout.flag marker file")
}

// Concurrency cap of 1 must serialize dispatch: with three independently
// triggerable nodes, at most one may be running at a time.
func TestScheduler_ConcurrencyCapSerializesDispatch(t *testing.T) {
	store := newTestStore(t)
	plan, err := dagmodel.Parse([]byte(`{"nodes": [
		{"node": "start", "output_edges": [{"edge": "e1"}, {"edge": "e2"}, {"edge": "e3"}]},
		{"node": "A", "input_edges": [{"edge": "e1"}], "output_edges": [{"edge": "eA"}]},
		{"node": "B", "input_edges": [{"edge": "e2"}], "output_edges": [{"edge": "eB"}]},
		{"node": "C", "input_edges": [{"edge": "e3"}], "output_edges": [{"edge": "eC"}]},
		{"node": "end", "input_edges": [{"edge": "eA"}, {"edge": "eB"}, {"edge": "eC"}]}
	]}`))
	require.NoError(t, err)
	nodes, edges := plan.Seed()
	nodeRec, edgeRec := dagmodel.Store(nodes, edges)
	ctx := context.Background()
	_, err = store.UpdateDataByKey(ctx, "Node_Status", nodeRec)
	require.NoError(t, err)
	_, err = store.UpdateDataByKey(ctx, "Edge_Status", edgeRec)
	require.NoError(t, err)

	var maxConcurrent int
	var mu sync.Mutex
	current := 0
	track := func(edge string) func() *worker.Verdict {
		return func() *worker.Verdict {
			mu.Lock()
			current++
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()
			time.Sleep(15 * time.Millisecond)
			mu.Lock()
			current--
			mu.Unlock()
			return &worker.Verdict{Result: "ok", Status: worker.StatusCompleted, SetEdgeStatus: map[string]string{edge: "enabled"}}
		}
	}

	eng := &scriptedEngine{
		store: store,
		verdicts: map[string]func() *worker.Verdict{
			"A":   track("eA"),
			"B":   track("eB"),
			"C":   track("eC"),
			"end": completedVerdict("terminal", map[string]string{}),
		},
	}
	sched := newScheduler(store, eng, t.TempDir())
	sched.Config.Concurrency = 1
	sched.Config.PollInterval = 5 * time.Millisecond

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Run(runCtx))

	require.LessOrEqual(t, maxConcurrent, 1, "concurrency cap of 1 must serialize A/B/C dispatch")
}

func TestResultTextRoundTrips(t *testing.T) {
	v := worker.Verdict{Result: "r", Status: worker.StatusCompleted, SetEdgeStatus: map[string]string{"e": "enabled"}}
	text := resultText(v)

	var decoded worker.Verdict
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	require.Equal(t, v, decoded)
}
