// Package scheduler implements the DAG Scheduler: the single-threaded
// monitor loop that owns Node_Status/Edge_Status, reaps completed workers,
// sweeps for triggerable/skippable nodes, dispatches new workers under a
// concurrency cap, and detects termination. Process management goes
// through engine.Engine/engine.Handle so that concern stays pluggable.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/engine"
	"github.com/microsoft/stepfly/internal/ident"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/telemetry"
	"github.com/microsoft/stepfly/internal/worker"
)

// Config bounds the monitor loop, overridable via internal/config; zero
// values fall back to the defaults noted below.
type Config struct {
	Concurrency   int           // default 3
	PollInterval  time.Duration // default 1s
	WorkerTimeout time.Duration // default 180s
	TraceDir      string        // base directory for trace/<session>/ marker files
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = 180 * time.Second
	}
	if c.TraceDir == "" {
		c.TraceDir = "trace"
	}
	return c
}

// Scheduler drives one session's DAG traversal to completion.
type Scheduler struct {
	SessionID string
	Store     memstore.Store
	Engine    engine.Engine
	Log       telemetry.Logger
	Metrics   telemetry.Metrics
	Tracer    telemetry.Tracer
	Config    Config

	tracked map[string]*trackedWorker // node name -> in-flight worker
}

type trackedWorker struct {
	nodeName   string
	executorID string
	handle     engine.Handle
	startedAt  time.Time
}

// Run executes the monitor loop until the DAG reaches a terminal state or
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.Config.withDefaults()
	s.Config = cfg
	if s.tracked == nil {
		s.tracked = make(map[string]*trackedWorker)
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := s.tick(ctx)
		if err != nil {
			return err
		}
		if done {
			return s.killAll()
		}
		select {
		case <-ctx.Done():
			_ = s.killAll()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick runs one monitor cycle: reap -> sweep -> dispatch -> persist ->
// termination check.
func (s *Scheduler) tick(ctx context.Context) (terminated bool, err error) {
	ctx, span := s.Tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	nodeRec, found, err := s.Store.GetDataByKey(ctx, "Node_Status")
	if err != nil {
		return false, fmt.Errorf("snapshot Node_Status: %w", err)
	}
	if !found {
		return false, fmt.Errorf("snapshot Node_Status: key not seeded")
	}
	edgeRec, found, err := s.Store.GetDataByKey(ctx, "Edge_Status")
	if err != nil {
		return false, fmt.Errorf("snapshot Edge_Status: %w", err)
	}
	if !found {
		return false, fmt.Errorf("snapshot Edge_Status: key not seeded")
	}
	nodes, err := dagmodel.DecodeNodes(nodeRec.Data)
	if err != nil {
		return false, fmt.Errorf("decode Node_Status: %w", err)
	}
	edges, err := dagmodel.DecodeEdges(edgeRec.Data)
	if err != nil {
		return false, fmt.Errorf("decode Edge_Status: %w", err)
	}
	byName := dagmodel.EdgeMap(edges)
	nodeIdx := make(map[string]int, len(nodes))
	for i, n := range nodes {
		nodeIdx[n.Node] = i
	}

	if err := s.reap(ctx, nodes, nodeIdx, byName); err != nil {
		return false, err
	}

	endDispatched := false
	var triggerable []string
	for i := range nodes {
		n := &nodes[i]
		if n.Status != dagmodel.NodePending {
			continue
		}
		trigger, isEnd := dagmodel.ShouldTrigger(*n, byName)
		switch {
		case trigger && isEnd:
			endDispatched = true
			if err := s.dispatch(ctx, n); err != nil {
				return false, err
			}
		case trigger:
			triggerable = append(triggerable, n.Node)
		case dagmodel.AllInputEdgesDisabled(*n, byName):
			n.Status = dagmodel.NodeSkipped
			dagmodel.SetAllOutputEdgesDisabled(*n, byName)
			s.Log.Info(ctx, "scheduler: node skipped, all inputs disabled", "node", n.Node)
			s.Metrics.IncCounter("scheduler.nodes_skipped", 1, "node", n.Node)
		}
	}

	running := len(s.tracked)
	if !endDispatched {
		for _, name := range triggerable {
			if running >= s.Config.Concurrency {
				break
			}
			n := &nodes[nodeIdx[name]]
			if err := s.dispatch(ctx, n); err != nil {
				return false, err
			}
			running++
		}
	}

	if err := s.persist(ctx, nodes, edges); err != nil {
		return false, err
	}

	return dagmodel.IsExecutionComplete(nodes, edges), nil
}

// reap drops workers whose process has exited (consuming their verdict)
// or that have overrun the hard timeout.
func (s *Scheduler) reap(ctx context.Context, nodes []dagmodel.Node, nodeIdx map[string]int, byName map[string]*dagmodel.Edge) error {
	for name, tw := range s.tracked {
		n := &nodes[nodeIdx[name]]

		if tw.handle.Alive() {
			if time.Since(tw.startedAt) > s.Config.WorkerTimeout {
				s.timeoutWorker(ctx, n, byName, tw)
				delete(s.tracked, name)
			}
			continue
		}

		// Process exited; a verdict may have landed before or after exit —
		// accept whichever is present.
		_ = tw.handle.Wait(ctx)
		verdict, found, err := s.Store.GetDataByKey(ctx, tw.executorID+"_step_result")
		delete(s.tracked, name)
		if err != nil {
			return fmt.Errorf("read verdict for %q: %w", name, err)
		}
		if !found {
			s.applyFailure(ctx, n, byName, "Worker process exited without a verdict")
			continue
		}
		if err := s.applyVerdict(ctx, n, byName, verdict.Data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) timeoutWorker(ctx context.Context, n *dagmodel.Node, byName map[string]*dagmodel.Edge, tw *trackedWorker) {
	_ = tw.handle.Kill()
	s.Log.Error(ctx, "scheduler: worker timed out", "node", n.Node, "executor_id", tw.executorID)
	s.Metrics.IncCounter("scheduler.worker_timeouts", 1, "node", n.Node)
	s.applyFailure(ctx, n, byName, "Executor timed out")
	s.writeTimeoutMarker(tw.executorID)
}

// writeTimeoutMarker drops the session-scoped observability marker file
// for a timed-out executor. The scheduler also records the failure through
// Memory via applyFailure; this file is purely an additional observability
// hatch.
func (s *Scheduler) writeTimeoutMarker(executorID string) {
	dir := filepath.Join(s.Config.TraceDir, s.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, executorID+"_timeout.flag"), []byte("timeout\n"), 0o644)
}

// applyVerdict applies a worker's verdict to the node/edge tables. A
// set_edge_status entry naming an edge that does not exist in this plan is
// a BadPlan error and aborts the session
// rather than being silently dropped.
func (s *Scheduler) applyVerdict(ctx context.Context, n *dagmodel.Node, byName map[string]*dagmodel.Edge, raw any) error {
	var payload struct {
		Result worker.Verdict `json:"result"`
	}
	if !decodeInto(raw, &payload) || payload.Result.Status != worker.StatusCompleted {
		s.applyFailureVerdict(ctx, n, byName, raw)
		return nil
	}
	if err := dagmodel.UpdateOutputEdges(byName, payload.Result.SetEdgeStatus); err != nil {
		s.Log.Error(ctx, "scheduler: bad plan", "node", n.Node, "error", err)
		return err
	}
	n.Status = dagmodel.NodeFinished
	n.Result = resultText(payload.Result)
	s.Log.Info(ctx, "scheduler: node finished", "node", n.Node)
	s.Metrics.IncCounter("scheduler.nodes_finished", 1, "node", n.Node)
	return nil
}

func (s *Scheduler) applyFailureVerdict(ctx context.Context, n *dagmodel.Node, byName map[string]*dagmodel.Edge, raw any) {
	var payload struct {
		Result worker.Verdict `json:"result"`
	}
	msg := "Worker reported failure"
	if decodeInto(raw, &payload) && payload.Result.Result != "" {
		msg = payload.Result.Result
	}
	s.applyFailure(ctx, n, byName, msg)
}

func (s *Scheduler) applyFailure(ctx context.Context, n *dagmodel.Node, byName map[string]*dagmodel.Edge, reason string) {
	dagmodel.SetAllOutputEdgesDisabled(*n, byName)
	n.Status = dagmodel.NodeFailed
	n.Result = resultText(worker.Verdict{Result: reason, Status: worker.StatusFailed})
	s.Log.Error(ctx, "scheduler: node failed", "node", n.Node, "reason", reason)
	s.Metrics.IncCounter("scheduler.nodes_failed", 1, "node", n.Node)
}

// dispatch mints an executor id, marks the node running, and hands it to
// the engine.
func (s *Scheduler) dispatch(ctx context.Context, n *dagmodel.Node) error {
	executorID := ident.New()
	handle, err := s.Engine.Dispatch(ctx, engine.DispatchRequest{
		SessionID:  s.SessionID,
		NodeName:   n.Node,
		ExecutorID: executorID,
	})
	if err != nil {
		return fmt.Errorf("dispatch node %q: %w", n.Node, err)
	}
	n.Status = dagmodel.NodeRunning
	n.ExecutorID = executorID
	s.tracked[n.Node] = &trackedWorker{nodeName: n.Node, executorID: executorID, handle: handle, startedAt: time.Now()}
	s.Log.Info(ctx, "scheduler: node dispatched", "node", n.Node, "executor_id", executorID)
	s.Metrics.IncCounter("scheduler.nodes_triggered", 1, "node", n.Node)
	return nil
}

// persist writes Node_Status and Edge_Status back via two independent
// atomic replaces; neither is ever cached across ticks.
func (s *Scheduler) persist(ctx context.Context, nodes []dagmodel.Node, edges []dagmodel.Edge) error {
	nodeRec, edgeRec := dagmodel.Store(nodes, edges)
	if _, err := s.Store.UpdateDataByKey(ctx, "Node_Status", nodeRec); err != nil {
		return fmt.Errorf("persist Node_Status: %w", err)
	}
	if _, err := s.Store.UpdateDataByKey(ctx, "Edge_Status", edgeRec); err != nil {
		return fmt.Errorf("persist Edge_Status: %w", err)
	}
	return nil
}

func (s *Scheduler) killAll() error {
	for name, tw := range s.tracked {
		if tw.handle.Alive() {
			_ = tw.handle.Kill()
		}
		delete(s.tracked, name)
	}
	return nil
}

// decodeInto round-trips a memstore-decoded any (map[string]any from a JSON
// blob) into dst via a marshal/unmarshal pass, the same pattern
// dagmodel.DecodeNodes uses for Node_Status/Edge_Status.
func decodeInto(raw any, dst any) bool {
	b, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

func resultText(v worker.Verdict) string {
	b, err := json.Marshal(v)
	if err != nil {
		return v.Result
	}
	return string(b)
}
