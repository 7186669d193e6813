// Package dagmodel defines the PlanDAG data model: nodes, edges, and the
// JSON file format a PlanDAG is authored in. It owns the load-time
// validation that raises planerrors.ErrBadPlan on a malformed plan and the
// seeding of the Node_Status/Edge_Status records.
package dagmodel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/planerrors"
)

// NodeStatus is the lifecycle state of a Node.
type NodeStatus string

const (
	NodePending  NodeStatus = "pending"
	NodeRunning  NodeStatus = "running"
	NodeFinished NodeStatus = "finished"
	NodeFailed   NodeStatus = "failed"
	NodeSkipped  NodeStatus = "skipped"
)

// EdgeStatus is the lifecycle state of an Edge.
type EdgeStatus string

const (
	EdgePending  EdgeStatus = "pending"
	EdgeEnabled  EdgeStatus = "enabled"
	EdgeDisabled EdgeStatus = "disabled"
)

// StartNode and EndNode are the two distinguished node names every PlanDAG
// must carry exactly one of.
const (
	StartNode = "start"
	EndNode   = "end"
)

// EdgeRef is one entry in a Node's input_edges/output_edges list.
type EdgeRef struct {
	Edge      string `json:"edge"`
	Condition string `json:"condition,omitempty"`
}

// Node is one TSG step, as authored in the PlanDAG file.
type Node struct {
	Node        string     `json:"node"`
	Description string     `json:"description,omitempty"`
	InputEdges  []EdgeRef  `json:"input_edges,omitempty"`
	OutputEdges []EdgeRef  `json:"output_edges,omitempty"`
	Status      NodeStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	ExecutorID  string     `json:"executor_id,omitempty"`
}

// IsEnd reports whether this node is the distinguished terminal node.
// The comparison is case-insensitive.
func (n Node) IsEnd() bool { return strings.EqualFold(n.Node, EndNode) }

// IsStart reports whether this node is the distinguished start node.
func (n Node) IsStart() bool { return strings.EqualFold(n.Node, StartNode) }

// Edge is one control-flow edge, tracked independently of the node that
// owns it as input/output so the scheduler can look it up by name alone.
type Edge struct {
	Edge      string     `json:"edge"`
	Status    EdgeStatus `json:"status"`
	Condition string     `json:"condition,omitempty"`
}

// PlanDAG is the in-memory, validated form of a PlanDAG file.
type PlanDAG struct {
	Nodes []Node `json:"nodes"`
}

// file is the on-disk PlanDAG JSON shape.
type file struct {
	Nodes []Node `json:"nodes"`
}

// Parse decodes and validates a PlanDAG document, returning planerrors.ErrBadPlan
// wrapped with detail on any authoring bug (missing start/end, duplicate edge
// names, a non-start node with no input edges).
func Parse(raw []byte) (PlanDAG, error) {
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return PlanDAG{}, fmt.Errorf("decode plandag: %w", err)
	}
	plan := PlanDAG{Nodes: f.Nodes}
	if err := plan.Validate(); err != nil {
		return PlanDAG{}, err
	}
	return plan, nil
}

// Validate checks the structural invariants that can be verified
// statically, before any node has run.
func (p PlanDAG) Validate() error {
	var starts, ends int
	seenNode := map[string]bool{}
	seenEdge := map[string]string{} // edge name -> owning node + direction, for duplicate detection

	for _, n := range p.Nodes {
		if n.Node == "" {
			return fmt.Errorf("%w: a node has an empty name", planerrors.ErrBadPlan)
		}
		if seenNode[n.Node] {
			return fmt.Errorf("%w: duplicate node name %q", planerrors.ErrBadPlan, n.Node)
		}
		seenNode[n.Node] = true
		if n.IsStart() {
			starts++
		}
		if n.IsEnd() {
			ends++
		}
		if !n.IsStart() && len(n.InputEdges) == 0 {
			return planerrors.BadPlanNoInputs(n.Node)
		}
		for _, e := range n.OutputEdges {
			if owner, ok := seenEdge[e.Edge]; ok {
				return fmt.Errorf("%w: edge %q referenced as output of both %q and %q", planerrors.ErrBadPlan, e.Edge, owner, n.Node)
			}
			seenEdge[e.Edge] = n.Node + " (output)"
		}
	}
	if starts != 1 {
		return fmt.Errorf("%w: expected exactly one %q node, found %d", planerrors.ErrBadPlan, StartNode, starts)
	}
	if ends != 1 {
		return fmt.Errorf("%w: expected exactly one %q node, found %d", planerrors.ErrBadPlan, EndNode, ends)
	}
	return nil
}

// NodeByName looks up a node by name.
func (p PlanDAG) NodeByName(name string) (Node, bool) {
	for _, n := range p.Nodes {
		if n.Node == name {
			return n, true
		}
	}
	return Node{}, false
}

// Seed builds the initial Node_Status / Edge_Status tables: every edge
// referenced from any node's input_edges or output_edges collected into
// Edge_Status at "pending", then the start node's outputs set to "enabled"
// and start.status set to "finished".
func (p PlanDAG) Seed() ([]Node, []Edge) {
	edgeSeen := map[string]Edge{}
	order := make([]string, 0)
	for _, n := range p.Nodes {
		for _, refs := range [][]EdgeRef{n.InputEdges, n.OutputEdges} {
			for _, ref := range refs {
				if _, ok := edgeSeen[ref.Edge]; !ok {
					edgeSeen[ref.Edge] = Edge{Edge: ref.Edge, Status: EdgePending, Condition: ref.Condition}
					order = append(order, ref.Edge)
				}
			}
		}
	}

	nodes := make([]Node, len(p.Nodes))
	copy(nodes, p.Nodes)
	for i := range nodes {
		if nodes[i].Status == "" {
			nodes[i].Status = NodePending
		}
		if nodes[i].IsStart() {
			nodes[i].Status = NodeFinished
			for _, ref := range nodes[i].OutputEdges {
				e := edgeSeen[ref.Edge]
				e.Status = EdgeEnabled
				edgeSeen[ref.Edge] = e
			}
		}
	}

	edges := make([]Edge, 0, len(order))
	for _, name := range order {
		edges = append(edges, edgeSeen[name])
	}
	return nodes, edges
}

// Store builds the memstore records for both tables; callers write them
// under the well-known keys "Node_Status" / "Edge_Status".
func Store(nodes []Node, edges []Edge) (memstore.Record, memstore.Record) {
	now := time.Now().UTC()
	nodeRec := memstore.Record{DataType: "node_status", Data: toAnySlice(nodes), Timestamp: now}
	edgeRec := memstore.Record{DataType: "edge_status", Data: toAnySlice(edges), Timestamp: now}
	return nodeRec, edgeRec
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// DecodeNodes converts a record's Data (decoded as []any/map[string]any by
// encoding/json round trips through memstore) back into []Node.
func DecodeNodes(data any) ([]Node, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// DecodeEdges converts a record's Data back into []Edge.
func DecodeEdges(data any) ([]Edge, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var edges []Edge
	if err := json.Unmarshal(raw, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// EdgeMap indexes edges by name for O(1) lookup.
func EdgeMap(edges []Edge) map[string]*Edge {
	m := make(map[string]*Edge, len(edges))
	for i := range edges {
		m[edges[i].Edge] = &edges[i]
	}
	return m
}

// AllInputEdgesDisabled reports whether every input edge of node is
// disabled.
func AllInputEdgesDisabled(n Node, byName map[string]*Edge) bool {
	for _, ref := range n.InputEdges {
		if e, ok := byName[ref.Edge]; ok && e.Status != EdgeDisabled {
			return false
		}
	}
	return true
}

// ShouldTrigger reports whether node is triggerable:
// no input edge pending and at least one enabled. isEndPriority additionally
// reports whether this is the "end" node becoming triggerable, which the
// scheduler dispatches regardless of the concurrency cap.
func ShouldTrigger(n Node, byName map[string]*Edge) (trigger, isEndPriority bool) {
	var anyEnabled, anyPending bool
	for _, ref := range n.InputEdges {
		e, ok := byName[ref.Edge]
		if !ok {
			continue
		}
		switch e.Status {
		case EdgePending:
			anyPending = true
		case EdgeEnabled:
			anyEnabled = true
		}
	}
	if !anyPending && anyEnabled {
		return true, n.IsEnd()
	}
	return false, false
}

// SetAllOutputEdgesDisabled disables every output edge of node, used both
// for failed/skipped nodes and as the failure-path override of a failed
// worker's own edge map.
func SetAllOutputEdgesDisabled(n Node, byName map[string]*Edge) {
	for _, ref := range n.OutputEdges {
		if e, ok := byName[ref.Edge]; ok {
			e.Status = EdgeDisabled
		}
	}
}

// UpdateOutputEdges applies a worker's verdict map onto Edge_Status,
// returning planerrors.ErrBadPlan if the verdict names an edge this plan does
// not have.
func UpdateOutputEdges(byName map[string]*Edge, setEdgeStatus map[string]string) error {
	for name, status := range setEdgeStatus {
		e, ok := byName[name]
		if !ok {
			return planerrors.BadPlanEdge(name)
		}
		switch status {
		case string(EdgeEnabled):
			e.Status = EdgeEnabled
		case string(EdgeDisabled):
			e.Status = EdgeDisabled
		default:
			return fmt.Errorf("%w: edge %q set to unrecognized status %q", planerrors.ErrBadPlan, name, status)
		}
	}
	return nil
}

// IsExecutionComplete reports whether the DAG has reached a stable terminal
// state: the end node finished, or no edge pending and no
// node pending/running.
func IsExecutionComplete(nodes []Node, edges []Edge) bool {
	for _, n := range nodes {
		if n.IsEnd() && n.Status == NodeFinished {
			return true
		}
	}
	for _, e := range edges {
		if e.Status == EdgePending {
			return false
		}
	}
	for _, n := range nodes {
		if n.Status == NodePending || n.Status == NodeRunning {
			return false
		}
	}
	return true
}
