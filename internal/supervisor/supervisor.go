// Package supervisor is the thin outer layer around the engine: incident
// to TSG resolution, session seeding, and final conclusion reporting.
// PlanDAG parsing and Node_Status/Edge_Status seeding are delegated to
// internal/dagmodel rather than duplicated here.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/microsoft/stepfly/internal/dagmodel"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/planerrors"
	"github.com/microsoft/stepfly/internal/telemetry"
	"github.com/microsoft/stepfly/internal/tsgdoc"
)

// urlPattern strips URLs from incident text before it enters the model's
// context; matches are replaced with "[URL removed]".
var urlPattern = regexp.MustCompile(`https?://\S+|www\.\S+`)

// Config is the subset of internal/config.Config the supervisor needs.
type Config struct {
	IncidentMapping string
	TSGDir          string
	PlanDAGDir      string
	EnablePlugins   bool
}

// Supervisor resolves an incident id to its TSG/PlanDAG pair and seeds a
// session's memory before handing control to the scheduler.
type Supervisor struct {
	Config Config
	Log    telemetry.Logger

	mapping map[string]string // incident id -> tsg filename
}

// New loads the incident→TSG mapping file. A missing file is not an error
// — New logs a warning and returns a Supervisor with an empty mapping, and
// Resolve then returns ErrNoMapping for every incident id.
func New(cfg Config, log telemetry.Logger) (*Supervisor, error) {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	s := &Supervisor{Config: cfg, Log: log, mapping: map[string]string{}}

	raw, err := os.ReadFile(cfg.IncidentMapping)
	if os.IsNotExist(err) {
		log.Warn(context.Background(), "supervisor: incident mapping file not found, continuing without it", "path", cfg.IncidentMapping)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read incident mapping %q: %w", cfg.IncidentMapping, err)
	}
	if err := json.Unmarshal(raw, &s.mapping); err != nil {
		return nil, fmt.Errorf("decode incident mapping %q: %w", cfg.IncidentMapping, err)
	}
	return s, nil
}

// ErrNoMapping is returned by Resolve when the incident id has no entry in
// the mapping file. `stepfly run` prints it as a warning and exits without
// starting a session; only a --tsg override lets the session start.
var ErrNoMapping = fmt.Errorf("no tsg mapping for incident id")

// Resolve looks up the TSG filename for an incident id.
func (s *Supervisor) Resolve(incidentID string) (string, error) {
	name, ok := s.mapping[incidentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoMapping, incidentID)
	}
	return name, nil
}

// Init loads the incident file, TSG document, and PlanDAG for a resolved
// session and seeds Memory with incident_info, tsg_content, Node_Status,
// and Edge_Status. incidentPath is the path
// to the raw incident text; tsgFilename is the name Resolve returned (or a
// caller-chosen override when the mapping was missing).
//
// Any of the three inputs missing is a ConfigMissing condition: the session
// does not start.
func (s *Supervisor) Init(ctx context.Context, store memstore.Store, incidentID, incidentPath, tsgFilename string) error {
	incidentRaw, err := os.ReadFile(incidentPath)
	if err != nil {
		return fmt.Errorf("%w: incident file %q: %v", planerrors.ErrConfigMissing, incidentPath, err)
	}
	formatted := urlPattern.ReplaceAllString(string(incidentRaw), "[URL removed]")

	tsgPath := filepath.Join(s.Config.TSGDir, tsgFilename)
	tsgRaw, err := os.ReadFile(tsgPath)
	if err != nil {
		return fmt.Errorf("%w: tsg file %q: %v", planerrors.ErrConfigMissing, tsgPath, err)
	}
	if len(tsgRaw) == 0 {
		return fmt.Errorf("%w: tsg file %q is empty", planerrors.ErrConfigMissing, tsgPath)
	}

	tsgName := baseTSGName(tsgFilename)
	doc, err := tsgdoc.Parse(tsgRaw)
	if err != nil {
		return fmt.Errorf("parse tsg %q: %w", tsgPath, err)
	}

	planPath := filepath.Join(s.Config.PlanDAGDir, tsgName+"_plan_dag.json")
	planRaw, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("%w: plandag file %q: %v", planerrors.ErrConfigMissing, planPath, err)
	}
	plan, err := dagmodel.Parse(planRaw)
	if err != nil {
		return err
	}
	nodes, edges := plan.Seed()

	if _, err := store.AddData(ctx, memstore.Record{
		DataType:    "incident_metadata",
		Data:        incidentID,
		Description: "Incident ID for current troubleshooting session",
		Metadata:    map[string]any{"key": "incident_id"},
	}); err != nil {
		return fmt.Errorf("store incident id: %w", err)
	}
	if _, err := store.AddData(ctx, memstore.Record{
		DataType:    "incident_info",
		Data:        formatted,
		Description: fmt.Sprintf("Incident information for ID %s", incidentID),
		Metadata:    map[string]any{"key": "incident_info", "incident_id": incidentID},
	}); err != nil {
		return fmt.Errorf("store incident info: %w", err)
	}
	if _, err := store.AddData(ctx, memstore.Record{
		DataType:    "tsg_content",
		Data:        doc.Body,
		Description: fmt.Sprintf("TSG document content for %s", tsgName),
		Metadata:    map[string]any{"key": "tsg_content", "tsg_name": tsgName, "path": tsgPath},
	}); err != nil {
		return fmt.Errorf("store tsg content: %w", err)
	}

	nodeRec, edgeRec := dagmodel.Store(nodes, edges)
	nodeRec.Metadata = map[string]any{"key": "Node_Status"}
	edgeRec.Metadata = map[string]any{"key": "Edge_Status"}
	if _, err := store.AddData(ctx, nodeRec); err != nil {
		return fmt.Errorf("store node status: %w", err)
	}
	if _, err := store.AddData(ctx, edgeRec); err != nil {
		return fmt.Errorf("store edge status: %w", err)
	}

	s.Log.Info(ctx, "supervisor: session seeded",
		"incident_id", incidentID, "tsg", tsgName, "nodes", len(nodes), "edges", len(edges))
	return nil
}

// baseTSGName strips the extension and any "_WITH_REFERENCES" style
// suffix used to select a plugin-augmented TSG variant.
func baseTSGName(filename string) string {
	name := filename
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	for _, suffix := range []string{"_WITH_REFERENCES", "_WITH_PLUGIN_REFERENCES"} {
		if trimmed, ok := trimSuffix(name, suffix); ok {
			return trimmed
		}
	}
	return name
}

func trimSuffix(s, suffix string) (string, bool) {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}

// Conclusion reports the final, user-visible outcome of a session: the end
// node's finished state along an enabled input edge means success, anything
// else (failed, or the DAG went stable without end finishing) is reported
// as failure. A conclusion is always delivered, regardless of mid-DAG
// failures.
func Conclusion(nodes []dagmodel.Node) string {
	for _, n := range nodes {
		if n.IsEnd() && n.Status == dagmodel.NodeFinished {
			return "completed with status: success"
		}
	}
	return "completed with status: failure"
}
