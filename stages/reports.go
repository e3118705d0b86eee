package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/engines"
	"github.com/speechcoach/pipeline/worker"
)

const StageReport = "report"

type ReportRequest struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format,omitempty"`
}

func (r *ReportRequest) Session() string { return r.SessionID }

func (r *ReportRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	switch r.Format {
	case "", "pdf", "csv", "json":
		return nil
	default:
		return fmt.Errorf("unsupported report format %q", r.Format)
	}
}

// ReportStage assembles a session report from whatever analysis artifacts
// exist. The scoring result is mandatory; transcript, prosody, fluency and
// drills are folded in when present. JSON is written locally, pdf and csv go
// through the rendering engine.
type ReportStage struct {
	renderer *engines.Renderer
	objects  *engines.ObjectStore
	store    artifact.Store
	now      func() time.Time
}

func NewReportStage(renderer *engines.Renderer, objects *engines.ObjectStore, store artifact.Store) *ReportStage {
	return &ReportStage{renderer: renderer, objects: objects, store: store, now: time.Now}
}

func (s *ReportStage) Name() string              { return StageReport }
func (s *ReportStage) ArtifactKey() artifact.Key { return artifact.KeyReport }

func (s *ReportStage) Run(ctx context.Context, req worker.Request) (any, error) {
	r, ok := req.(*ReportRequest)
	if !ok {
		return nil, fmt.Errorf("report: unexpected request type %T", req)
	}
	format := r.Format
	if format == "" {
		format = "pdf"
	}

	if err := artifact.RequireAll(ctx, s.store, r.SessionID, artifact.KeyScoring); err != nil {
		return nil, err
	}
	analysis, err := s.gatherAnalysis(ctx, r.SessionID)
	if err != nil {
		return nil, err
	}

	var localPath string
	if format == "json" {
		localPath, err = writeJSONReport(analysis)
	} else {
		localPath, err = s.renderer.Render(ctx, r.SessionID, format, analysis)
	}
	if err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	key := fmt.Sprintf("reports/%s/report.%s", r.SessionID, format)
	url, err := s.objects.Upload(ctx, localPath, key)
	if err != nil {
		return nil, err
	}

	return &artifact.ReportResult{
		SessionID:   r.SessionID,
		Format:      format,
		URL:         url,
		GeneratedAt: s.now(),
	}, nil
}

func (s *ReportStage) gatherAnalysis(ctx context.Context, sessionID string) (map[string]any, error) {
	analysis := map[string]any{"session_id": sessionID}

	var scoringResult artifact.ScoringResult
	if err := s.store.Get(ctx, sessionID, artifact.KeyScoring, &scoringResult); err != nil {
		return nil, fmt.Errorf("load scoring: %w", err)
	}
	analysis["scoring"] = scoringResult

	optional := []struct {
		key  artifact.Key
		name string
		dst  any
	}{
		{artifact.KeyTranscript, "transcript", &artifact.Transcript{}},
		{artifact.KeyProsody, "prosody", &artifact.Prosody{}},
		{artifact.KeyFluency, "fluency", &artifact.Fluency{}},
		{artifact.KeyDrills, "drills", &artifact.DrillSet{}},
	}
	for _, opt := range optional {
		switch err := s.store.Get(ctx, sessionID, opt.key, opt.dst); {
		case err == nil:
			analysis[opt.name] = opt.dst
		case errors.Is(err, artifact.ErrNotFound):
			// optional, skip
		default:
			return nil, fmt.Errorf("load %s: %w", opt.name, err)
		}
	}
	return analysis, nil
}

func writeJSONReport(analysis map[string]any) (string, error) {
	tmp, err := os.CreateTemp("", "report-*.json")
	if err != nil {
		return "", err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(analysis); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
