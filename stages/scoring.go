package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/scoring"
	"github.com/speechcoach/pipeline/worker"
)

const StageScoring = "scoring"

type ScoringRequest struct {
	SessionID          string             `json:"session_id"`
	RubricWeights      map[string]float64 `json:"rubric_weights,omitempty"`
	IncludeUncertainty bool               `json:"include_uncertainty"`
}

func (r *ScoringRequest) Session() string { return r.SessionID }

func (r *ScoringRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	for category, w := range r.RubricWeights {
		if w < 0 {
			return fmt.Errorf("rubric weight for %s must be >= 0", category)
		}
	}
	return nil
}

// ScoringStage runs the fusion engine under the shared stage lifecycle. The
// engine only reads and computes; persisting the result is the worker's job,
// so a MissingDependency failure writes nothing.
type ScoringStage struct {
	engine *scoring.Engine
}

func NewScoringStage(engine *scoring.Engine) *ScoringStage {
	return &ScoringStage{engine: engine}
}

func (s *ScoringStage) Name() string              { return StageScoring }
func (s *ScoringStage) ArtifactKey() artifact.Key { return artifact.KeyScoring }

func (s *ScoringStage) Run(ctx context.Context, req worker.Request) (any, error) {
	r, ok := req.(*ScoringRequest)
	if !ok {
		return nil, fmt.Errorf("scoring: unexpected request type %T", req)
	}
	return s.engine.Fuse(ctx, scoring.Request{
		SessionID:          r.SessionID,
		RubricWeights:      r.RubricWeights,
		IncludeUncertainty: r.IncludeUncertainty,
	})
}
