// Package scoring fuses the transcript, prosody and fluency artifacts into a
// single weighted, uncertainty-bounded assessment across five rubric
// dimensions. Fusion is deterministic: identical upstream artifacts always
// produce the identical result.
package scoring

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/speechcoach/pipeline/artifact"
)

// Request asks for one fusion run. A nil RubricWeights uses the defaults;
// weights need not sum to 1; aggregation normalizes by the total actually
// used.
type Request struct {
	SessionID          string             `json:"session_id"`
	RubricWeights      map[string]float64 `json:"rubric_weights,omitempty"`
	IncludeUncertainty bool               `json:"include_uncertainty"`
}

// Engine reads the three mandatory upstream artifacts and computes the fused
// assessment. It does not write: persisting and publishing the result belongs
// to the stage worker running it, so a failed fusion never leaves a partial
// scoring artifact behind.
type Engine struct {
	store artifact.Store
	now   func() time.Time
}

func NewEngine(store artifact.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Fuse computes the scoring result for a session. All of transcript, prosody
// and fluency must be present; otherwise a MissingDependencyError is returned
// and nothing is computed.
func (e *Engine) Fuse(ctx context.Context, req Request) (*artifact.ScoringResult, error) {
	if err := artifact.RequireAll(ctx, e.store, req.SessionID,
		artifact.KeyTranscript, artifact.KeyProsody, artifact.KeyFluency); err != nil {
		return nil, err
	}

	var (
		transcript artifact.Transcript
		prosody    artifact.Prosody
		fluency    artifact.Fluency
	)
	if err := e.store.Get(ctx, req.SessionID, artifact.KeyTranscript, &transcript); err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if err := e.store.Get(ctx, req.SessionID, artifact.KeyProsody, &prosody); err != nil {
		return nil, fmt.Errorf("load prosody: %w", err)
	}
	if err := e.store.Get(ctx, req.SessionID, artifact.KeyFluency, &fluency); err != nil {
		return nil, fmt.Errorf("load fluency: %w", err)
	}

	scores := map[string]artifact.DimensionScore{
		CategoryClarity: safeScore(CategoryClarity, func() artifact.DimensionScore {
			return clarityScore(&transcript, &fluency)
		}),
		CategoryPace: safeScore(CategoryPace, func() artifact.DimensionScore {
			return paceScore(&prosody)
		}),
		CategoryVolume: safeScore(CategoryVolume, func() artifact.DimensionScore {
			return volumeScore(&prosody)
		}),
		CategoryEngagement: safeScore(CategoryEngagement, func() artifact.DimensionScore {
			return engagementScore(&prosody, &fluency)
		}),
		CategoryStructure: safeScore(CategoryStructure, func() artifact.DimensionScore {
			return structureScore(&fluency)
		}),
	}

	weights := req.RubricWeights
	overall := OverallScore(scores, weights)

	var bands map[string]artifact.Band
	if req.IncludeUncertainty {
		bands = uncertaintyBands(scores)
	}

	var improvements []artifact.ImprovementArea
	var strengths []artifact.Strength
	for _, category := range categories {
		dim := scores[category]
		if dim.Score < 6.0 {
			improvements = append(improvements, artifact.ImprovementArea{
				Category:   category,
				Suggestion: dim.Feedback,
			})
		} else if dim.Score >= 8.0 {
			strengths = append(strengths, artifact.Strength{
				Category: category,
				Detail:   dim.Feedback,
			})
		}
	}

	result := &artifact.ScoringResult{
		OverallScore:     overall,
		Confidence:       transcript.Confidence,
		RubricScores:     scores,
		UncertaintyBands: bands,
		ImprovementAreas: improvements,
		Strengths:        strengths,
		RubricWeights:    usedWeights(weights),
		AnalyzedAt:       e.now(),
	}

	log.WithFields(log.Fields{
		"session_id":    req.SessionID,
		"overall_score": fmt.Sprintf("%.1f", overall),
	}).Info("scoring analysis completed")
	return result, nil
}

// OverallScore is the weighted mean over the scored dimensions. The weight
// for each dimension is the caller-supplied one when present, else the
// dimension's own weight. Normalization divides by the total weight actually
// used; weights are not required to sum to 1. A zero total yields 0.
func OverallScore(scores map[string]artifact.DimensionScore, weights map[string]float64) float64 {
	totalScore := 0.0
	totalWeight := 0.0
	for _, category := range categories {
		dim, ok := scores[category]
		if !ok {
			continue
		}
		w := dim.Weight
		if cw, ok := weights[category]; ok {
			w = cw
		}
		totalScore += dim.Score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0.0
	}
	return totalScore / totalWeight
}

// uncertaintyBands derives the interval around each dimension score: a 0.5
// base, widened by 0.3 for extreme scores and by half the confidence gap when
// a transcript confidence factor is present, capped at 1.5.
func uncertaintyBands(scores map[string]artifact.DimensionScore) map[string]artifact.Band {
	bands := make(map[string]artifact.Band, len(scores))
	for category, dim := range scores {
		u := 0.5
		if dim.Score < 3 || dim.Score > 8 {
			u += 0.3
		}
		if conf, ok := dim.Factors["transcript_confidence"]; ok {
			u += (1.0 - conf) * 0.5
		}
		if u > 1.5 {
			u = 1.5
		}
		bands[category] = artifact.Band{
			Lower:       clamp(dim.Score-u, 0, 10),
			Upper:       clamp(dim.Score+u, 0, 10),
			Uncertainty: u,
		}
	}
	return bands
}

// usedWeights reports the rubric recorded on the result: the caller's map
// when supplied, else a copy of the defaults.
func usedWeights(weights map[string]float64) map[string]float64 {
	if weights != nil {
		return weights
	}
	out := make(map[string]float64, len(DefaultWeights))
	for k, v := range DefaultWeights {
		out[k] = v
	}
	return out
}
