package stages

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/engines"
	"github.com/speechcoach/pipeline/worker"
)

const StageProsody = "prosody"

type ProsodyRequest struct {
	SessionID string `json:"session_id"`
	AudioURL  string `json:"audio_url"`
}

func (r *ProsodyRequest) Session() string { return r.SessionID }

func (r *ProsodyRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	if r.AudioURL == "" {
		return errors.New("audio_url is required")
	}
	return nil
}

// ProsodyStage delegates the acoustic feature extraction (F0, RMS, pauses,
// jitter/shimmer) to the prosody engine and derives WPM itself from the
// transcript artifact when one exists. The transcript is optional here:
// prosody and fluency run in parallel off the same recording, and pace
// metrics simply stay zero without text.
type ProsodyStage struct {
	engine *engines.ProsodyAnalyzer
	store  artifact.Store

	// WPM timeline windowing.
	windowSec  float64
	overlapSec float64
}

func NewProsodyStage(engine *engines.ProsodyAnalyzer, store artifact.Store, windowSec, overlapSec float64) *ProsodyStage {
	if windowSec <= 0 {
		windowSec = 15
	}
	if overlapSec < 0 || overlapSec >= windowSec {
		overlapSec = 0
	}
	return &ProsodyStage{engine: engine, store: store, windowSec: windowSec, overlapSec: overlapSec}
}

func (s *ProsodyStage) Name() string              { return StageProsody }
func (s *ProsodyStage) ArtifactKey() artifact.Key { return artifact.KeyProsody }

func (s *ProsodyStage) Run(ctx context.Context, req worker.Request) (any, error) {
	r, ok := req.(*ProsodyRequest)
	if !ok {
		return nil, fmt.Errorf("prosody: unexpected request type %T", req)
	}

	features, err := s.engine.Analyze(ctx, r.AudioURL)
	if err != nil {
		return nil, err
	}

	wpm := artifact.WPMStats{}
	var transcript artifact.Transcript
	switch err := s.store.Get(ctx, r.SessionID, artifact.KeyTranscript, &transcript); {
	case err == nil:
		wpm = wordsPerMinute(&transcript, features.AudioDuration, s.windowSec, s.overlapSec)
	case errors.Is(err, artifact.ErrNotFound):
		// no transcript yet; pace metrics stay zero
	default:
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	return &artifact.Prosody{
		F0:            features.F0,
		RMS:           features.RMS,
		JitterShimmer: features.JitterShimmer,
		Pauses:        features.Pauses,
		WPM:           wpm,
		AudioDuration: features.AudioDuration,
	}, nil
}

// wordsPerMinute computes the session-wide rate plus a windowed timeline over
// the word timestamps.
func wordsPerMinute(t *artifact.Transcript, duration, windowSec, overlapSec float64) artifact.WPMStats {
	if duration <= 0 {
		return artifact.WPMStats{}
	}
	wordCount := len(strings.Fields(t.Text))
	rate := float64(wordCount) / duration * 60

	return artifact.WPMStats{
		Current:  rate,
		Average:  rate,
		Timeline: wpmTimeline(t.Words, duration, windowSec, overlapSec),
	}
}

// wpmTimeline slices the word stream into overlapping time windows and rates
// each one independently.
func wpmTimeline(words []artifact.Word, duration, windowSec, overlapSec float64) []artifact.TimelinePoint {
	if len(words) == 0 {
		return nil
	}
	step := windowSec - overlapSec
	if step <= 0 {
		step = windowSec
	}

	var out []artifact.TimelinePoint
	for t0 := 0.0; t0 < duration; t0 += step {
		t1 := math.Min(t0+windowSec, duration)
		span := t1 - t0
		if span <= 0 {
			break
		}
		n := 0
		for _, w := range words {
			if w.End <= t0 || w.Start >= t1 {
				continue
			}
			n++
		}
		out = append(out, artifact.TimelinePoint{
			Timestamp: t0,
			Value:     float64(n) / span * 60,
		})
	}
	return out
}
