package engines

import (
	"context"
	"net/http"
	"time"

	"github.com/speechcoach/pipeline/artifact"
)

// ProsodyAnalyzer calls the pitch/energy extraction engine (/analyze). The
// engine owns the signal processing (F0 tracking, RMS, jitter/shimmer, pause
// detection); WPM is derived by the prosody stage because it needs the
// transcript.
type ProsodyAnalyzer struct {
	c   *http.Client
	url string
}

func NewProsodyAnalyzer(url string, timeout time.Duration) *ProsodyAnalyzer {
	return &ProsodyAnalyzer{c: newHTTPClient(timeout), url: url}
}

// ProsodyFeatures is the raw acoustic feature set from the engine.
type ProsodyFeatures struct {
	F0            artifact.SignalStats `json:"f0"`
	RMS           artifact.SignalStats `json:"rms"`
	JitterShimmer map[string]float64   `json:"jitter_shimmer"`
	Pauses        artifact.PauseStats  `json:"pauses"`
	AudioDuration float64              `json:"audio_duration"`
}

type prosodyReq struct {
	AudioURL string `json:"audio_url"`
}

func (p *ProsodyAnalyzer) Analyze(ctx context.Context, audioURL string) (*ProsodyFeatures, error) {
	var out ProsodyFeatures
	if err := postJSON(ctx, p.c, p.url+"/analyze", prosodyReq{AudioURL: audioURL}, &out); err != nil {
		return nil, compErr("prosody", err)
	}
	return &out, nil
}
