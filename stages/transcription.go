// Package stages wires each pipeline step to its external engine and to the
// shared lifecycle protocol in package worker.
package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/engines"
	"github.com/speechcoach/pipeline/worker"
)

const StageASR = "asr"

// TranscriptionRequest asks for a recorded session to be transcribed.
type TranscriptionRequest struct {
	SessionID string `json:"session_id"`
	AudioURL  string `json:"audio_url"`
	Language  string `json:"language,omitempty"` // empty = detect
}

func (r *TranscriptionRequest) Session() string { return r.SessionID }

func (r *TranscriptionRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	if r.AudioURL == "" {
		return errors.New("audio_url is required")
	}
	return nil
}

// Transcription downloads the session audio, ships it to the speech-to-text
// engine and stores the transcript artifact.
type Transcription struct {
	engine *engines.Transcriber
	httpc  *http.Client
}

func NewTranscription(engine *engines.Transcriber) *Transcription {
	return &Transcription{
		engine: engine,
		httpc:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *Transcription) Name() string              { return StageASR }
func (s *Transcription) ArtifactKey() artifact.Key { return artifact.KeyTranscript }

func (s *Transcription) Run(ctx context.Context, req worker.Request) (any, error) {
	r, ok := req.(*TranscriptionRequest)
	if !ok {
		return nil, fmt.Errorf("asr: unexpected request type %T", req)
	}

	audioPath, err := s.fetchAudio(ctx, r.AudioURL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(audioPath)

	transcript, err := s.engine.Transcribe(ctx, audioPath, r.Language)
	if err != nil {
		return nil, err
	}
	transcript.FillerWords = commonFillers(transcript.Words)
	return transcript, nil
}

// fetchAudio downloads the recording to a temp file for the multipart upload.
func (s *Transcription) fetchAudio(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch audio %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp("", "audio-*.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// commonFillers lists the plain filler words found in the word stream. The
// fluency stage does the full pattern analysis; this is the quick summary the
// transcript carries itself.
func commonFillers(words []artifact.Word) []string {
	known := map[string]bool{
		"um": true, "uh": true, "ah": true, "er": true,
		"like": true, "you know": true, "sort of": true, "kind of": true,
	}
	var found []string
	for _, w := range words {
		if known[strings.ToLower(strings.TrimSpace(w.Word))] {
			found = append(found, strings.ToLower(strings.TrimSpace(w.Word)))
		}
	}
	return found
}
