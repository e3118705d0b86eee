package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/speechcoach/pipeline/artifact"
)

// Transcriber calls the speech-to-text engine (/transcribe). The engine
// handles model loading, VAD and word alignment; we only ship audio and
// decode the result.
type Transcriber struct {
	c   *http.Client
	url string
}

func NewTranscriber(url string, timeout time.Duration) *Transcriber {
	return &Transcriber{c: newHTTPClient(timeout), url: url}
}

type transcribeResp struct {
	Text       string             `json:"text"`
	Language   string             `json:"language"`
	Duration   float64            `json:"duration"`
	Confidence float64            `json:"confidence"`
	Words      []artifact.Word    `json:"words"`
	Segments   []artifact.Segment `json:"segments"`
}

// Transcribe uploads the audio file and returns the recognized transcript.
// An empty language asks the engine to detect it.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, language string) (*artifact.Transcript, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, compErr("asr", err)
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return nil, compErr("asr", err)
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, compErr("asr", err)
	}
	if language != "" {
		if err = w.WriteField("language", language); err != nil {
			return nil, compErr("asr", err)
		}
	}
	if err = w.Close(); err != nil {
		return nil, compErr("asr", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+"/transcribe", &b)
	if err != nil {
		return nil, compErr("asr", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.c.Do(req)
	if err != nil {
		return nil, compErr("asr", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, compErr("asr", fmt.Errorf("%s: %s", resp.Status, string(body)))
	}

	var out transcribeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, compErr("asr", fmt.Errorf("decode: %w", err))
	}
	return &artifact.Transcript{
		Text:       out.Text,
		Language:   out.Language,
		Duration:   out.Duration,
		Confidence: out.Confidence,
		Words:      out.Words,
		Segments:   out.Segments,
	}, nil
}

// Ready probes the engine health endpoint.
func (t *Transcriber) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := t.c.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
