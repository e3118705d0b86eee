package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Renderer calls the document rendering engine, which turns session and
// analysis data into a pdf or csv report. JSON reports are assembled locally
// by the report stage and never reach this engine.
type Renderer struct {
	c   *http.Client
	url string
}

func NewRenderer(url string, timeout time.Duration) *Renderer {
	return &Renderer{c: newHTTPClient(timeout), url: url}
}

type renderReq struct {
	SessionID string         `json:"session_id"`
	Format    string         `json:"format"`
	Analysis  map[string]any `json:"analysis"`
}

// Render produces the document and returns the path of a temp file holding it.
func (r *Renderer) Render(ctx context.Context, sessionID, format string, analysis map[string]any) (string, error) {
	payload, err := json.Marshal(renderReq{SessionID: sessionID, Format: format, Analysis: analysis})
	if err != nil {
		return "", compErr("render", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/render", bytes.NewReader(payload))
	if err != nil {
		return "", compErr("render", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.c.Do(req)
	if err != nil {
		return "", compErr("render", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", compErr("render", fmt.Errorf("%s: %s", resp.Status, string(body)))
	}

	tmp, err := os.CreateTemp("", "report-*."+format)
	if err != nil {
		return "", compErr("render", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", compErr("render", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", compErr("render", err)
	}
	return tmp.Name(), nil
}
