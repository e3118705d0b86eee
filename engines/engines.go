// Package engines holds the HTTP clients for the external analysis engines
// the pipeline delegates to: speech-to-text, prosody extraction, grammar
// checking, embedding, media transcoding, document rendering and object
// storage. Only the boundary lives here; the engines' computation does not.
package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ComputationError marks a failure inside a delegated engine. Stage workers
// catch it at the stage boundary and record the task as failed; it never
// crashes the process.
type ComputationError struct {
	Engine string
	Err    error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s engine: %v", e.Engine, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

func compErr(engine string, err error) error {
	return &ComputationError{Engine: engine, Err: err}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// postJSON posts a JSON body and decodes a JSON response into out.
func postJSON(ctx context.Context, c *http.Client, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
