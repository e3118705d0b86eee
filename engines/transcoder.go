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

	"github.com/speechcoach/pipeline/artifact"
)

// Transcoder calls the media transcoding engine, which owns the actual
// cutting, caption burn-in and thumbnail extraction. Responses stream the
// produced media; the client spools them to temp files for upload.
type Transcoder struct {
	c   *http.Client
	url string
}

func NewTranscoder(url string, timeout time.Duration) *Transcoder {
	return &Transcoder{c: newHTTPClient(timeout), url: url}
}

type clipReq struct {
	VideoURL string             `json:"video_url"`
	Start    float64            `json:"start"`
	End      float64            `json:"end"`
	Captions []artifact.Caption `json:"captions,omitempty"`
}

// Clip cuts [start,end] out of the source video, burning in captions when
// given, and returns the path of a temp file holding the result.
func (t *Transcoder) Clip(ctx context.Context, videoURL string, start, end float64, captions []artifact.Caption) (string, error) {
	return t.fetchMedia(ctx, "/clip", clipReq{VideoURL: videoURL, Start: start, End: end, Captions: captions}, "clip-*.mp4")
}

type thumbnailReq struct {
	VideoURL string  `json:"video_url"`
	Offset   float64 `json:"offset"`
}

// Thumbnail extracts a still frame at offset seconds.
func (t *Transcoder) Thumbnail(ctx context.Context, videoURL string, offset float64) (string, error) {
	return t.fetchMedia(ctx, "/thumbnail", thumbnailReq{VideoURL: videoURL, Offset: offset}, "thumb-*.jpg")
}

func (t *Transcoder) fetchMedia(ctx context.Context, path string, in any, pattern string) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", compErr("transcoder", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+path, bytes.NewReader(payload))
	if err != nil {
		return "", compErr("transcoder", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.c.Do(req)
	if err != nil {
		return "", compErr("transcoder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", compErr("transcoder", fmt.Errorf("%s: %s", resp.Status, string(body)))
	}

	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", compErr("transcoder", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", compErr("transcoder", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", compErr("transcoder", err)
	}
	return tmp.Name(), nil
}
