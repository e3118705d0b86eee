package engines

import (
	"context"
	"net/http"
	"time"
)

// Embedder calls the embedding model engine (/embed).
type Embedder struct {
	c   *http.Client
	url string
}

func NewEmbedder(url string, timeout time.Duration) *Embedder {
	return &Embedder{c: newHTTPClient(timeout), url: url}
}

type embedReq struct {
	Text string `json:"text"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var out embedResp
	if err := postJSON(ctx, e.c, e.url+"/embed", embedReq{Text: text}, &out); err != nil {
		return nil, compErr("embedding", err)
	}
	return out.Embedding, nil
}
