package engines

import (
	"context"
	"net/http"
	"time"

	"github.com/speechcoach/pipeline/artifact"
)

// GrammarChecker calls the grammar checking engine (/check).
type GrammarChecker struct {
	c   *http.Client
	url string
}

func NewGrammarChecker(url string, timeout time.Duration) *GrammarChecker {
	return &GrammarChecker{c: newHTTPClient(timeout), url: url}
}

type grammarReq struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type grammarResp struct {
	Matches []artifact.GrammarError `json:"matches"`
}

func (g *GrammarChecker) Check(ctx context.Context, text, language string) ([]artifact.GrammarError, error) {
	var out grammarResp
	if err := postJSON(ctx, g.c, g.url+"/check", grammarReq{Text: text, Language: language}, &out); err != nil {
		return nil, compErr("grammar", err)
	}
	return out.Matches, nil
}
