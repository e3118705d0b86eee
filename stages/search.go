package stages

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/engines"
)

// Search indexes session transcripts as embeddings and answers semantic
// queries over them. Queries run synchronously against the store, so this is
// a plain service rather than a pipeline stage; only indexing writes an
// artifact.
type Search struct {
	embedder *engines.Embedder
	store    artifact.Store
	now      func() time.Time
}

func NewSearch(embedder *engines.Embedder, store artifact.Store) *Search {
	return &Search{embedder: embedder, store: store, now: time.Now}
}

// Index embeds the session transcript and stores the vector.
func (s *Search) Index(ctx context.Context, sessionID string) error {
	if err := artifact.RequireAll(ctx, s.store, sessionID, artifact.KeyTranscript); err != nil {
		return err
	}
	var transcript artifact.Transcript
	if err := s.store.Get(ctx, sessionID, artifact.KeyTranscript, &transcript); err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	vector, err := s.embedder.Embed(ctx, transcript.Text)
	if err != nil {
		return err
	}

	return s.store.Put(ctx, sessionID, artifact.KeyEmbedding, &artifact.Embedding{
		SessionID: sessionID,
		Vector:    vector,
		Text:      transcript.Text,
		CreatedAt: s.now(),
	})
}

// Match is one query hit.
type Match struct {
	SessionID string  `json:"session_id"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

// Query embeds the query text and ranks all indexed sessions by cosine
// similarity. Ordering is stable: descending score, then session ID.
func (s *Search) Query(ctx context.Context, query string, limit int) ([]Match, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	sessions, err := s.store.Sessions(ctx, artifact.KeyEmbedding)
	if err != nil {
		return nil, fmt.Errorf("list indexed sessions: %w", err)
	}

	var matches []Match
	for _, sessionID := range sessions {
		var emb artifact.Embedding
		if err := s.store.Get(ctx, sessionID, artifact.KeyEmbedding, &emb); err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load embedding %s: %w", sessionID, err)
		}
		matches = append(matches, Match{
			SessionID: sessionID,
			Score:     cosine(queryVec, emb.Vector),
			Text:      emb.Text,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].SessionID < matches[j].SessionID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
