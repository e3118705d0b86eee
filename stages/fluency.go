package stages

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/engines"
	"github.com/speechcoach/pipeline/worker"
)

const StageFluency = "fluency"

type FluencyRequest struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language,omitempty"`
}

func (r *FluencyRequest) Session() string { return r.SessionID }

func (r *FluencyRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// FluencyStage analyzes the transcript text: filler words, grammar (via the
// grammar engine), vocabulary diversity, sentence complexity and disfluency
// patterns. It requires the transcript artifact and fails fast without it.
type FluencyStage struct {
	checker *engines.GrammarChecker
	store   artifact.Store
}

func NewFluencyStage(checker *engines.GrammarChecker, store artifact.Store) *FluencyStage {
	return &FluencyStage{checker: checker, store: store}
}

func (s *FluencyStage) Name() string              { return StageFluency }
func (s *FluencyStage) ArtifactKey() artifact.Key { return artifact.KeyFluency }

func (s *FluencyStage) Run(ctx context.Context, req worker.Request) (any, error) {
	r, ok := req.(*FluencyRequest)
	if !ok {
		return nil, fmt.Errorf("fluency: unexpected request type %T", req)
	}

	if err := artifact.RequireAll(ctx, s.store, r.SessionID, artifact.KeyTranscript); err != nil {
		return nil, err
	}
	var transcript artifact.Transcript
	if err := s.store.Get(ctx, r.SessionID, artifact.KeyTranscript, &transcript); err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return nil, errors.New("transcript has no text")
	}

	language := r.Language
	if language == "" {
		language = transcript.Language
	}

	fillers := detectFillerWords(transcript.Text, transcript.Words)
	grammar, err := s.checkGrammar(ctx, transcript.Text, language)
	if err != nil {
		return nil, err
	}
	vocabulary := analyzeVocabulary(transcript.Text)
	complexity := analyzeSentenceComplexity(transcript.Text)
	patterns := analyzeSpeechPatterns(transcript.Text, transcript.Words)

	return &artifact.Fluency{
		FillerWords:         fillers,
		GrammarErrors:       grammar,
		VocabularyDiversity: vocabulary,
		SentenceComplexity:  complexity,
		SpeechPatterns:      patterns,
		OverallFluencyScore: fluencyScore(fillers, grammar, vocabulary, patterns),
	}, nil
}

func (s *FluencyStage) checkGrammar(ctx context.Context, text, language string) (artifact.GrammarStats, error) {
	matches, err := s.checker.Check(ctx, text, language)
	if err != nil {
		return artifact.GrammarStats{}, err
	}
	wordCount := len(strings.Fields(text))
	stats := artifact.GrammarStats{
		Errors:     matches,
		ErrorCount: len(matches),
	}
	if wordCount > 0 {
		stats.ErrorRate = float64(len(matches)) / float64(wordCount)
	}
	return stats, nil
}

var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(um|uh|ah|er|erm)\b`),
	regexp.MustCompile(`\b(like|you know|sort of|kind of)\b`),
	regexp.MustCompile(`\b(well|so|basically|actually|literally)\b`),
	regexp.MustCompile(`\b(i mean|i guess|i think|i suppose)\b`),
	regexp.MustCompile(`\b(right|okay|ok|yeah|yep)\b`),
}

// detectFillerWords finds filler words and phrases in the text and maps them
// back to word timestamps where possible.
func detectFillerWords(text string, words []artifact.Word) artifact.FillerStats {
	lower := strings.ToLower(text)
	var found []string
	for _, pattern := range fillerPatterns {
		for _, match := range pattern.FindAllString(lower, -1) {
			found = append(found, match)
		}
	}

	var positions []artifact.Word
	for _, filler := range found {
		for _, w := range words {
			if strings.ToLower(strings.TrimSpace(w.Word)) == filler {
				positions = append(positions, w)
				break
			}
		}
	}

	stats := artifact.FillerStats{
		Count:     len(found),
		Words:     found,
		Positions: positions,
	}
	if n := len(strings.Fields(text)); n > 0 {
		stats.Rate = float64(len(found)) / float64(n)
	}
	return stats
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "of": true, "for": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "this": true, "that": true, "with": true, "as": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"not": true, "so": true, "my": true, "your": true, "me": true, "him": true,
	"her": true, "them": true, "its": true, "our": true, "their": true,
}

var alphaWord = regexp.MustCompile(`[a-zA-Z]+`)

// analyzeVocabulary measures lexical diversity with the type/token ratio over
// content words.
func analyzeVocabulary(text string) artifact.VocabularyStats {
	tokens := alphaWord.FindAllString(strings.ToLower(text), -1)
	var content []string
	for _, tok := range tokens {
		if !stopwords[tok] {
			content = append(content, tok)
		}
	}

	unique := map[string]bool{}
	for _, tok := range content {
		unique[tok] = true
	}

	stats := artifact.VocabularyStats{
		UniqueWords: len(unique),
		TotalWords:  len(content),
	}
	if len(content) > 0 {
		stats.TypeTokenRatio = float64(len(unique)) / float64(len(content))
	}
	switch {
	case stats.TypeTokenRatio > 0.7:
		stats.Richness = "high"
	case stats.TypeTokenRatio > 0.5:
		stats.Richness = "medium"
	default:
		stats.Richness = "low"
	}
	return stats
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// analyzeSentenceComplexity splits on sentence punctuation and classifies
// sentences longer than 15 words as complex.
func analyzeSentenceComplexity(text string) artifact.ComplexityStats {
	var stats artifact.ComplexityStats
	totalWords := 0
	for _, raw := range sentenceSplit.Split(text, -1) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		n := len(alphaWord.FindAllString(sentence, -1))
		if n == 0 {
			continue
		}
		stats.SentenceCount++
		totalWords += n
		if n > 15 {
			stats.ComplexSentences++
		} else {
			stats.SimpleSentences++
		}
	}
	if stats.SentenceCount > 0 {
		stats.AverageLength = float64(totalWords) / float64(stats.SentenceCount)
		stats.ComplexityRatio = float64(stats.ComplexSentences) / float64(stats.SentenceCount)
	}
	return stats
}

var correctionIndicators = []string{"i mean", "that is", "actually", "let me rephrase"}

var incompleteEndings = []string{"of", "in", "at", "to", "for", "with", "by"}

// analyzeSpeechPatterns counts disfluencies: immediate word repetitions,
// self-correction phrases and sentences trailing off on a preposition.
func analyzeSpeechPatterns(text string, words []artifact.Word) artifact.PatternStats {
	var stats artifact.PatternStats

	prev := ""
	for _, w := range words {
		cur := strings.ToLower(strings.TrimSpace(w.Word))
		if cur != "" && cur == prev {
			stats.Repetitions++
		}
		prev = cur
	}

	lower := strings.ToLower(text)
	for _, indicator := range correctionIndicators {
		if strings.Contains(lower, indicator) {
			stats.SelfCorrections++
		}
	}

	for _, raw := range strings.Split(lower, ".") {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		for _, ending := range incompleteEndings {
			if strings.HasSuffix(sentence, " "+ending) {
				stats.IncompleteSentences++
				break
			}
		}
	}
	return stats
}

// fluencyScore blends the per-facet stats into a single 0-10 score.
func fluencyScore(fillers artifact.FillerStats, grammar artifact.GrammarStats,
	vocabulary artifact.VocabularyStats, patterns artifact.PatternStats) float64 {
	score := 10.0

	if fillers.Rate > 0.1 {
		score -= 2.0
	} else if fillers.Rate > 0.05 {
		score -= 1.0
	}

	if grammar.ErrorRate > 0.1 {
		score -= 2.0
	} else if grammar.ErrorRate > 0.05 {
		score -= 1.0
	}

	disfluencies := float64(patterns.Repetitions + patterns.SelfCorrections)
	score -= math.Min(2.0, disfluencies*0.5)

	if vocabulary.TypeTokenRatio > 0.7 {
		score += 0.5
	} else if vocabulary.TypeTokenRatio < 0.4 {
		score -= 0.5
	}

	return math.Max(0.0, math.Min(10.0, score))
}
