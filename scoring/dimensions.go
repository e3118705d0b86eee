package scoring

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/speechcoach/pipeline/artifact"
)

// Rubric categories, in scoring order.
const (
	CategoryClarity    = "clarity"
	CategoryPace       = "pace"
	CategoryVolume     = "volume"
	CategoryEngagement = "engagement"
	CategoryStructure  = "structure"
)

var categories = []string{
	CategoryClarity,
	CategoryPace,
	CategoryVolume,
	CategoryEngagement,
	CategoryStructure,
}

// DefaultWeights is the rubric used when the caller supplies none.
var DefaultWeights = map[string]float64{
	CategoryClarity:    0.25,
	CategoryPace:       0.20,
	CategoryVolume:     0.15,
	CategoryEngagement: 0.20,
	CategoryStructure:  0.20,
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// safeScore runs one dimension function, degrading locally on any panic:
// score 5.0, default weight, "Unable to assess". A bad input signal must
// never take down the whole fusion.
func safeScore(category string, fn func() artifact.DimensionScore) (d artifact.DimensionScore) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"category": category, "panic": r}).
				Error("dimension score calculation failed")
			d = artifact.DimensionScore{
				Score:    5.0,
				Weight:   DefaultWeights[category],
				Feedback: "Unable to assess " + category,
			}
		}
	}()
	return fn()
}

// clarityScore rates articulation: transcript confidence minus penalties for
// filler words and immediate repetitions.
func clarityScore(t *artifact.Transcript, f *artifact.Fluency) artifact.DimensionScore {
	fillerRate := f.FillerWords.Rate
	repetitions := float64(f.SpeechPatterns.Repetitions)

	base := t.Confidence * 10
	fillerPenalty := math.Min(2.0, fillerRate*20)
	repetitionPenalty := math.Min(1.0, repetitions*0.5)
	score := clamp(base-fillerPenalty-repetitionPenalty, 0, 10)

	return artifact.DimensionScore{
		Score:      score,
		Weight:     DefaultWeights[CategoryClarity],
		Feedback:   clarityFeedback(score),
		Confidence: t.Confidence,
		Factors: map[string]float64{
			"transcript_confidence": t.Confidence,
			"filler_word_rate":      fillerRate,
			"repetitions":           repetitions,
		},
	}
}

// paceScore rates speaking rate against the 120-150 WPM ideal band, with a
// bonus for strategic pausing and a penalty for excessive dead air.
func paceScore(p *artifact.Prosody) artifact.DimensionScore {
	wpm := p.WPM.Current
	var score float64
	switch {
	case wpm >= 120 && wpm <= 150:
		score = 9.0
	case wpm >= 100 && wpm < 120:
		score = 7.0
	case wpm > 150 && wpm <= 180:
		score = 6.0
	case wpm < 100:
		score = 4.0
	default:
		score = 3.0
	}

	pauseDuration := p.Pauses.TotalDuration
	if pauseDuration >= 0.5 && pauseDuration <= 2.0 {
		score += 0.5
	} else if pauseDuration > 4.0 {
		score -= 1.0
	}
	score = clamp(score, 0, 10)

	return artifact.DimensionScore{
		Score:    score,
		Weight:   DefaultWeights[CategoryPace],
		Feedback: paceFeedback(score, wpm),
		Factors: map[string]float64{
			"words_per_minute": wpm,
			"pause_count":      float64(p.Pauses.Count),
			"pause_duration":   pauseDuration,
		},
	}
}

// volumeScore rates loudness against the -18 to -12 dB ideal band and
// penalizes high variability.
func volumeScore(p *artifact.Prosody) artifact.DimensionScore {
	mean := p.RMS.Mean
	std := p.RMS.Std

	var score float64
	switch {
	case mean >= -18 && mean <= -12:
		score = 9.0
	case mean >= -20 && mean < -18:
		score = 7.0
	case mean > -12 && mean <= -10:
		score = 6.0
	case mean < -20:
		score = 4.0
	default:
		score = 3.0
	}
	if std > 3.0 {
		score -= 1.0
	}
	score = clamp(score, 0, 10)

	return artifact.DimensionScore{
		Score:    score,
		Weight:   DefaultWeights[CategoryVolume],
		Feedback: volumeFeedback(score, mean),
		Factors: map[string]float64{
			"mean_volume":        mean,
			"volume_variability": std,
		},
	}
}

// engagementScore rates vocal variety from pitch variation, adjusted by
// lexical diversity.
func engagementScore(p *artifact.Prosody, f *artifact.Fluency) artifact.DimensionScore {
	f0Std := p.F0.Std
	ttr := f.VocabularyDiversity.TypeTokenRatio

	var score float64
	switch {
	case f0Std > 20:
		score = 8.0
	case f0Std > 15:
		score = 7.0
	case f0Std > 10:
		score = 6.0
	default:
		score = 4.0
	}
	if ttr > 0.7 {
		score += 1.0
	} else if ttr < 0.4 {
		score -= 1.0
	}
	score = clamp(score, 0, 10)

	return artifact.DimensionScore{
		Score:    score,
		Weight:   DefaultWeights[CategoryEngagement],
		Feedback: engagementFeedback(score),
		Factors: map[string]float64{
			"pitch_variation":      f0Std,
			"vocabulary_diversity": ttr,
		},
	}
}

// structureScore rates grammar and sentence construction.
func structureScore(f *artifact.Fluency) artifact.DimensionScore {
	errorRate := f.GrammarErrors.ErrorRate
	complexityRatio := f.SentenceComplexity.ComplexityRatio
	avgLength := f.SentenceComplexity.AverageLength

	var score float64
	switch {
	case errorRate < 0.02:
		score = 8.0
	case errorRate < 0.05:
		score = 6.0
	case errorRate < 0.1:
		score = 4.0
	default:
		score = 2.0
	}
	if complexityRatio >= 0.3 && complexityRatio <= 0.7 {
		score += 1.0
	}
	if avgLength >= 8 && avgLength <= 20 {
		score += 0.5
	}
	score = clamp(score, 0, 10)

	return artifact.DimensionScore{
		Score:    score,
		Weight:   DefaultWeights[CategoryStructure],
		Feedback: structureFeedback(score),
		Factors: map[string]float64{
			"grammar_error_rate":      errorRate,
			"sentence_complexity":     complexityRatio,
			"average_sentence_length": avgLength,
		},
	}
}
