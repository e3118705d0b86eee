package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/speechcoach/pipeline/artifact"
)

func TestClarityScore(t *testing.T) {
	tests := []struct {
		name        string
		confidence  float64
		fillerRate  float64
		repetitions int
		want        float64
	}{
		{"clean high confidence", 0.9, 0, 0, 9.0},
		{"perfect confidence", 1.0, 0, 0, 10.0},
		{"filler penalty capped at 2", 1.0, 0.5, 0, 8.0},
		{"repetition penalty capped at 1", 1.0, 0, 10, 9.0},
		{"floor at zero", 0.1, 0.5, 10, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcript := &artifact.Transcript{Confidence: tt.confidence}
			fluency := &artifact.Fluency{
				FillerWords:    artifact.FillerStats{Rate: tt.fillerRate},
				SpeechPatterns: artifact.PatternStats{Repetitions: tt.repetitions},
			}
			dim := clarityScore(transcript, fluency)
			assert.InDelta(t, tt.want, dim.Score, 1e-9)
			assert.Equal(t, DefaultWeights[CategoryClarity], dim.Weight)
			assert.Equal(t, tt.confidence, dim.Factors["transcript_confidence"])
			assert.NotEmpty(t, dim.Feedback)
		})
	}
}

func TestPaceScore(t *testing.T) {
	tests := []struct {
		name          string
		wpm           float64
		pauseDuration float64
		want          float64
	}{
		{"ideal rate with strategic pauses", 135, 1.0, 9.5},
		{"ideal rate no pauses", 135, 0, 9.0},
		{"slightly slow", 110, 0, 7.0},
		{"slightly fast", 170, 0, 6.0},
		{"very slow", 60, 0, 4.0},
		{"very fast", 200, 0, 3.0},
		{"excessive pausing penalized", 135, 5.0, 8.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prosody := &artifact.Prosody{
				WPM:    artifact.WPMStats{Current: tt.wpm},
				Pauses: artifact.PauseStats{TotalDuration: tt.pauseDuration},
			}
			dim := paceScore(prosody)
			assert.InDelta(t, tt.want, dim.Score, 1e-9)
			assert.Equal(t, tt.wpm, dim.Factors["words_per_minute"])
		})
	}
}

func TestVolumeScore(t *testing.T) {
	tests := []struct {
		name string
		mean float64
		std  float64
		want float64
	}{
		{"ideal range", -15, 1, 9.0},
		{"slightly quiet", -19, 1, 7.0},
		{"slightly loud", -11, 1, 6.0},
		{"too quiet", -25, 1, 4.0},
		{"too loud", -5, 1, 3.0},
		{"unstable volume penalized", -15, 4, 8.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prosody := &artifact.Prosody{RMS: artifact.SignalStats{Mean: tt.mean, Std: tt.std}}
			dim := volumeScore(prosody)
			assert.InDelta(t, tt.want, dim.Score, 1e-9)
		})
	}
}

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name  string
		f0Std float64
		ttr   float64
		want  float64
	}{
		{"dynamic pitch", 25, 0.5, 8.0},
		{"moderate pitch", 17, 0.5, 7.0},
		{"some pitch variation", 12, 0.5, 6.0},
		{"monotone", 5, 0.5, 4.0},
		{"rich vocabulary bonus", 25, 0.8, 9.0},
		{"repetitive vocabulary penalty", 25, 0.3, 7.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prosody := &artifact.Prosody{F0: artifact.SignalStats{Std: tt.f0Std}}
			fluency := &artifact.Fluency{
				VocabularyDiversity: artifact.VocabularyStats{TypeTokenRatio: tt.ttr},
			}
			dim := engagementScore(prosody, fluency)
			assert.InDelta(t, tt.want, dim.Score, 1e-9)
		})
	}
}

func TestStructureScore(t *testing.T) {
	tests := []struct {
		name            string
		errorRate       float64
		complexityRatio float64
		avgLength       float64
		want            float64
	}{
		{"clean grammar", 0.01, 0, 0, 8.0},
		{"few errors", 0.03, 0, 0, 6.0},
		{"many errors", 0.07, 0, 0, 4.0},
		{"broken grammar", 0.2, 0, 0, 2.0},
		{"balanced complexity bonus", 0.01, 0.5, 0, 9.0},
		{"good sentence length bonus", 0.01, 0.5, 12, 9.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fluency := &artifact.Fluency{
				GrammarErrors: artifact.GrammarStats{ErrorRate: tt.errorRate},
				SentenceComplexity: artifact.ComplexityStats{
					ComplexityRatio: tt.complexityRatio,
					AverageLength:   tt.avgLength,
				},
			}
			dim := structureScore(fluency)
			assert.InDelta(t, tt.want, dim.Score, 1e-9)
		})
	}
}

func TestSafeScoreRecoversPanic(t *testing.T) {
	dim := safeScore(CategoryPace, func() artifact.DimensionScore {
		panic("bad signal")
	})
	assert.Equal(t, 5.0, dim.Score)
	assert.Equal(t, DefaultWeights[CategoryPace], dim.Weight)
	assert.Equal(t, "Unable to assess pace", dim.Feedback)
}
