package artifact

import "time"

// Word is a single recognized word with timing from the transcription engine.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Segment is a contiguous span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the transcription stage output for a session.
type Transcript struct {
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"` // sec
	Confidence  float64   `json:"confidence"`
	Words       []Word    `json:"words"`
	Segments    []Segment `json:"segments,omitempty"`
	FillerWords []string  `json:"filler_words,omitempty"`
}

// SignalStats summarizes a sampled acoustic signal (F0 in Hz, RMS in dB).
type SignalStats struct {
	Mean     float64         `json:"mean"`
	Std      float64         `json:"std"`
	Min      float64         `json:"min"`
	Max      float64         `json:"max"`
	Timeline []TimelinePoint `json:"timeline,omitempty"`
}

type TimelinePoint struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

type PauseSegment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

type PauseStats struct {
	Count           int            `json:"count"`
	TotalDuration   float64        `json:"total_duration"`
	AverageDuration float64        `json:"average_duration"`
	Segments        []PauseSegment `json:"segments,omitempty"`
}

type WPMStats struct {
	Current  float64         `json:"current"`
	Average  float64         `json:"average"`
	Timeline []TimelinePoint `json:"timeline,omitempty"`
}

// Prosody is the prosody stage output: pitch, energy, voice quality, pauses, pace.
type Prosody struct {
	F0            SignalStats        `json:"f0"`
	RMS           SignalStats        `json:"rms"`
	JitterShimmer map[string]float64 `json:"jitter_shimmer,omitempty"`
	Pauses        PauseStats         `json:"pauses"`
	WPM           WPMStats           `json:"wpm"`
	AudioDuration float64            `json:"audio_duration"`
}

type FillerStats struct {
	Count     int      `json:"filler_word_count"`
	Rate      float64  `json:"filler_word_rate"` // fillers per word
	Words     []string `json:"filler_words,omitempty"`
	Positions []Word   `json:"filler_positions,omitempty"`
}

type GrammarError struct {
	Type         string   `json:"type"`
	Message      string   `json:"message"`
	Context      string   `json:"context,omitempty"`
	Offset       int      `json:"offset"`
	Length       int      `json:"error_length"`
	Replacements []string `json:"replacements,omitempty"`
}

type GrammarStats struct {
	Errors     []GrammarError `json:"grammar_errors,omitempty"`
	ErrorCount int            `json:"error_count"`
	ErrorRate  float64        `json:"error_rate"` // errors per word
}

type VocabularyStats struct {
	TypeTokenRatio float64 `json:"type_token_ratio"`
	UniqueWords    int     `json:"unique_words"`
	TotalWords     int     `json:"total_words"`
	Richness       string  `json:"vocabulary_richness,omitempty"`
}

type ComplexityStats struct {
	AverageLength    float64 `json:"average_length"` // words per sentence
	ComplexSentences int     `json:"complex_sentences"`
	SimpleSentences  int     `json:"simple_sentences"`
	SentenceCount    int     `json:"sentence_count"`
	ComplexityRatio  float64 `json:"complexity_ratio"`
}

type PatternStats struct {
	Repetitions         int `json:"repetitions"`
	SelfCorrections     int `json:"self_corrections"`
	IncompleteSentences int `json:"incomplete_sentences"`
	RunOnSentences      int `json:"run_on_sentences"`
}

// Fluency is the fluency stage output: disfluencies, grammar, vocabulary, structure.
type Fluency struct {
	FillerWords         FillerStats     `json:"filler_words"`
	GrammarErrors       GrammarStats    `json:"grammar_errors"`
	VocabularyDiversity VocabularyStats `json:"vocabulary_diversity"`
	SentenceComplexity  ComplexityStats `json:"sentence_complexity"`
	SpeechPatterns      PatternStats    `json:"speech_patterns"`
	OverallFluencyScore float64         `json:"overall_fluency_score"`
}

// DimensionScore is one rubric dimension of the scoring result. Factors is an
// open bag: the fusion engine passes through whatever signals fed the score.
type DimensionScore struct {
	Score      float64            `json:"score"`
	Weight     float64            `json:"weight"`
	Feedback   string             `json:"feedback"`
	Confidence float64            `json:"confidence,omitempty"`
	Factors    map[string]float64 `json:"factors,omitempty"`
}

// Band is the uncertainty interval around one dimension score.
type Band struct {
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
	Uncertainty float64 `json:"uncertainty"`
}

type ImprovementArea struct {
	Category   string `json:"category"`
	Suggestion string `json:"suggestion"`
}

type Strength struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

// ScoringResult is the fused assessment across all rubric dimensions.
// Written only by the scoring stage; each run is a full overwrite.
type ScoringResult struct {
	OverallScore     float64                   `json:"overall_score"`
	Confidence       float64                   `json:"confidence"`
	RubricScores     map[string]DimensionScore `json:"rubric_scores"`
	UncertaintyBands map[string]Band           `json:"uncertainty_bands,omitempty"`
	ImprovementAreas []ImprovementArea         `json:"improvement_areas"`
	Strengths        []Strength                `json:"strengths"`
	RubricWeights    map[string]float64        `json:"rubric_weights"`
	AnalyzedAt       time.Time                 `json:"analysis_timestamp"`
}

type DrillPair struct {
	Word1     string `json:"word1"`
	Word2     string `json:"word2"`
	AudioURL1 string `json:"audio_url1,omitempty"`
	AudioURL2 string `json:"audio_url2,omitempty"`
}

type BreathingPattern struct {
	Inhale    int `json:"inhale"`
	Hold      int `json:"hold"`
	Exhale    int `json:"exhale"`
	HoldEmpty int `json:"hold_empty,omitempty"`
	Cycles    int `json:"cycles"`
}

// Drill is one practice exercise. Fields beyond the common set depend on Type.
type Drill struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Difficulty   string            `json:"difficulty"`
	Duration     int               `json:"estimated_duration"` // sec
	Instructions string            `json:"instructions"`
	Text         string            `json:"text,omitempty"`
	Pairs        []DrillPair       `json:"pairs,omitempty"`
	TargetWPM    int               `json:"target_wpm,omitempty"`
	MetronomeBPM int               `json:"metronome_bpm,omitempty"`
	AudioURL     string            `json:"audio_url,omitempty"`
	DelaySeconds float64           `json:"delay_seconds,omitempty"`
	Pattern      *BreathingPattern `json:"pattern,omitempty"`
}

type DrillRecommendation struct {
	DrillID  string `json:"drill_id"`
	Reason   string `json:"reason"`
	Priority string `json:"priority"`
}

// DrillSet is the drill stage output: personalized exercises for a session.
type DrillSet struct {
	SessionID       string                `json:"session_id"`
	Drills          []Drill               `json:"drills"`
	Recommendations []DrillRecommendation `json:"recommendations"`
	TotalDuration   int                   `json:"total_duration"`
	Difficulty      string                `json:"difficulty"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

type Caption struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ClipResult is the clip stage output: trimmed media uploaded to object storage.
type ClipResult struct {
	ClipID       string    `json:"clip_id"`
	SessionID    string    `json:"session_id"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Start        float64   `json:"start"`
	End          float64   `json:"end"`
	Duration     float64   `json:"duration"`
	Captions     []Caption `json:"captions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReportResult is the report stage output: a rendered document in object storage.
type ReportResult struct {
	SessionID   string    `json:"session_id"`
	Format      string    `json:"format"` // pdf, csv, json
	URL         string    `json:"url"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Embedding is the search stage output: a transcript embedding for semantic search.
type Embedding struct {
	SessionID string    `json:"session_id"`
	Vector    []float64 `json:"embedding"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
