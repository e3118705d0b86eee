package stages

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/scoring"
	"github.com/speechcoach/pipeline/worker"
)

const StageDrills = "drill"

//go:embed drills.yaml
var drillCatalogYAML []byte

// drillCatalog is the built-in exercise material, decoded once at startup.
type drillCatalog struct {
	MinimalPairs struct {
		Difficulty map[string][]string   `yaml:"difficulty"` // difficulty -> pair set names
		Sets       map[string][][]string `yaml:"sets"`       // set name -> word pairs
	} `yaml:"minimal_pairs"`
	PacingTexts    []string            `yaml:"pacing_texts"`
	ShadowingTexts []string            `yaml:"shadowing_texts"`
	TongueTwisters map[string][]string `yaml:"tongue_twisters"`
	Breathing      map[string]struct {
		Inhale    int `yaml:"inhale"`
		Hold      int `yaml:"hold"`
		Exhale    int `yaml:"exhale"`
		HoldEmpty int `yaml:"hold_empty"`
		Cycles    int `yaml:"cycles"`
	} `yaml:"breathing"`
	PacingTargets map[string]struct {
		TargetWPM    int `yaml:"target_wpm"`
		MetronomeBPM int `yaml:"metronome_bpm"`
	} `yaml:"pacing_targets"`
	ShadowingDelays map[string]float64 `yaml:"shadowing_delays"`
}

func loadDrillCatalog() (*drillCatalog, error) {
	var cat drillCatalog
	if err := yaml.Unmarshal(drillCatalogYAML, &cat); err != nil {
		return nil, fmt.Errorf("decode drill catalog: %w", err)
	}
	return &cat, nil
}

type DrillRequest struct {
	SessionID  string   `json:"session_id"`
	DrillTypes []string `json:"drill_types,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
}

func (r *DrillRequest) Session() string { return r.SessionID }

func (r *DrillRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	switch r.Difficulty {
	case "", "beginner", "intermediate", "advanced":
		return nil
	default:
		return fmt.Errorf("unknown difficulty %q", r.Difficulty)
	}
}

// DrillStage builds a personalized exercise set. Scoring and fluency
// artifacts refine the recommendation when present but are not required;
// without them the requested types are used as-is. Exercise material is
// selected deterministically from the session ID so re-runs produce the same
// drill set (last-write-wins on the artifact key is then harmless).
type DrillStage struct {
	store   artifact.Store
	catalog *drillCatalog
	now     func() time.Time
}

func NewDrillStage(store artifact.Store) (*DrillStage, error) {
	catalog, err := loadDrillCatalog()
	if err != nil {
		return nil, err
	}
	return &DrillStage{store: store, catalog: catalog, now: time.Now}, nil
}

func (s *DrillStage) Name() string              { return StageDrills }
func (s *DrillStage) ArtifactKey() artifact.Key { return artifact.KeyDrills }

func (s *DrillStage) Run(ctx context.Context, req worker.Request) (any, error) {
	r, ok := req.(*DrillRequest)
	if !ok {
		return nil, fmt.Errorf("drill: unexpected request type %T", req)
	}

	difficulty := r.Difficulty
	if difficulty == "" {
		difficulty = "intermediate"
	}
	requested := r.DrillTypes
	if len(requested) == 0 {
		requested = []string{"minimal_pairs", "pacing", "shadowing"}
	}

	types := s.selectTypes(ctx, r.SessionID, requested)

	seed := sessionSeed(r.SessionID)
	var drills []artifact.Drill
	totalDuration := 0
	for _, drillType := range types {
		drill, ok := s.buildDrill(drillType, difficulty, seed)
		if !ok {
			continue
		}
		drills = append(drills, drill)
		totalDuration += drill.Duration
	}

	var recommendations []artifact.DrillRecommendation
	for _, drill := range drills {
		priority := "medium"
		if drill.Difficulty == "beginner" {
			priority = "high"
		}
		recommendations = append(recommendations, artifact.DrillRecommendation{
			DrillID:  drill.ID,
			Reason:   fmt.Sprintf("Targeted practice for %s improvement", drill.Type),
			Priority: priority,
		})
	}

	return &artifact.DrillSet{
		SessionID:       r.SessionID,
		Drills:          drills,
		Recommendations: recommendations,
		TotalDuration:   totalDuration,
		Difficulty:      difficulty,
		GeneratedAt:     s.now(),
	}, nil
}

// selectTypes merges the requested drill types with the ones the session's
// scoring and fluency artifacts suggest. Without both artifacts only the
// request drives the selection.
func (s *DrillStage) selectTypes(ctx context.Context, sessionID string, requested []string) []string {
	var scoringResult artifact.ScoringResult
	var fluency artifact.Fluency
	haveScoring := s.store.Get(ctx, sessionID, artifact.KeyScoring, &scoringResult) == nil
	haveFluency := s.store.Get(ctx, sessionID, artifact.KeyFluency, &fluency) == nil

	if !haveScoring || !haveFluency {
		return dedupe(requested, 3)
	}
	recommended := recommendDrills(&scoringResult, &fluency)
	return dedupe(append(append([]string{}, requested...), recommended...), 4)
}

// recommendDrills maps weak rubric dimensions to drill types: clarity below 6
// wants minimal pairs and articulation, pace wants pacing, volume wants
// breathing, and a high filler rate wants pacing too. At most three, never
// empty.
func recommendDrills(result *artifact.ScoringResult, fluency *artifact.Fluency) []string {
	dimension := func(category string) float64 {
		if dim, ok := result.RubricScores[category]; ok {
			return dim.Score
		}
		return 5
	}

	var recommended []string
	if dimension(scoring.CategoryClarity) < 6 {
		recommended = append(recommended, "minimal_pairs", "articulation")
	}
	if dimension(scoring.CategoryPace) < 6 {
		recommended = append(recommended, "pacing")
	}
	if dimension(scoring.CategoryVolume) < 6 {
		recommended = append(recommended, "breathing")
	}
	if fluency.FillerWords.Rate > 0.05 {
		recommended = append(recommended, "pacing")
	}
	if len(recommended) == 0 {
		recommended = []string{"minimal_pairs", "pacing"}
	}
	return dedupe(recommended, 3)
}

func (s *DrillStage) buildDrill(drillType, difficulty string, seed uint64) (artifact.Drill, bool) {
	switch drillType {
	case "minimal_pairs":
		return s.minimalPairsDrill(difficulty, seed), true
	case "pacing":
		return s.pacingDrill(difficulty, seed), true
	case "shadowing":
		return s.shadowingDrill(difficulty, seed), true
	case "articulation":
		return s.articulationDrill(difficulty, seed), true
	case "breathing":
		return s.breathingDrill(difficulty, seed), true
	default:
		return artifact.Drill{}, false
	}
}

func (s *DrillStage) minimalPairsDrill(difficulty string, seed uint64) artifact.Drill {
	setNames := s.catalog.MinimalPairs.Difficulty[difficulty]
	if len(setNames) == 0 {
		setNames = s.catalog.MinimalPairs.Difficulty["intermediate"]
	}
	setName := setNames[int(seed%uint64(len(setNames)))]
	wordPairs := s.catalog.MinimalPairs.Sets[setName]

	limit := 4
	if len(wordPairs) < limit {
		limit = len(wordPairs)
	}
	pairs := make([]artifact.DrillPair, 0, limit)
	for _, p := range wordPairs[:limit] {
		pairs = append(pairs, artifact.DrillPair{
			Word1:     p[0],
			Word2:     p[1],
			AudioURL1: fmt.Sprintf("/audio/minimal_pairs/%s.mp3", p[0]),
			AudioURL2: fmt.Sprintf("/audio/minimal_pairs/%s.mp3", p[1]),
		})
	}

	return artifact.Drill{
		ID:           drillID("minimal_pairs", seed),
		Type:         "minimal_pairs",
		Title:        fmt.Sprintf("%s Minimal Pairs", setName),
		Description:  fmt.Sprintf("Practice distinguishing the %s sound contrast", setName),
		Pairs:        pairs,
		Difficulty:   difficulty,
		Duration:     180,
		Instructions: "Listen to each pair and practice saying both words clearly. Focus on the sound difference.",
	}
}

func (s *DrillStage) pacingDrill(difficulty string, seed uint64) artifact.Drill {
	target := s.catalog.PacingTargets[difficulty]
	text := pick(s.catalog.PacingTexts, seed)

	return artifact.Drill{
		ID:           drillID("pacing", seed),
		Type:         "pacing",
		Title:        "Pacing Practice",
		Description:  fmt.Sprintf("Practice speaking at %d words per minute with metronome guidance", target.TargetWPM),
		Text:         text,
		TargetWPM:    target.TargetWPM,
		MetronomeBPM: target.MetronomeBPM,
		Difficulty:   difficulty,
		Duration:     240,
		Instructions: fmt.Sprintf("Read the text aloud while following the %d BPM metronome. Aim for %d words per minute.", target.MetronomeBPM, target.TargetWPM),
	}
}

func (s *DrillStage) shadowingDrill(difficulty string, seed uint64) artifact.Drill {
	delay := s.catalog.ShadowingDelays[difficulty]
	text := pick(s.catalog.ShadowingTexts, seed)

	return artifact.Drill{
		ID:           drillID("shadowing", seed),
		Type:         "shadowing",
		Title:        "Shadowing Exercise",
		Description:  fmt.Sprintf("Repeat after the audio with %.1fs delay", delay),
		Text:         text,
		AudioURL:     fmt.Sprintf("/audio/shadowing/%s.mp3", drillID("shadowing", seed)),
		DelaySeconds: delay,
		Difficulty:   difficulty,
		Duration:     180,
		Instructions: fmt.Sprintf("Listen to the audio and repeat the text with a %.1f-second delay. Focus on matching pronunciation and intonation.", delay),
	}
}

func (s *DrillStage) articulationDrill(difficulty string, seed uint64) artifact.Drill {
	twisters := s.catalog.TongueTwisters[difficulty]
	if len(twisters) == 0 {
		twisters = s.catalog.TongueTwisters["intermediate"]
	}

	return artifact.Drill{
		ID:           drillID("articulation", seed),
		Type:         "articulation",
		Title:        "Articulation Practice",
		Description:  "Practice clear articulation with tongue twisters",
		Text:         pick(twisters, seed),
		Difficulty:   difficulty,
		Duration:     120,
		Instructions: "Say the tongue twister slowly at first, then gradually increase speed while maintaining clarity.",
	}
}

func (s *DrillStage) breathingDrill(difficulty string, seed uint64) artifact.Drill {
	p, ok := s.catalog.Breathing[difficulty]
	if !ok {
		p = s.catalog.Breathing["intermediate"]
	}
	pattern := &artifact.BreathingPattern{
		Inhale:    p.Inhale,
		Hold:      p.Hold,
		Exhale:    p.Exhale,
		HoldEmpty: p.HoldEmpty,
		Cycles:    p.Cycles,
	}

	return artifact.Drill{
		ID:           drillID("breathing", seed),
		Type:         "breathing",
		Title:        "Breathing Exercise",
		Description:  "Practice diaphragmatic breathing for better voice control",
		Pattern:      pattern,
		Difficulty:   difficulty,
		Duration:     180,
		Instructions: fmt.Sprintf("Follow the breathing pattern: Inhale for %ds, hold for %ds, exhale for %ds. Repeat %d times.", p.Inhale, p.Hold, p.Exhale, p.Cycles),
	}
}

func sessionSeed(sessionID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	return h.Sum64()
}

func drillID(drillType string, seed uint64) string {
	return fmt.Sprintf("%s_%08x", drillType, uint32(seed))
}

func pick(items []string, seed uint64) string {
	if len(items) == 0 {
		return ""
	}
	return items[int(seed%uint64(len(items)))]
}

// dedupe keeps first occurrences, capped at limit.
func dedupe(items []string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
