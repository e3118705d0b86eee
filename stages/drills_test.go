package stages

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/scoring"
)

func scoredSession(t *testing.T, store artifact.Store, sessionID string, scores map[string]float64, fillerRate float64) {
	t.Helper()
	rubric := map[string]artifact.DimensionScore{}
	for category, score := range scores {
		rubric[category] = artifact.DimensionScore{Score: score}
	}
	require.NoError(t, store.Put(context.Background(), sessionID, artifact.KeyScoring,
		&artifact.ScoringResult{RubricScores: rubric}))
	require.NoError(t, store.Put(context.Background(), sessionID, artifact.KeyFluency,
		&artifact.Fluency{FillerWords: artifact.FillerStats{Rate: fillerRate}}))
}

func TestDrillSetWithoutAnalysis(t *testing.T) {
	store := artifact.NewMemoryStore()
	stage, err := NewDrillStage(store)
	require.NoError(t, err)

	out, err := stage.Run(context.Background(), &DrillRequest{SessionID: "sess-1"})
	require.NoError(t, err)
	set := out.(*artifact.DrillSet)

	// Without scoring and fluency artifacts the default request drives it.
	require.Len(t, set.Drills, 3)
	assert.Equal(t, "minimal_pairs", set.Drills[0].Type)
	assert.Equal(t, "pacing", set.Drills[1].Type)
	assert.Equal(t, "shadowing", set.Drills[2].Type)
	assert.Equal(t, "intermediate", set.Difficulty)
	assert.Equal(t, 600, set.TotalDuration)
	assert.Len(t, set.Recommendations, 3)
}

func TestDrillSetIsDeterministic(t *testing.T) {
	store := artifact.NewMemoryStore()
	stage, err := NewDrillStage(store)
	require.NoError(t, err)

	first, err := stage.Run(context.Background(), &DrillRequest{SessionID: "sess-1"})
	require.NoError(t, err)
	second, err := stage.Run(context.Background(), &DrillRequest{SessionID: "sess-1"})
	require.NoError(t, err)

	a := first.(*artifact.DrillSet)
	b := second.(*artifact.DrillSet)
	a.GeneratedAt = b.GeneratedAt
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("drill generation not deterministic (-first +second):\n%s", diff)
	}
}

func TestPickHighBitSeed(t *testing.T) {
	items := []string{"a", "b", "c"}
	// A seed with the top bit set converts to a negative int; selection must
	// stay in range.
	seed := uint64(1)<<63 | 7
	assert.Equal(t, items[7%3], pick(items, seed))
	assert.Equal(t, "", pick(nil, seed))
}

func TestDrillGenerationAnySessionID(t *testing.T) {
	store := artifact.NewMemoryStore()
	stage, err := NewDrillStage(store)
	require.NoError(t, err)

	// Session hashes cover the full uint64 range; every ID must produce a
	// drill set rather than an out-of-range panic.
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("sess-%d", i)
		out, err := stage.Run(context.Background(), &DrillRequest{SessionID: id})
		require.NoError(t, err, id)
		require.Len(t, out.(*artifact.DrillSet).Drills, 3, id)
	}
}

func TestRecommendDrillsThresholds(t *testing.T) {
	allStrong := map[string]float64{
		scoring.CategoryClarity:    8,
		scoring.CategoryPace:       8,
		scoring.CategoryVolume:     8,
		scoring.CategoryEngagement: 8,
		scoring.CategoryStructure:  8,
	}

	tests := []struct {
		name       string
		adjust     map[string]float64
		fillerRate float64
		want       []string
	}{
		{"weak clarity", map[string]float64{scoring.CategoryClarity: 4}, 0,
			[]string{"minimal_pairs", "articulation"}},
		{"weak pace", map[string]float64{scoring.CategoryPace: 5}, 0,
			[]string{"pacing"}},
		{"weak volume", map[string]float64{scoring.CategoryVolume: 3}, 0,
			[]string{"breathing"}},
		{"high filler rate", nil, 0.1,
			[]string{"pacing"}},
		{"strong speaker fallback", nil, 0,
			[]string{"minimal_pairs", "pacing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := map[string]float64{}
			for k, v := range allStrong {
				scores[k] = v
			}
			for k, v := range tt.adjust {
				scores[k] = v
			}
			rubric := map[string]artifact.DimensionScore{}
			for k, v := range scores {
				rubric[k] = artifact.DimensionScore{Score: v}
			}

			got := recommendDrills(
				&artifact.ScoringResult{RubricScores: rubric},
				&artifact.Fluency{FillerWords: artifact.FillerStats{Rate: tt.fillerRate}},
			)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDrillSelectionMergesAnalysis(t *testing.T) {
	store := artifact.NewMemoryStore()
	stage, err := NewDrillStage(store)
	require.NoError(t, err)

	scoredSession(t, store, "sess-1", map[string]float64{
		scoring.CategoryClarity:    4,
		scoring.CategoryPace:       4,
		scoring.CategoryVolume:     4,
		scoring.CategoryEngagement: 8,
		scoring.CategoryStructure:  8,
	}, 0)

	out, err := stage.Run(context.Background(), &DrillRequest{
		SessionID:  "sess-1",
		DrillTypes: []string{"shadowing"},
	})
	require.NoError(t, err)
	set := out.(*artifact.DrillSet)

	// Requested types come first, recommendations fill up to four.
	var types []string
	for _, d := range set.Drills {
		types = append(types, d.Type)
	}
	assert.Equal(t, []string{"shadowing", "minimal_pairs", "articulation", "pacing"}, types)
}

func TestDrillDifficulty(t *testing.T) {
	store := artifact.NewMemoryStore()
	stage, err := NewDrillStage(store)
	require.NoError(t, err)

	out, err := stage.Run(context.Background(), &DrillRequest{
		SessionID:  "sess-1",
		DrillTypes: []string{"pacing", "breathing"},
		Difficulty: "beginner",
	})
	require.NoError(t, err)
	set := out.(*artifact.DrillSet)

	require.Len(t, set.Drills, 2)
	pacing, breathing := set.Drills[0], set.Drills[1]
	assert.Equal(t, 100, pacing.TargetWPM)
	assert.Equal(t, 60, pacing.MetronomeBPM)
	require.NotNil(t, breathing.Pattern)
	assert.Equal(t, 4, breathing.Pattern.Inhale)
	assert.Equal(t, 5, breathing.Pattern.Cycles)

	for _, rec := range set.Recommendations {
		assert.Equal(t, "high", rec.Priority)
	}
}

func TestDrillRequestValidation(t *testing.T) {
	assert.Error(t, (&DrillRequest{}).Validate())
	assert.Error(t, (&DrillRequest{SessionID: "s", Difficulty: "expert"}).Validate())
	assert.NoError(t, (&DrillRequest{SessionID: "s", Difficulty: "advanced"}).Validate())
}
