package engine

import (
	"math"
	"testing"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/store"
)

func TestNormalizedFrequency(t *testing.T) {
	cases := []struct {
		frequency int
		want      float64
	}{
		{0, 0},
		{1, math.Log(2) / math.Log(10)},
		{9, 1},
		{100, 1},
		{-3, 0},
	}
	for _, c := range cases {
		got := normalizedFrequency(c.frequency)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("normalizedFrequency(%d) = %v, want %v", c.frequency, got, c.want)
		}
	}
}

func TestRecencyFactor(t *testing.T) {
	if got := recencyFactor(0); got != 1 {
		t.Errorf("recencyFactor(0) = %v, want 1", got)
	}
	if got := recencyFactor(84); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("recencyFactor(84) = %v, want 0.5", got)
	}
	if got := recencyFactor(168); got != 0 {
		t.Errorf("recencyFactor(168) = %v, want 0", got)
	}
	if got := recencyFactor(1000); got != 0 {
		t.Errorf("recencyFactor(1000) = %v, want 0", got)
	}
}

func TestScoreClamped(t *testing.T) {
	weights := config.Default().Scoring

	// All features maxed stays within [0,1].
	high := Score(FeatureVector{
		RecencyHours: 0, Frequency: 100,
		Importance: 1, Utility: 1, Novelty: 1, Confidence: 1, Interference: 0,
	}, weights)
	if high < 0 || high > 1 {
		t.Errorf("score = %v, want [0,1]", high)
	}

	// Heavy interference can never push below zero.
	low := Score(FeatureVector{
		RecencyHours: 10000, Frequency: 0, Interference: 1,
	}, weights)
	if low != 0 {
		t.Errorf("score = %v, want 0", low)
	}
}

func TestScoreDeterministic(t *testing.T) {
	weights := config.Default().Scoring
	f := FeatureVector{RecencyHours: 5, Frequency: 3, Importance: 0.7, Utility: 0.5, Novelty: 0.8, Confidence: 0.9, Interference: 0.1}
	if Score(f, weights) != Score(f, weights) {
		t.Error("score not deterministic")
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard("user prefers tabs", "user prefers tabs"); got != 1 {
		t.Errorf("identical jaccard = %v, want 1", got)
	}
	if got := Jaccard("alpha beta", "gamma delta"); got != 0 {
		t.Errorf("disjoint jaccard = %v, want 0", got)
	}
	// Words of length <= 2 and case are ignored.
	if got := Jaccard("GO IS Fast", "go fast"); math.Abs(got-1) > 1e-9 {
		t.Errorf("case-folded jaccard = %v, want 1", got)
	}
	if got := Jaccard("", "anything here"); got != 0 {
		t.Errorf("empty summary jaccard = %v, want 0", got)
	}
}

func TestNoveltyAgainst(t *testing.T) {
	if got := NoveltyAgainst("anything at all", nil); got != 1 {
		t.Errorf("empty corpus novelty = %v, want 1", got)
	}

	corpus := []store.MemoryUnit{
		{Summary: "user prefers tabs over spaces"},
		{Summary: "deploy runs through the staging cluster"},
	}
	near := NoveltyAgainst("user prefers tabs over spaces", corpus)
	if near > 0.01 {
		t.Errorf("near-duplicate novelty = %v, want ~0", near)
	}
	far := NoveltyAgainst("completely unrelated topic entirely", corpus)
	if far != 1 {
		t.Errorf("unrelated novelty = %v, want 1", far)
	}
}

func TestInterferenceAgainst(t *testing.T) {
	corpus := []store.MemoryUnit{
		{Summary: "user prefers tabs over spaces always"},
	}

	// Same topic, divergent content: 0.3 < jaccard < 0.8 contributes.
	conflicting := InterferenceAgainst("user prefers spaces for indentation", corpus)
	if conflicting <= 0 {
		t.Error("expected interference for same-topic divergent summary")
	}
	if conflicting > 0.4 {
		t.Errorf("interference = %v, want <= 0.4 (jaccard*0.5)", conflicting)
	}

	// Duplicates are not conflicts.
	if got := InterferenceAgainst("user prefers tabs over spaces always", corpus); got != 0 {
		t.Errorf("duplicate interference = %v, want 0", got)
	}

	// Unrelated is not a conflict.
	if got := InterferenceAgainst("rotate the api keys quarterly", corpus); got != 0 {
		t.Errorf("unrelated interference = %v, want 0", got)
	}
}
