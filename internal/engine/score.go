package engine

import (
	"math"
	"strings"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/store"
)

// recencyWindowHours is the window over which the recency factor fades
// linearly to zero: one week.
const recencyWindowHours = 168.0

// Interference window: below the lower bound two summaries are unrelated,
// above the upper bound they are duplicates rather than conflicts.
const (
	interferenceLow  = 0.3
	interferenceHigh = 0.8
)

// FeatureVector holds the inputs to the strength formula.
type FeatureVector struct {
	RecencyHours float64
	Frequency    int
	Importance   float64
	Utility      float64
	Novelty      float64
	Confidence   float64
	Interference float64
}

// Score computes the scalar strength for a feature vector: the weighted sum
// of the seven features, clamped to [0,1]. Pure and deterministic.
func Score(f FeatureVector, w config.ScoringConfig) float64 {
	sum := w.WeightRecency*recencyFactor(f.RecencyHours) +
		w.WeightFrequency*normalizedFrequency(f.Frequency) +
		w.WeightImportance*f.Importance +
		w.WeightUtility*f.Utility +
		w.WeightNovelty*f.Novelty +
		w.WeightConfidence*f.Confidence +
		w.WeightInterference*f.Interference
	return clamp01(sum)
}

// normalizedFrequency saturates repetition logarithmically: 10 or more
// occurrences count as 1.0.
func normalizedFrequency(frequency int) float64 {
	if frequency < 0 {
		frequency = 0
	}
	return math.Min(1, math.Log(float64(frequency)+1)/math.Log(10))
}

// recencyFactor decays linearly from 1 at zero hours to 0 at one week.
func recencyFactor(hours float64) float64 {
	if hours < 0 {
		hours = 0
	}
	return 1 - math.Min(1, hours/recencyWindowHours)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// tokenize produces the case-folded word set of a summary, excluding words
// of length <= 2.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(word) > 2 {
			tokens[word] = true
		}
	}
	return tokens
}

// jaccard computes the Jaccard index over two token sets. Either side empty
// degrades to 0.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// Jaccard computes the word-set Jaccard similarity of two summaries.
func Jaccard(a, b string) float64 {
	return jaccard(tokenize(a), tokenize(b))
}

// NoveltyAgainst returns 1 minus the maximum similarity of summary to any
// corpus member. An empty corpus yields 1.
func NoveltyAgainst(summary string, corpus []store.MemoryUnit) float64 {
	tokens := tokenize(summary)
	maxSim := 0.0
	for i := range corpus {
		if sim := jaccard(tokens, tokenize(corpus[i].Summary)); sim > maxSim {
			maxSim = sim
		}
	}
	return 1 - maxSim
}

// InterferenceAgainst accumulates the interference score of a summary
// against the corpus: corpus members in the same-topic-divergent-content
// band contribute jaccard * 0.5, and the maximum contribution wins.
func InterferenceAgainst(summary string, corpus []store.MemoryUnit) float64 {
	tokens := tokenize(summary)
	interference := 0.0
	for i := range corpus {
		sim := jaccard(tokens, tokenize(corpus[i].Summary))
		if sim > interferenceLow && sim < interferenceHigh {
			interference = math.Max(interference, sim*0.5)
		}
	}
	return interference
}
