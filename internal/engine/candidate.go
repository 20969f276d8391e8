package engine

import (
	"fmt"
	"strings"

	"github.com/engramhq/engram/internal/store"
)

// maxSummaryChars caps candidate summaries. Longer summaries are truncated
// at a word boundary rather than rejected.
const maxSummaryChars = 2000

// ImportanceSignal is one piece of evidence the extractor attached to a
// candidate, e.g. {type: "explicit-request", evidence: "remember this"}.
type ImportanceSignal struct {
	Type     string `json:"type"`
	Evidence string `json:"evidence"`
}

// Candidate is an ephemeral fact proposed by the external extractor. It is
// consumed exactly once by intake and never persisted directly.
type Candidate struct {
	Classification        string             `json:"classification"`
	Summary               string             `json:"summary"`
	SourceEventIDs        []string           `json:"source_event_ids"`
	PreliminaryImportance float64            `json:"preliminary_importance"`
	Confidence            float64            `json:"confidence"`
	Signals               []ImportanceSignal `json:"importance_signals"`
}

// validateCandidate checks a candidate at the intake boundary. Returns a
// sanitized copy and an error if the candidate should be rejected. Scores
// are clamped rather than rejected — scoring never fails on well-typed
// input.
func validateCandidate(c Candidate) (Candidate, error) {
	if !store.Classifications[c.Classification] {
		return c, fmt.Errorf("invalid classification %q", c.Classification)
	}

	c.Summary = strings.TrimSpace(c.Summary)
	if c.Summary == "" {
		return c, fmt.Errorf("empty summary")
	}
	if len(c.Summary) > maxSummaryChars {
		c.Summary = truncateClean(c.Summary, maxSummaryChars)
	}

	c.PreliminaryImportance = clamp01(c.PreliminaryImportance)
	c.Confidence = clamp01(c.Confidence)
	return c, nil
}

// signalTags derives unit tags from the candidate's signal types,
// deduplicated in order of first appearance.
func signalTags(signals []ImportanceSignal) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, s := range signals {
		t := strings.TrimSpace(strings.ToLower(s.Type))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// truncateClean truncates a string to maxLen, cutting at the last word
// boundary to avoid mid-word breaks.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]
	// A spaceless prefix (a URL, a hash) has no boundary to cut at.
	if idx := strings.LastIndexByte(truncated, ' '); idx > 0 && idx > maxLen-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
