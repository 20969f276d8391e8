package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/store"
)

// Ranking pool bounds: the pool over-fetches so relevant-but-not-strongest
// units can surface, but never walks an unbounded corpus.
const (
	poolMin = 50
	poolMax = 200
)

// indexSummaryChars caps the summary shown in index items; the full text is
// a detail fetch away.
const indexSummaryChars = 160

// Ranker produces index (lightweight) and detail (full) views of the memory
// store, scope- and relevance-filtered.
type Ranker struct {
	db           *store.DB
	defaultLimit int
	log          *zap.Logger
	now          func() time.Time
}

// NewRanker creates a Ranker bound to the given store and configuration.
func NewRanker(db *store.DB, cfg config.Config, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{
		db:           db,
		defaultLimit: cfg.Memory.DefaultRetrievalLimit,
		log:          logger,
		now:          time.Now,
	}
}

// IndexQuery selects and ranks index items.
type IndexQuery struct {
	Text            string    `json:"text,omitempty"`
	Limit           int       `json:"limit,omitempty"`
	Store           string    `json:"store,omitempty"`
	Classifications []string  `json:"classifications,omitempty"`
	MinStrength     float64   `json:"min_strength,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Since           time.Time `json:"since,omitempty"`
}

// IndexItem is the lightweight projection served first under progressive
// disclosure.
type IndexItem struct {
	ID             string   `json:"id"`
	Store          string   `json:"store"`
	Classification string   `json:"classification"`
	Summary        string   `json:"summary"`
	Tags           []string `json:"tags,omitempty"`
	Strength       float64  `json:"strength"`
	Relevance      float64  `json:"relevance"`
	CreatedAt      int64    `json:"created_at"`
}

// Detail is the full projection fetched for selected ids.
type Detail struct {
	store.MemoryUnit
}

// RetrieveIndex ranks a bounded pool of the strongest units. With a text
// query, relevance dominates and strength acts only as a multiplicative
// tiebreak — a weak-but-relevant unit can outrank a strong-but-irrelevant
// one. Without text, raw strength orders the result.
func (r *Ranker) RetrieveIndex(q IndexQuery) ([]IndexItem, error) {
	limit := r.limit(q.Limit)
	pool, err := r.db.GetTopMemories(poolSize(limit))
	if err != nil {
		return nil, err
	}
	return r.rank(pool, q, limit), nil
}

// ScopeOptions selects the scope-partitioned pool.
type ScopeOptions struct {
	ProjectScope string `json:"project_scope,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// RetrieveByScope ranks the scope-visible pool by strength: user-level
// units plus units matching the project scope.
func (r *Ranker) RetrieveByScope(opts ScopeOptions) ([]IndexItem, error) {
	return r.SearchByScope("", opts)
}

// SearchByScope applies the text ranking to the scope-visible pool.
func (r *Ranker) SearchByScope(text string, opts ScopeOptions) ([]IndexItem, error) {
	limit := r.limit(opts.Limit)
	pool, err := r.db.GetMemoriesByScope(opts.ProjectScope, poolSize(limit))
	if err != nil {
		return nil, err
	}
	return r.rank(pool, IndexQuery{Text: text}, limit), nil
}

// RetrieveDetails fetches full units by id, silently skipping unknown ids.
// When sessionID is supplied, each served unit gets a retrieval event and a
// frequency increment.
func (r *Ranker) RetrieveDetails(ids []string, sessionID string) ([]Detail, error) {
	details := make([]Detail, 0, len(ids))
	for _, id := range ids {
		unit, err := r.db.GetMemory(id)
		if err != nil {
			return nil, err
		}
		if unit == nil {
			r.log.Debug("detail fetch skipping unknown id", zap.String("id", id))
			continue
		}

		if sessionID != "" {
			if err := r.db.AddRetrievalEvent(sessionID, id); err != nil {
				return nil, err
			}
			if err := r.db.IncrementFrequency(id); err != nil {
				return nil, err
			}
			unit.Frequency++
		}
		details = append(details, Detail{MemoryUnit: *unit})
	}
	return details, nil
}

func (r *Ranker) limit(requested int) int {
	if requested <= 0 {
		return r.defaultLimit
	}
	return requested
}

// poolSize clamps the over-fetch factor to [50, 200].
func poolSize(limit int) int {
	size := limit * 10
	if size < poolMin {
		return poolMin
	}
	if size > poolMax {
		return poolMax
	}
	return size
}

func (r *Ranker) rank(pool []store.MemoryUnit, q IndexQuery, limit int) []IndexItem {
	nowMs := r.now().UnixMilli()
	queryTokens := tokenize(q.Text)
	keywords := queryKeywords(q.Text)

	items := make([]IndexItem, 0, len(pool))
	for i := range pool {
		u := &pool[i]
		if !matchesFilters(u, q) {
			continue
		}

		relevance := u.Strength
		if q.Text != "" {
			relevance = textRelevance(u, queryTokens, keywords, nowMs)
		}

		items = append(items, IndexItem{
			ID:             u.ID,
			Store:          u.Store,
			Classification: u.Classification,
			Summary:        truncateClean(u.Summary, indexSummaryChars),
			Tags:           u.Tags,
			Strength:       u.Strength,
			Relevance:      relevance,
			CreatedAt:      u.CreatedAt,
		})
	}

	// Repeated calls over an unchanged store must return the same order:
	// ties break on strength, then recency, then id.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Relevance != items[j].Relevance {
			return items[i].Relevance > items[j].Relevance
		}
		if items[i].Strength != items[j].Strength {
			return items[i].Strength > items[j].Strength
		}
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func matchesFilters(u *store.MemoryUnit, q IndexQuery) bool {
	if q.Store != "" && u.Store != q.Store {
		return false
	}
	if len(q.Classifications) > 0 && !containsString(q.Classifications, u.Classification) {
		return false
	}
	if u.Strength < q.MinStrength {
		return false
	}
	if len(q.Tags) > 0 && !tagsIntersect(u.Tags, q.Tags) {
		return false
	}
	if !q.Since.IsZero() && u.CreatedAt < q.Since.UnixMilli() {
		return false
	}
	return true
}

// textRelevance implements the ranking formula:
//
//	relevance = textSim·2.0·(0.5 + strength·0.5) + tagBonus + recencyBonus
//
// clamped to [0,1]. The 2.0 coefficient makes text similarity dominate so
// distinct queries produce materially distinct orderings.
func textRelevance(u *store.MemoryUnit, queryTokens map[string]bool, keywords []string, nowMs int64) float64 {
	textSim := textSimilarity(u.Summary, queryTokens, keywords)

	tagBonus := 0.15 * float64(matchingTags(u.Tags, keywords))

	ageHours := float64(nowMs-u.CreatedAt) / float64(time.Hour.Milliseconds())
	recencyBonus := math.Max(0, 0.05-ageHours/2000)

	return clamp01(textSim*2.0*(0.5+u.Strength*0.5) + tagBonus + recencyBonus)
}

// textSimilarity blends word-set overlap with keyword substring hits:
// 0.5·jaccard + 0.5·(hits / keywordCount).
func textSimilarity(summary string, queryTokens map[string]bool, keywords []string) float64 {
	sim := 0.5 * jaccard(tokenize(summary), queryTokens)
	if len(keywords) > 0 {
		lower := strings.ToLower(summary)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		sim += 0.5 * float64(hits) / float64(len(keywords))
	}
	return sim
}

// queryKeywords extracts the query words of length > 2, lowercased, matched
// as substrings.
func queryKeywords(text string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(word) > 2 {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

func matchingTags(tags, keywords []string) int {
	count := 0
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				count++
				break
			}
		}
	}
	return count
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func tagsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}
