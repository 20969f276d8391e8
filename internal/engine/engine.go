// Package engine implements the selective memory core: feature-based
// strength scoring of candidate facts, the stm→ltm consolidation state
// machine driven by exponential decay, reconsolidation of existing facts
// against new evidence, and progressive two-level retrieval ranking.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/store"
)

// ErrInvalidState reports an operation disallowed by a unit's status,
// e.g. reconsolidating a pinned unit.
var ErrInvalidState = errors.New("operation not allowed in current status")

// noveltyScanLimit bounds the corpus scanned for novelty and interference
// at intake. Widening it changes observable scoring behavior.
const noveltyScanLimit = 50

// decayedStrengthFloor is the strength below which an unpromoted stm unit
// is marked decayed during consolidation.
const decayedStrengthFloor = 0.1

// Engine orchestrates candidate intake, session-end decay+consolidation,
// and reconsolidation against the memory store.
type Engine struct {
	db      *store.DB
	scoring config.ScoringConfig
	memory  config.MemoryConfig
	promote map[string]bool
	lambda  float64 // per hour
	log     *zap.Logger
	now     func() time.Time
}

// New creates an Engine bound to the given store and configuration.
func New(db *store.DB, cfg config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:      db,
		scoring: cfg.Scoring,
		memory:  cfg.Memory,
		promote: cfg.Memory.AutoPromoteSet(),
		lambda:  cfg.Memory.Lambda(),
		log:     logger,
		now:     time.Now,
	}
}

// IntakeOptions carries the session and project context of one intake call.
type IntakeOptions struct {
	SessionID    string
	ProjectScope string
}

// ProcessCandidates scores and persists extractor candidates. Invalid
// candidates are rejected individually; valid ones become memory units.
// Novelty and interference are computed against a single corpus snapshot
// taken before the first candidate, so candidates within one call never see
// each other's output.
func (e *Engine) ProcessCandidates(candidates []Candidate, opts IntakeOptions) ([]store.MemoryUnit, error) {
	corpus, err := e.db.GetTopMemories(noveltyScanLimit)
	if err != nil {
		return nil, fmt.Errorf("load scoring corpus: %w", err)
	}

	units := make([]store.MemoryUnit, 0, len(candidates))
	for _, raw := range candidates {
		c, err := validateCandidate(raw)
		if err != nil {
			e.log.Warn("rejecting candidate", zap.String("classification", raw.Classification), zap.Error(err))
			continue
		}

		novelty := NoveltyAgainst(c.Summary, corpus)
		interference := InterferenceAgainst(c.Summary, corpus)

		// First occurrence: recency is zero, frequency is one, utility
		// starts neutral until access feedback arrives.
		strength := Score(FeatureVector{
			RecencyHours: 0,
			Frequency:    1,
			Importance:   c.PreliminaryImportance,
			Utility:      0.5,
			Novelty:      novelty,
			Confidence:   c.Confidence,
			Interference: interference,
		}, e.scoring)

		storeKind := store.StoreSTM
		if e.promote[c.Classification] {
			storeKind = store.StoreLTM
		}

		scope := opts.ProjectScope
		if store.UserLevelClassifications[c.Classification] {
			scope = ""
		}

		unit := store.MemoryUnit{
			Store:          storeKind,
			Classification: c.Classification,
			Summary:        c.Summary,
			Status:         store.StatusActive,
			Strength:       strength,
			Importance:     c.PreliminaryImportance,
			Utility:        0.5,
			Novelty:        novelty,
			Confidence:     c.Confidence,
			Interference:   interference,
			Frequency:      1,
			Tags:           signalTags(c.Signals),
			ProjectScope:   scope,
			SourceEventIDs: c.SourceEventIDs,
		}

		if err := e.db.CreateMemory(&unit); err != nil {
			return units, fmt.Errorf("persist candidate: %w", err)
		}

		// Topic conflicts dampen strength once, as a follow-up update.
		if interference > 0 {
			final := clamp01(strength * (1 - interference*0.2))
			if err := e.db.UpdateMemoryStrength(unit.ID, final); err != nil {
				return units, fmt.Errorf("apply interference: %w", err)
			}
			unit.Strength = final
		}

		e.log.Info("memory created",
			zap.String("id", unit.ID),
			zap.String("store", unit.Store),
			zap.String("classification", unit.Classification),
			zap.String("session", opts.SessionID),
			zap.Float64("strength", unit.Strength))
		units = append(units, unit)
	}
	return units, nil
}

// ApplyDecay reduces the strength of every active unit by e^(-λ·Δt), where
// Δt is the time elapsed since that unit's previous decay application.
// Pinned units are skipped by status. Returns the number of units decayed.
// Runs against q so the caller controls the transaction scope.
func (e *Engine) ApplyDecay(q *store.Queries) (int, error) {
	targets, err := q.ListDecayable()
	if err != nil {
		return 0, err
	}

	nowMs := e.now().UnixMilli()
	decayed := 0
	for i := range targets {
		u := &targets[i]
		elapsedHours := float64(nowMs-u.LastDecayAt) / float64(time.Hour.Milliseconds())
		if elapsedHours <= 0 {
			continue
		}

		next := u.Strength * math.Exp(-e.lambda*elapsedHours)
		if err := q.ApplyDecayedStrength(u.ID, next, nowMs); err != nil {
			return decayed, err
		}
		decayed++
	}
	return decayed, nil
}

// ConsolidationResult reports the outcome of one consolidation pass.
type ConsolidationResult struct {
	Promoted  []string `json:"promoted"`
	Decayed   []string `json:"decayed"`
	Unchanged []string `json:"unchanged"`
}

// RunConsolidation scans all stm units once. A unit is promoted to ltm when
// its classification is in the auto-promote set, its strength meets the
// promotion threshold, or its frequency meets the repetition threshold.
// Active units below the strength floor are marked decayed; the rest stay
// unchanged. Runs against q so it can share a transaction with ApplyDecay —
// promotion decisions must observe already-decayed strengths.
func (e *Engine) RunConsolidation(q *store.Queries) (ConsolidationResult, error) {
	var res ConsolidationResult

	units, err := q.GetMemoriesByStore(store.StoreSTM)
	if err != nil {
		return res, err
	}

	for i := range units {
		u := &units[i]
		if u.Status == store.StatusDecayed || u.Status == store.StatusForgotten {
			continue
		}

		switch {
		case e.promote[u.Classification] ||
			u.Strength >= e.memory.StmStrengthThreshold ||
			u.Frequency >= e.memory.StmFrequencyThreshold:
			if err := q.PromoteToLTM(u.ID); err != nil {
				return res, err
			}
			res.Promoted = append(res.Promoted, u.ID)
		case u.Status == store.StatusActive && u.Strength < decayedStrengthFloor:
			if err := q.UpdateMemoryStatus(u.ID, store.StatusDecayed); err != nil {
				return res, err
			}
			res.Decayed = append(res.Decayed, u.ID)
		default:
			res.Unchanged = append(res.Unchanged, u.ID)
		}
	}
	return res, nil
}

// SessionEndResult summarizes one session-end pass.
type SessionEndResult struct {
	MemoriesDecayed int                 `json:"memories_decayed"`
	Consolidation   ConsolidationResult `json:"consolidation"`
	Skipped         bool                `json:"skipped"`
}

// EndSession runs decay and consolidation as one transaction, so a crash
// can never leave decay applied without consolidation reflecting it, or the
// reverse. A non-empty sessionID makes the pass idempotent per session via
// the consolidation watermark.
func (e *Engine) EndSession(sessionID string) (SessionEndResult, error) {
	var res SessionEndResult

	if sessionID != "" {
		sess, err := e.db.GetSession(sessionID)
		if err != nil {
			return res, err
		}
		if sess != nil && sess.ConsolidatedAt != nil {
			e.log.Info("session already consolidated", zap.String("session", sessionID))
			res.Skipped = true
			return res, nil
		}
	}

	err := e.db.InTx(func(q *store.Queries) error {
		decayed, err := e.ApplyDecay(q)
		if err != nil {
			return fmt.Errorf("apply decay: %w", err)
		}
		res.MemoriesDecayed = decayed

		cons, err := e.RunConsolidation(q)
		if err != nil {
			return fmt.Errorf("run consolidation: %w", err)
		}
		res.Consolidation = cons

		if sessionID != "" {
			if err := q.CompleteSession(sessionID); err != nil {
				return err
			}
			if err := q.MarkConsolidated(sessionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SessionEndResult{}, err
	}

	e.log.Info("session end",
		zap.String("session", sessionID),
		zap.Int("decayed", res.MemoriesDecayed),
		zap.Int("promoted", len(res.Consolidation.Promoted)))
	return res, nil
}

// Reconsolidation outcomes.
const (
	OutcomeConflict   = "conflict"
	OutcomeUnchanged  = "unchanged"
	OutcomeReinforced = "reinforced"
	OutcomeNotFound   = "not_found"
	OutcomePinned     = "pinned"
)

// ReconsolidateInput is new evidence about an existing unit.
type ReconsolidateInput struct {
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
	SourceEventID string  `json:"source_event_id"`
}

// ReconsolidateResult reports the outcome as a value: failure to apply is
// an expected outcome, not a fault.
type ReconsolidateResult struct {
	Outcome string            `json:"outcome"`
	Reason  string            `json:"reason,omitempty"`
	Unit    *store.MemoryUnit `json:"unit,omitempty"`
}

// Reconsolidate updates an existing unit's confidence and summary against
// new evidence. Similarity below 0.3 is a conflict: confidence averages
// down by the 0.8 factor and the summary gains an annotation while the
// original text stays verbatim. Similarity above 0.7 reinforces: confidence
// rises by a tenth of the evidence confidence and frequency increments. The
// middle band is a no-op.
func (e *Engine) Reconsolidate(id string, in ReconsolidateInput) (ReconsolidateResult, error) {
	unit, err := e.db.GetMemory(id)
	if err != nil {
		return ReconsolidateResult{}, err
	}
	if unit == nil {
		return ReconsolidateResult{Outcome: OutcomeNotFound, Reason: fmt.Sprintf("no memory with id %s", id)}, nil
	}
	if unit.Status == store.StatusPinned {
		return ReconsolidateResult{Outcome: OutcomePinned, Reason: "pinned memories are exempt from reconsolidation", Unit: unit}, nil
	}
	// Decayed and forgotten are terminal: new evidence cannot revive a unit.
	if unit.Status != store.StatusActive {
		return ReconsolidateResult{}, fmt.Errorf("reconsolidate %s: status %s: %w", id, unit.Status, ErrInvalidState)
	}

	in.Confidence = clamp01(in.Confidence)
	similarity := Jaccard(in.Content, unit.Summary)

	switch {
	case similarity < 0.3:
		newConfidence := clamp01((unit.Confidence + in.Confidence) / 2 * 0.8)
		annotated := fmt.Sprintf("%s\n[conflicting evidence %s: %s]",
			unit.Summary, e.now().UTC().Format(time.RFC3339), in.Content)
		events := appendEvent(unit.SourceEventIDs, in.SourceEventID)
		if err := e.db.UpdateReconsolidation(id, annotated, newConfidence, events); err != nil {
			return ReconsolidateResult{}, err
		}
		unit.Summary = annotated
		unit.Confidence = newConfidence
		unit.SourceEventIDs = events
		e.log.Info("reconsolidation conflict", zap.String("id", id), zap.Float64("similarity", similarity))
		return ReconsolidateResult{Outcome: OutcomeConflict, Unit: unit}, nil

	case similarity > 0.7:
		newConfidence := math.Min(1, unit.Confidence+in.Confidence*0.1)
		events := appendEvent(unit.SourceEventIDs, in.SourceEventID)
		if err := e.db.UpdateReconsolidation(id, unit.Summary, newConfidence, events); err != nil {
			return ReconsolidateResult{}, err
		}
		if err := e.db.IncrementFrequency(id); err != nil {
			return ReconsolidateResult{}, err
		}
		unit.Confidence = newConfidence
		unit.Frequency++
		unit.SourceEventIDs = events
		e.log.Info("reconsolidation reinforced", zap.String("id", id), zap.Float64("similarity", similarity))
		return ReconsolidateResult{Outcome: OutcomeReinforced, Unit: unit}, nil

	default:
		return ReconsolidateResult{Outcome: OutcomeUnchanged, Reason: "similarity in the indeterminate band", Unit: unit}, nil
	}
}

// UpdateUtility adjusts a unit's utility after usage feedback (+0.1 used,
// -0.05 unused, clamped) and recomputes strength from the unit's current
// feature values so utility propagates immediately.
func (e *Engine) UpdateUtility(id string, wasUsed bool) (*store.MemoryUnit, error) {
	unit, err := e.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf("update utility %s: %w", id, store.ErrNotFound)
	}

	delta := 0.1
	if !wasUsed {
		delta = -0.05
	}
	utility := clamp01(unit.Utility + delta)

	recencyHours := float64(e.now().UnixMilli()-unit.CreatedAt) / float64(time.Hour.Milliseconds())
	strength := Score(FeatureVector{
		RecencyHours: recencyHours,
		Frequency:    unit.Frequency,
		Importance:   unit.Importance,
		Utility:      utility,
		Novelty:      unit.Novelty,
		Confidence:   unit.Confidence,
		Interference: unit.Interference,
	}, e.scoring)

	if err := e.db.UpdateUtilityAndStrength(id, utility, strength); err != nil {
		return nil, err
	}
	unit.Utility = utility
	unit.Strength = strength
	return unit, nil
}

// AddFeedback applies explicit user feedback. Unknown ids and unknown kinds
// come back as a result value, not a fault.
type FeedbackResult struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

func (e *Engine) AddFeedback(kind, id string) (FeedbackResult, error) {
	if err := e.db.AddFeedback(kind, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return FeedbackResult{Applied: false, Reason: fmt.Sprintf("no memory with id %s", id)}, nil
		}
		return FeedbackResult{}, err
	}
	e.log.Info("feedback applied", zap.String("kind", kind), zap.String("id", id))
	return FeedbackResult{Applied: true}, nil
}

func appendEvent(events []string, eventID string) []string {
	if eventID == "" {
		return events
	}
	return append(events, eventID)
}
