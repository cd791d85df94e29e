// Package engine computes lead scores from scoring rules and persists changes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"lead_automation_backend/internal/condition"
	"lead_automation_backend/internal/events"
	leadsdomain "lead_automation_backend/internal/leads/domain"
	"lead_automation_backend/internal/leads/ports"
	"lead_automation_backend/internal/scoring/domain"
	"lead_automation_backend/platform/apperr"
	"lead_automation_backend/platform/keylock"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds bulk recalculation when none is configured.
const DefaultConcurrency = 8

// maxScoreAttempts bounds re-reads after another writer changed the score first.
const maxScoreAttempts = 3

// RuleSource loads active scoring rules ordered by priority, then id.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]domain.ScoringRule, error)
}

// ScoreWriter persists a score change together with its history row. Both are
// written or neither is. It returns domain.ErrScoreConflict when the stored
// score or rating is no longer entry's old value.
type ScoreWriter interface {
	ApplyScore(ctx context.Context, entry *domain.HistoryEntry, updatedAt time.Time) error
}

// Leads is the part of the lead-storage collaborator scoring needs.
type Leads interface {
	ports.LeadReader
	ports.LeadLister
}

// Deps holds the engine collaborators.
type Deps struct {
	Rules       RuleSource
	Scores      ScoreWriter
	Leads       Leads
	Evaluator   *condition.Evaluator
	Ratings     domain.Ratings
	Bus         events.Bus
	Metrics     *metrics.Metrics
	Concurrency int
	Log         *logger.Logger
}

// Engine recalculates scores. It is safe for concurrent use. Recalculations of
// the same lead are serialised in process, and the conditional write in
// ScoreWriter keeps processes sharing a database from recording one change twice.
type Engine struct {
	rules       RuleSource
	scores      ScoreWriter
	leads       Leads
	evaluator   *condition.Evaluator
	ratings     domain.Ratings
	bus         events.Bus
	metrics     *metrics.Metrics
	concurrency int
	locks       *keylock.Locker
	now         func() time.Time
	log         *logger.Logger
}

// New creates an Engine. Empty ratings fall back to the defaults.
func New(deps Deps) *Engine {
	ratings := deps.Ratings
	if len(ratings) == 0 {
		ratings = domain.DefaultRatings()
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = condition.New(log)
	}

	return &Engine{
		rules:       deps.Rules,
		scores:      deps.Scores,
		leads:       deps.Leads,
		evaluator:   evaluator,
		ratings:     ratings,
		bus:         deps.Bus,
		metrics:     deps.Metrics,
		concurrency: concurrency,
		locks:       keylock.New(),
		now:         time.Now,
		log:         log.WithComponent("scoring.engine"),
	}
}

// Ratings returns the configured rating bands.
func (e *Engine) Ratings() domain.Ratings {
	return e.ratings
}

// Compute sums the points of every rule whose condition holds for lead,
// clamps the total and returns the ids of the matched rules in rule order.
func (e *Engine) Compute(rules []domain.ScoringRule, lead leadsdomain.Snapshot) (int, []int64) {
	total := 0
	matched := make([]int64, 0)
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if e.evaluator.Match(rule.Condition(), lead) {
			total += rule.ScorePoints
			matched = append(matched, rule.ID)
		}
	}
	return domain.Clamp(total), matched
}

// Recalculate recomputes one lead's score and persists it when score or rating changed.
func (e *Engine) Recalculate(ctx context.Context, leadID int64, reason string) (domain.Result, error) {
	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load scoring rules: %w", err)
	}
	result, err := e.recalculate(ctx, leadID, rules, reason)
	e.record(result, err)
	return result, err
}

func (e *Engine) recalculate(ctx context.Context, leadID int64, rules []domain.ScoringRule, reason string) (domain.Result, error) {
	unlock := e.locks.Lock(strconv.FormatInt(leadID, 10))
	defer unlock()

	for attempt := 1; ; attempt++ {
		lead, err := e.leads.GetLeadSnapshot(ctx, leadID)
		if err != nil {
			return domain.Result{LeadID: leadID}, err
		}

		score, matched := e.Compute(rules, lead)
		rating := e.ratings.For(score)
		result := domain.Result{
			LeadID:         leadID,
			Score:          score,
			Rating:         rating,
			PreviousScore:  lead.LeadScore,
			PreviousRating: lead.LeadRating,
			Changed:        score != lead.LeadScore || rating != lead.LeadRating,
			MatchedRuleIDs: matched,
		}
		if !result.Changed {
			return result, nil
		}

		entry := &domain.HistoryEntry{
			LeadID:         leadID,
			OldScore:       lead.LeadScore,
			NewScore:       score,
			OldRating:      lead.LeadRating,
			NewRating:      rating,
			MatchedRuleIDs: matched,
			Reason:         reason,
		}
		if len(matched) == 1 {
			ruleID := matched[0]
			entry.RuleID = &ruleID
		}

		err = e.scores.ApplyScore(ctx, entry, e.now().UTC())
		if errors.Is(err, domain.ErrScoreConflict) && attempt < maxScoreAttempts {
			e.log.WithContext(ctx).Debug("lead score changed during recalculation, retrying", "lead_id", leadID, "attempt", attempt)
			continue
		}
		if errors.Is(err, domain.ErrScoreConflict) {
			return result, apperr.Wrap(apperr.KindConflict, "lead score changed concurrently", err).WithOp("scoring.recalculate")
		}
		if err != nil {
			return result, fmt.Errorf("persist lead score: %w", err)
		}

		if e.bus != nil {
			e.bus.Publish(ctx, events.LeadScoreChanged{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    leadID,
				OldScore:  lead.LeadScore,
				NewScore:  score,
				OldRating: lead.LeadRating,
				NewRating: rating,
			})
		}
		e.log.WithContext(ctx).Info("lead score changed",
			"lead_id", leadID, "old_score", lead.LeadScore, "new_score", score, "rating", rating, "reason", reason)

		return result, nil
	}
}

// BulkRecalculate recalculates ids with bounded parallelism. When all is set
// and ids is empty every lead is processed. A failing lead is counted and logged
// without stopping the others; the returned error is only for setup failures.
func (e *Engine) BulkRecalculate(ctx context.Context, ids []int64, all bool, reason string) (domain.BulkResult, error) {
	if len(ids) == 0 && all {
		listed, err := e.leads.ListLeadIDs(ctx)
		if err != nil {
			return domain.BulkResult{}, fmt.Errorf("list lead ids: %w", err)
		}
		ids = listed
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return domain.BulkResult{}, nil
	}

	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		return domain.BulkResult{}, fmt.Errorf("load scoring rules: %w", err)
	}

	var (
		mu     sync.Mutex
		result domain.BulkResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := e.recalculate(gctx, id, rules, reason)
			e.record(res, err)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if err != nil {
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, id)
				e.log.WithContext(gctx).Warn("lead recalculation failed", "lead_id", id, "error", err)
				return nil
			}
			if res.Changed {
				result.Changed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return result, err
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	e.log.WithContext(ctx).Info("bulk recalculation finished",
		"processed", result.Processed, "changed", result.Changed, "failed", result.Failed, "reason", reason)
	return result, nil
}

func (e *Engine) record(result domain.Result, err error) {
	switch {
	case err != nil:
		e.metrics.RecordRecalculation("failed")
	case result.Changed:
		e.metrics.RecordRecalculation("changed")
	default:
		e.metrics.RecordRecalculation("unchanged")
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
