// Package service implements scoring rule management and recalculation requests.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lead_automation_backend/internal/condition"
	"lead_automation_backend/internal/events"
	"lead_automation_backend/internal/scheduler"
	"lead_automation_backend/internal/scoring/domain"
	"lead_automation_backend/internal/scoring/transport"
	"lead_automation_backend/platform/apperr"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"
)

const (
	defaultRulePriority = 10
	defaultSyncLimit    = 200
)

// Recalculation sources recorded in history reasons and metrics.
const (
	SourceHTTP   = "http"
	SourceManual = "manual"
	SourceEvent  = "event"
)

// Repository is the scoring rule and history storage used by the service.
type Repository interface {
	CreateRule(ctx context.Context, rule domain.ScoringRule) (domain.ScoringRule, error)
	GetRule(ctx context.Context, id int64) (domain.ScoringRule, error)
	ListRules(ctx context.Context, activeOnly bool) ([]domain.ScoringRule, error)
	UpdateRule(ctx context.Context, rule domain.ScoringRule) (domain.ScoringRule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) (domain.ScoringRule, error)
	DeleteRule(ctx context.Context, id int64) error
	ListHistory(ctx context.Context, leadID int64, limit int) ([]domain.HistoryEntry, error)
}

// Engine recalculates scores.
type Engine interface {
	Recalculate(ctx context.Context, leadID int64, reason string) (domain.Result, error)
	BulkRecalculate(ctx context.Context, ids []int64, all bool, reason string) (domain.BulkResult, error)
}

type Service struct {
	repo      Repository
	engine    Engine
	enqueuer  scheduler.RecalculationEnqueuer
	syncLimit int
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// New creates the scoring service. enqueuer may be nil, in which case every
// bulk request runs synchronously.
func New(repo Repository, engine Engine, enqueuer scheduler.RecalculationEnqueuer, syncLimit int, m *metrics.Metrics, log *logger.Logger) *Service {
	if syncLimit <= 0 {
		syncLimit = defaultSyncLimit
	}
	return &Service{
		repo:      repo,
		engine:    engine,
		enqueuer:  enqueuer,
		syncLimit: syncLimit,
		metrics:   m,
		log:       log.WithComponent("scoring.service"),
	}
}

func (s *Service) CreateRule(ctx context.Context, req transport.RuleRequest) (domain.ScoringRule, error) {
	rule := buildRule(req)
	if err := validateRule(rule); err != nil {
		return domain.ScoringRule{}, err
	}
	return s.repo.CreateRule(ctx, rule)
}

func (s *Service) GetRule(ctx context.Context, id int64) (domain.ScoringRule, error) {
	return s.repo.GetRule(ctx, id)
}

func (s *Service) ListRules(ctx context.Context, req transport.ListRulesRequest) (transport.ListRulesResponse, error) {
	rules, err := s.repo.ListRules(ctx, req.ActiveOnly)
	if err != nil {
		return transport.ListRulesResponse{}, err
	}
	return transport.ListRulesResponse{Items: rules, Total: len(rules)}, nil
}

// UpdateRule replaces a rule. An omitted is_active keeps the current state.
func (s *Service) UpdateRule(ctx context.Context, id int64, req transport.RuleRequest) (domain.ScoringRule, error) {
	existing, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return domain.ScoringRule{}, err
	}

	rule := buildRule(req)
	rule.ID = id
	if req.IsActive == nil {
		rule.IsActive = existing.IsActive
	}
	if err := validateRule(rule); err != nil {
		return domain.ScoringRule{}, err
	}
	return s.repo.UpdateRule(ctx, rule)
}

func (s *Service) ToggleRule(ctx context.Context, id int64) (domain.ScoringRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return domain.ScoringRule{}, err
	}
	return s.repo.SetRuleActive(ctx, id, !rule.IsActive)
}

func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	return s.repo.DeleteRule(ctx, id)
}

// RecalculateLead rescores one lead immediately.
func (s *Service) RecalculateLead(ctx context.Context, leadID int64) (domain.Result, error) {
	return s.engine.Recalculate(ctx, leadID, SourceManual)
}

func (s *Service) History(ctx context.Context, leadID int64, req transport.HistoryRequest) (transport.HistoryResponse, error) {
	items, err := s.repo.ListHistory(ctx, leadID, req.Limit)
	if err != nil {
		return transport.HistoryResponse{}, err
	}
	return transport.HistoryResponse{LeadID: leadID, Items: items}, nil
}

// Recalculate runs small id sets inline and queues "all" or large sets when a
// task queue is configured.
func (s *Service) Recalculate(ctx context.Context, req transport.RecalculateRequest) (transport.RecalculateResponse, error) {
	if !req.All && len(req.LeadIDs) == 0 {
		return transport.RecalculateResponse{}, apperr.Validation("lead_ids or all is required")
	}

	if s.enqueuer != nil && (req.All || len(req.LeadIDs) > s.syncLimit) {
		taskID, err := s.enqueuer.EnqueueBulkRecalculation(ctx, scheduler.ScoringBulkRecalculatePayload{
			LeadIDs: req.LeadIDs,
			All:     req.All,
			Source:  SourceHTTP,
		})
		if err != nil {
			return transport.RecalculateResponse{}, apperr.Wrap(apperr.KindUnavailable, "failed to queue recalculation", err)
		}
		return transport.RecalculateResponse{Mode: transport.RecalculateModeQueued, TaskID: taskID}, nil
	}

	s.metrics.RecordBulkRun(SourceHTTP)
	result, err := s.engine.BulkRecalculate(ctx, req.LeadIDs, req.All, SourceHTTP)
	if err != nil {
		return transport.RecalculateResponse{}, err
	}
	return transport.RecalculateResponse{Mode: transport.RecalculateModeSync, Result: &result}, nil
}

// RunBulkRecalculation is the queued job entry point.
func (s *Service) RunBulkRecalculation(ctx context.Context, leadIDs []int64, all bool, source string) error {
	s.metrics.RecordBulkRun(source)
	result, err := s.engine.BulkRecalculate(ctx, leadIDs, all, source)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		s.log.WithContext(ctx).Warn("bulk recalculation had failures", "source", source, "failed", result.Failed, "failed_ids", result.FailedIDs)
	}
	return nil
}

// Handle rescores the lead of a lifecycle event received on the bus.
// Events for leads that no longer exist are dropped.
func (s *Service) Handle(ctx context.Context, event events.Event) error {
	lifecycle, ok := event.(events.LeadLifecycleEvent)
	if !ok {
		return nil
	}

	_, err := s.engine.Recalculate(ctx, lifecycle.Lead(), SourceEvent+":"+lifecycle.Trigger())
	if apperr.Is(err, apperr.KindNotFound) {
		s.log.WithContext(ctx).Warn("scoring event for unknown lead", "lead_id", lifecycle.Lead(), "trigger", lifecycle.Trigger())
		return nil
	}
	return err
}

func buildRule(req transport.RuleRequest) domain.ScoringRule {
	rule := domain.ScoringRule{
		RuleName:          strings.TrimSpace(req.RuleName),
		RuleType:          strings.TrimSpace(req.RuleType),
		ConditionField:    strings.TrimSpace(req.ConditionField),
		ConditionOperator: condition.Operator(req.ConditionOperator).Normalize(),
		ConditionValue:    conditionValue(req.ConditionValue),
		ScorePoints:       req.ScorePoints,
		Priority:          defaultRulePriority,
		IsActive:          true,
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule
}

func validateRule(rule domain.ScoringRule) error {
	if err := rule.Validate(); err != nil {
		return apperr.Validation("invalid scoring rule").WithDetails(strings.Split(err.Error(), "\n"))
	}
	return nil
}

func conditionValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, conditionValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}
