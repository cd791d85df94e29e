// Package service implements automation rule management, log queries and
// lifecycle event ingestion on top of the dispatcher.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"

	"lead_automation_backend/internal/automation/assignment"
	"lead_automation_backend/internal/automation/dispatcher"
	"lead_automation_backend/internal/automation/domain"
	"lead_automation_backend/internal/automation/transport"
	"lead_automation_backend/internal/condition"
	"lead_automation_backend/internal/events"
	"lead_automation_backend/internal/scheduler"
	"lead_automation_backend/platform/apperr"
	"lead_automation_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultRulePriority = 10

// Repository is the rule and log storage used by the service.
type Repository interface {
	CreateRule(ctx context.Context, rule domain.Rule) (domain.Rule, error)
	GetRule(ctx context.Context, id int64) (domain.Rule, error)
	ListRules(ctx context.Context, filter domain.RuleFilter) ([]domain.Rule, error)
	UpdateRule(ctx context.Context, rule domain.Rule) (domain.Rule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) (domain.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
	ListLogs(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, int, error)
}

// Dispatcher runs and dry-runs rules.
type Dispatcher interface {
	DispatchLead(ctx context.Context, trigger string, leadID int64, metadata map[string]any) (dispatcher.Summary, error)
	Test(ctx context.Context, ruleID, leadID int64) (dispatcher.TestResult, error)
}

type Service struct {
	repo       Repository
	dispatcher Dispatcher
	cursors    assignment.CursorStore
	bus        events.Bus
	enqueuer   scheduler.EventEnqueuer
	log        *logger.Logger
}

// New creates the automation service. enqueuer may be nil, in which case
// ingested events are published on the in-process bus.
func New(repo Repository, d Dispatcher, cursors assignment.CursorStore, bus events.Bus, enqueuer scheduler.EventEnqueuer, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		dispatcher: d,
		cursors:    cursors,
		bus:        bus,
		enqueuer:   enqueuer,
		log:        log.WithComponent("automation.service"),
	}
}

func (s *Service) CreateRule(ctx context.Context, userID int64, req transport.RuleRequest) (domain.Rule, error) {
	rule := buildRule(req)
	if userID > 0 {
		rule.CreatedBy = &userID
	}
	if err := validateRule(rule); err != nil {
		return domain.Rule{}, err
	}
	return s.repo.CreateRule(ctx, rule)
}

func (s *Service) GetRule(ctx context.Context, id int64) (domain.Rule, error) {
	return s.repo.GetRule(ctx, id)
}

func (s *Service) ListRules(ctx context.Context, req transport.ListRulesRequest) (transport.ListRulesResponse, error) {
	rules, err := s.repo.ListRules(ctx, domain.RuleFilter{TriggerEvent: req.TriggerEvent, ActiveOnly: req.ActiveOnly})
	if err != nil {
		return transport.ListRulesResponse{}, err
	}
	return transport.ListRulesResponse{Items: rules, Total: len(rules)}, nil
}

// UpdateRule replaces a rule. Assignment cursors are reset when the action
// list changes because cursor keys are bound to action positions.
func (s *Service) UpdateRule(ctx context.Context, id int64, req transport.RuleRequest) (domain.Rule, error) {
	existing, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return domain.Rule{}, err
	}

	rule := buildRule(req)
	rule.ID = id
	rule.CreatedBy = existing.CreatedBy
	if req.IsActive == nil {
		rule.IsActive = existing.IsActive
	}
	if err := validateRule(rule); err != nil {
		return domain.Rule{}, err
	}

	updated, err := s.repo.UpdateRule(ctx, rule)
	if err != nil {
		return domain.Rule{}, err
	}

	if !sameActions(existing.Actions, updated.Actions) {
		s.resetCursors(ctx, id)
	}
	return updated, nil
}

func (s *Service) ToggleRule(ctx context.Context, id int64) (domain.Rule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return domain.Rule{}, err
	}
	return s.repo.SetRuleActive(ctx, id, !rule.IsActive)
}

func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.resetCursors(ctx, id)
	return nil
}

func (s *Service) TestRule(ctx context.Context, id int64, req transport.TestRuleRequest) (dispatcher.TestResult, error) {
	return s.dispatcher.Test(ctx, id, req.LeadID)
}

func (s *Service) ListLogs(ctx context.Context, req transport.ListLogsRequest) (transport.ListLogsResponse, error) {
	filter := domain.LogFilter{
		RuleID:   req.RuleID,
		LeadID:   req.LeadID,
		Status:   req.Status,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.RunID != "" {
		runID, err := uuid.Parse(req.RunID)
		if err != nil {
			return transport.ListLogsResponse{}, apperr.BadRequest("invalid run_id")
		}
		filter.RunID = &runID
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}

	items, total, err := s.repo.ListLogs(ctx, filter)
	if err != nil {
		return transport.ListLogsResponse{}, err
	}

	return transport.ListLogsResponse{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.PageSize))),
	}, nil
}

// IngestEvent accepts a lifecycle event from outside the process. It is queued
// when a scheduler is configured and published on the bus otherwise.
func (s *Service) IngestEvent(ctx context.Context, req transport.IngestEventRequest) (transport.IngestEventResponse, error) {
	event, err := events.NewLeadLifecycleEvent(req.Event, req.LeadID, req.Metadata)
	if err != nil {
		return transport.IngestEventResponse{}, apperr.Validation(err.Error())
	}

	if s.enqueuer != nil {
		taskID, err := s.enqueuer.EnqueueAutomationDispatch(ctx, scheduler.AutomationDispatchPayload{
			Event:    event.Trigger(),
			LeadID:   event.Lead(),
			Metadata: req.Metadata,
		})
		if err != nil {
			return transport.IngestEventResponse{}, apperr.Wrap(apperr.KindUnavailable, "event queue unavailable", err)
		}
		return transport.IngestEventResponse{Accepted: true, Mode: transport.IngestModeQueued, TaskID: taskID}, nil
	}

	s.bus.Publish(ctx, event)
	return transport.IngestEventResponse{Accepted: true, Mode: transport.IngestModePublished}, nil
}

// Handle runs the dispatcher for a lifecycle event received on the bus.
// Events for leads that no longer exist are dropped.
func (s *Service) Handle(ctx context.Context, event events.Event) error {
	lifecycle, ok := event.(events.LeadLifecycleEvent)
	if !ok {
		return nil
	}

	_, err := s.dispatcher.DispatchLead(ctx, lifecycle.Trigger(), lifecycle.Lead(), lifecycle.Meta())
	if apperr.Is(err, apperr.KindNotFound) {
		s.log.WithContext(ctx).Warn("automation event for unknown lead", "lead_id", lifecycle.Lead(), "trigger", lifecycle.Trigger())
		return nil
	}
	return err
}

func (s *Service) resetCursors(ctx context.Context, ruleID int64) {
	if s.cursors == nil {
		return
	}
	if err := s.cursors.DeletePrefix(ctx, domain.CursorKeyPrefix(ruleID)); err != nil {
		s.log.WithContext(ctx).Error("failed to reset assignment cursors", "rule_id", ruleID, "error", err)
	}
}

func buildRule(req transport.RuleRequest) domain.Rule {
	rule := domain.Rule{
		Name:          strings.TrimSpace(req.Name),
		TriggerEvent:  strings.TrimSpace(req.TriggerEvent),
		TriggerEntity: req.TriggerEntity,
		Conditions:    make([]condition.Condition, 0, len(req.Conditions)),
		Actions:       make([]domain.RawAction, 0, len(req.Actions)),
		Priority:      defaultRulePriority,
		IsActive:      true,
	}
	if rule.TriggerEntity == "" {
		rule.TriggerEntity = domain.EntityLead
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	for _, c := range req.Conditions {
		rule.Conditions = append(rule.Conditions, condition.Condition{
			Field:    strings.TrimSpace(c.Field),
			Operator: condition.Operator(c.Operator).Normalize(),
			Value:    c.Value,
		})
	}
	for _, a := range req.Actions {
		rule.Actions = append(rule.Actions, domain.RawAction{Type: domain.ActionType(a.Type), Config: a.Config})
	}
	return rule
}

func validateRule(rule domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return apperr.Validation("invalid automation rule").WithDetails(strings.Split(err.Error(), "\n"))
	}
	return nil
}

func sameActions(a, b []domain.RawAction) bool {
	left, errLeft := json.Marshal(a)
	right, errRight := json.Marshal(b)
	if errLeft != nil || errRight != nil {
		return false
	}
	return bytes.Equal(left, right)
}

var _ events.Handler = (*Service)(nil)
