// Package dispatcher runs every matching automation rule for a lead trigger
// and records one log row per rule considered.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lead_automation_backend/internal/automation/domain"
	"lead_automation_backend/internal/automation/executor"
	"lead_automation_backend/internal/condition"
	leadsdomain "lead_automation_backend/internal/leads/domain"
	"lead_automation_backend/internal/leads/ports"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"

	"github.com/google/uuid"
)

// RuleSource loads rules for dispatch and dry runs.
type RuleSource interface {
	ListActiveByTrigger(ctx context.Context, trigger string) ([]domain.Rule, error)
	GetRule(ctx context.Context, id int64) (domain.Rule, error)
}

// LogWriter appends dispatch log rows.
type LogWriter interface {
	InsertLog(ctx context.Context, entry *domain.LogEntry) error
}

// ActionRunner executes one action. Implemented by *executor.Executor.
type ActionRunner interface {
	Execute(ctx context.Context, inv executor.Invocation, raw domain.RawAction, lead leadsdomain.Snapshot) domain.ActionResult
}

// Summary describes one dispatch run.
type Summary struct {
	RunID    uuid.UUID         `json:"run_id"`
	Trigger  string            `json:"trigger"`
	LeadID   int64             `json:"lead_id"`
	Rules    int               `json:"rules_evaluated"`
	Matched  int               `json:"rules_matched"`
	Failed   int               `json:"rules_failed"`
	Entries  []domain.LogEntry `json:"entries"`
	Duration string            `json:"duration"`
}

// TestResult is the dry-run evaluation of one rule against one lead.
type TestResult struct {
	RuleID     int64               `json:"rule_id"`
	LeadID     int64               `json:"lead_id"`
	Matched    bool                `json:"matched"`
	Conditions []condition.Outcome `json:"conditions"`
	Actions    []PlannedAction     `json:"actions"`
}

// PlannedAction is an action a dry run would execute.
type PlannedAction struct {
	Index int               `json:"index"`
	Type  domain.ActionType `json:"type"`
	Valid bool              `json:"valid"`
	Error string            `json:"error,omitempty"`
}

type Dispatcher struct {
	rules     RuleSource
	logs      LogWriter
	leads     ports.LeadReader
	actions   ActionRunner
	evaluator *condition.Evaluator
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func New(rules RuleSource, logs LogWriter, leads ports.LeadReader, actions ActionRunner, evaluator *condition.Evaluator, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		rules:     rules,
		logs:      logs,
		leads:     leads,
		actions:   actions,
		evaluator: evaluator,
		metrics:   m,
		log:       log.WithComponent("automation.dispatcher"),
		now:       time.Now,
	}
}

// DispatchLead loads the lead snapshot and dispatches trigger for it.
func (d *Dispatcher) DispatchLead(ctx context.Context, trigger string, leadID int64, metadata map[string]any) (Summary, error) {
	lead, err := d.leads.GetLeadSnapshot(ctx, leadID)
	if err != nil {
		return Summary{}, err
	}
	return d.Dispatch(ctx, trigger, lead, metadata)
}

// Dispatch evaluates the active rules of trigger in priority order and runs
// the actions of every matching rule. An error is returned only when the rules
// cannot be loaded or ctx is cancelled between rules.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger string, lead leadsdomain.Snapshot, metadata map[string]any) (summary Summary, err error) {
	start := d.now()
	runID := uuid.New()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID.String())
	log := d.log.WithContext(ctx)

	summary = Summary{RunID: runID, Trigger: trigger, LeadID: lead.ID, Entries: []domain.LogEntry{}}
	defer func() {
		elapsed := d.now().Sub(start)
		summary.Duration = elapsed.String()
		d.metrics.RecordDispatch(trigger, elapsed)
	}()

	rules, err := d.rules.ListActiveByTrigger(ctx, trigger)
	if err != nil {
		return summary, fmt.Errorf("load rules for %s: %w", trigger, err)
	}
	domain.SortRules(rules)

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		entry := d.runRule(ctx, runID, trigger, rule, &lead, metadata)
		summary.Rules++
		if entry.Matched {
			summary.Matched++
		}
		if entry.Status == domain.StatusFailed {
			summary.Failed++
		}
		d.metrics.RecordRule(trigger, entry.Status)

		if err := d.logs.InsertLog(ctx, &entry); err != nil {
			log.Error("failed to write automation log", "rule_id", rule.ID, "lead_id", lead.ID, "error", err)
		}
		summary.Entries = append(summary.Entries, entry)
	}

	log.Info("automation dispatch finished",
		"trigger", trigger,
		"lead_id", lead.ID,
		"rules", summary.Rules,
		"matched", summary.Matched,
		"failed", summary.Failed,
	)
	return summary, nil
}

// runRule evaluates rule and executes its actions in order. A successful
// assignment is applied to lead so later rules see the new owner.
func (d *Dispatcher) runRule(ctx context.Context, runID uuid.UUID, trigger string, rule domain.Rule, lead *leadsdomain.Snapshot, metadata map[string]any) domain.LogEntry {
	entry := domain.LogEntry{
		RunID:        runID,
		RuleID:       rule.ID,
		LeadID:       lead.ID,
		TriggerEvent: trigger,
	}

	outcomes := d.evaluator.Explain(rule.Conditions, record{lead: *lead, metadata: metadata})
	entry.MatchedConditions = outcomes
	entry.Matched = condition.AllMatched(outcomes)
	if !entry.Matched {
		entry.Status = domain.StatusSkipped
		entry.ExecutedActions = []domain.ActionResult{}
		d.log.WithContext(ctx).Debug("automation rule skipped", "rule_id", rule.ID, "lead_id", lead.ID)
		return entry
	}

	d.log.WithContext(ctx).Info("automation rule matched", "rule_id", rule.ID, "rule", rule.Name, "lead_id", lead.ID)

	results := make([]domain.ActionResult, 0, len(rule.Actions))
	for i, raw := range rule.Actions {
		inv := executor.Invocation{RuleID: rule.ID, ActionIndex: i, Trigger: trigger}
		result := d.actions.Execute(ctx, inv, raw, *lead)
		if result.Status == domain.StatusSuccess && result.AgentID != nil {
			*lead = lead.WithAssignedTo(*result.AgentID)
		}
		results = append(results, result)
	}

	entry.ExecutedActions = results
	entry.Status = domain.RuleStatus(results)
	return entry
}

// Test evaluates one rule against one lead without executing actions or writing logs.
func (d *Dispatcher) Test(ctx context.Context, ruleID, leadID int64) (TestResult, error) {
	rule, err := d.rules.GetRule(ctx, ruleID)
	if err != nil {
		return TestResult{}, err
	}
	lead, err := d.leads.GetLeadSnapshot(ctx, leadID)
	if err != nil {
		return TestResult{}, err
	}

	outcomes := d.evaluator.Explain(rule.Conditions, record{lead: lead})
	result := TestResult{
		RuleID:     rule.ID,
		LeadID:     lead.ID,
		Matched:    condition.AllMatched(outcomes),
		Conditions: outcomes,
		Actions:    make([]PlannedAction, 0, len(rule.Actions)),
	}
	for i, raw := range rule.Actions {
		planned := PlannedAction{Index: i, Type: raw.Type, Valid: true}
		if _, err := domain.Decode(raw); err != nil {
			planned.Valid = false
			planned.Error = err.Error()
		}
		result.Actions = append(result.Actions, planned)
	}
	return result, nil
}

// record exposes trigger metadata to conditions after the lead's own fields.
// Metadata keys may be referenced bare or with a "metadata." prefix.
type record struct {
	lead     leadsdomain.Snapshot
	metadata map[string]any
}

func (r record) Lookup(field string) (any, bool) {
	if key, ok := strings.CutPrefix(field, "metadata."); ok {
		return r.meta(key)
	}
	if v, ok := r.lead.Lookup(field); ok {
		return v, true
	}
	return r.meta(field)
}

func (r record) meta(key string) (any, bool) {
	v, ok := r.metadata[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}
