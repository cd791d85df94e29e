package domain

import (
	"time"

	"lead_automation_backend/internal/condition"

	"github.com/google/uuid"
)

// Result statuses shared by actions and log entries.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ActionResult is the outcome of one executed action.
type ActionResult struct {
	Index    int        `json:"index"`
	Type     ActionType `json:"type"`
	Status   string     `json:"status"`
	Detail   string     `json:"detail,omitempty"`
	AgentID  *int64     `json:"agent_id,omitempty"`
	Duration string     `json:"duration,omitempty"`
}

// Failed reports whether the action failed.
func (r ActionResult) Failed() bool { return r.Status == StatusFailed }

// LogEntry is the audit row written for every rule considered by a dispatch.
type LogEntry struct {
	ID                int64               `json:"id"`
	RunID             uuid.UUID           `json:"run_id"`
	RuleID            int64               `json:"rule_id"`
	LeadID            int64               `json:"lead_id"`
	TriggerEvent      string              `json:"trigger_event"`
	Matched           bool                `json:"matched"`
	MatchedConditions []condition.Outcome `json:"matched_conditions"`
	ExecutedActions   []ActionResult      `json:"executed_actions"`
	Status            string              `json:"status"`
	CreatedAt         time.Time           `json:"created_at"`
}

// RuleStatus derives the log status of a matched rule from its action results.
func RuleStatus(results []ActionResult) string {
	for _, r := range results {
		if r.Failed() {
			return StatusFailed
		}
	}
	return StatusSuccess
}

// LogFilter narrows log listings.
type LogFilter struct {
	RuleID   *int64
	LeadID   *int64
	RunID    *uuid.UUID
	Status   string
	Page     int
	PageSize int
}

// RuleFilter narrows rule listings.
type RuleFilter struct {
	TriggerEvent string
	ActiveOnly   bool
}
