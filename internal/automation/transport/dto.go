package transport

import (
	"encoding/json"

	"lead_automation_backend/internal/automation/domain"
)

type ConditionInput struct {
	Field    string `json:"field" validate:"required,max=100"`
	Operator string `json:"operator,omitempty" validate:"omitempty,condition_operator"`
	Value    any    `json:"value,omitempty"`
}

type ActionInput struct {
	Type   string          `json:"type" validate:"required,action_type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// RuleRequest is the body of rule create and full update.
type RuleRequest struct {
	Name          string           `json:"name" validate:"required,min=1,max=200"`
	TriggerEvent  string           `json:"trigger_event" validate:"required,trigger_event"`
	TriggerEntity string           `json:"trigger_entity,omitempty" validate:"omitempty,oneof=lead"`
	Conditions    []ConditionInput `json:"conditions" validate:"omitempty,max=50,dive"`
	Actions       []ActionInput    `json:"actions" validate:"required,min=1,max=20,dive"`
	Priority      *int             `json:"priority,omitempty" validate:"omitempty,min=0,max=10000"`
	IsActive      *bool            `json:"is_active,omitempty"`
}

type ListRulesRequest struct {
	TriggerEvent string `form:"trigger_event" validate:"omitempty,trigger_event"`
	ActiveOnly   bool   `form:"active_only"`
}

type ListRulesResponse struct {
	Items []domain.Rule `json:"items"`
	Total int           `json:"total"`
}

type TestRuleRequest struct {
	LeadID int64 `json:"lead_id" validate:"required,gt=0"`
}

type ListLogsRequest struct {
	RuleID   *int64 `form:"rule_id" validate:"omitempty,gt=0"`
	LeadID   *int64 `form:"lead_id" validate:"omitempty,gt=0"`
	RunID    string `form:"run_id" validate:"omitempty,uuid"`
	Status   string `form:"status" validate:"omitempty,oneof=success failed skipped"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}

type ListLogsResponse struct {
	Items      []domain.LogEntry `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

type IngestEventRequest struct {
	Event    string         `json:"event" validate:"required,trigger_event"`
	LeadID   int64          `json:"lead_id" validate:"required,gt=0"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type IngestEventResponse struct {
	Accepted bool   `json:"accepted"`
	Mode     string `json:"mode"`
	TaskID   string `json:"task_id,omitempty"`
}

const (
	IngestModeQueued    = "queued"
	IngestModePublished = "published"
)
