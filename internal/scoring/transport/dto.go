package transport

import "lead_automation_backend/internal/scoring/domain"

// RuleRequest is the body of scoring rule create and full update.
// ConditionValue accepts a scalar or a list; lists are stored comma-separated.
type RuleRequest struct {
	RuleName          string `json:"rule_name" validate:"required,min=1,max=200"`
	RuleType          string `json:"rule_type,omitempty" validate:"omitempty,max=50"`
	ConditionField    string `json:"condition_field" validate:"required,max=100"`
	ConditionOperator string `json:"condition_operator,omitempty" validate:"omitempty,condition_operator"`
	ConditionValue    any    `json:"condition_value,omitempty"`
	ScorePoints       int    `json:"score_points" validate:"min=-100,max=100"`
	Priority          *int   `json:"priority,omitempty" validate:"omitempty,min=0,max=10000"`
	IsActive          *bool  `json:"is_active,omitempty"`
}

type ListRulesRequest struct {
	ActiveOnly bool `form:"active_only"`
}

type ListRulesResponse struct {
	Items []domain.ScoringRule `json:"items"`
	Total int                  `json:"total"`
}

type HistoryRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"`
}

type HistoryResponse struct {
	LeadID int64                 `json:"lead_id"`
	Items  []domain.HistoryEntry `json:"items"`
}

// RecalculateRequest selects leads for a bulk run: explicit ids or every lead.
type RecalculateRequest struct {
	LeadIDs []int64 `json:"lead_ids" validate:"omitempty,max=10000,dive,gt=0"`
	All     bool    `json:"all"`
}

type RecalculateResponse struct {
	Mode   string             `json:"mode"`
	Result *domain.BulkResult `json:"result,omitempty"`
	TaskID string             `json:"task_id,omitempty"`
}

const (
	RecalculateModeSync   = "sync"
	RecalculateModeQueued = "queued"
)
