// Package domain holds scoring rules, rating bands and score history.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lead_automation_backend/internal/condition"
)

// Score bounds. Computed totals are clamped into this range.
const (
	MinScore = 0
	MaxScore = 100
)

// ScoringRule adds ScorePoints to a lead's score when its single condition holds.
type ScoringRule struct {
	ID                int64              `json:"id"`
	RuleName          string             `json:"rule_name"`
	RuleType          string             `json:"rule_type"`
	ConditionField    string             `json:"condition_field"`
	ConditionOperator condition.Operator `json:"condition_operator"`
	ConditionValue    string             `json:"condition_value"`
	ScorePoints       int                `json:"score_points"`
	Priority          int                `json:"priority"`
	IsActive          bool               `json:"is_active"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Condition returns the rule's condition in evaluator form.
func (r ScoringRule) Condition() condition.Condition {
	c := condition.Condition{
		Field:    r.ConditionField,
		Operator: r.ConditionOperator.Normalize(),
	}
	if r.ConditionValue != "" {
		c.Value = r.ConditionValue
	}
	return c
}

// Validate checks a scoring rule before it is persisted.
func (r ScoringRule) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RuleName) == "" {
		errs = append(errs, errors.New("rule_name is required"))
	}
	if err := condition.Validate(r.Condition()); err != nil {
		errs = append(errs, err)
	}
	if r.ScorePoints < -MaxScore || r.ScorePoints > MaxScore {
		errs = append(errs, fmt.Errorf("score_points must be between %d and %d", -MaxScore, MaxScore))
	}
	return errors.Join(errs...)
}

// Clamp bounds score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ErrScoreConflict is returned by a score write when the lead's stored score or
// rating no longer equals the entry's old values.
var ErrScoreConflict = errors.New("lead score changed concurrently")

// HistoryEntry records one score or rating change of a lead.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	LeadID         int64     `json:"lead_id"`
	OldScore       int       `json:"old_score"`
	NewScore       int       `json:"new_score"`
	OldRating      string    `json:"old_rating"`
	NewRating      string    `json:"new_rating"`
	RuleID         *int64    `json:"rule_id,omitempty"`
	MatchedRuleIDs []int64   `json:"matched_rule_ids"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// Result is the outcome of one recalculation.
type Result struct {
	LeadID         int64   `json:"lead_id"`
	Score          int     `json:"score"`
	Rating         string  `json:"rating"`
	PreviousScore  int     `json:"previous_score"`
	PreviousRating string  `json:"previous_rating"`
	Changed        bool    `json:"changed"`
	MatchedRuleIDs []int64 `json:"matched_rule_ids"`
}

// BulkResult summarises a bulk recalculation.
type BulkResult struct {
	Processed int     `json:"processed"`
	Changed   int     `json:"changed"`
	Failed    int     `json:"failed"`
	FailedIDs []int64 `json:"failed_ids,omitempty"`
}
