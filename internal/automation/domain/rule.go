// Package domain holds automation rules, the action tagged union and dispatch logs.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"lead_automation_backend/internal/condition"
)

// EntityLead is the only entity rules currently target.
const EntityLead = "lead"

var triggerPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// Rule is an automation rule scoped to one trigger event.
type Rule struct {
	ID            int64                 `json:"id"`
	Name          string                `json:"name"`
	TriggerEvent  string                `json:"trigger_event"`
	TriggerEntity string                `json:"trigger_entity"`
	Conditions    []condition.Condition `json:"conditions"`
	Actions       []RawAction           `json:"actions"`
	Priority      int                   `json:"priority"`
	IsActive      bool                  `json:"is_active"`
	CreatedBy     *int64                `json:"created_by,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// ValidTrigger reports whether name is a well-formed trigger event name.
// Trigger names are an open set; only their shape is enforced.
func ValidTrigger(name string) bool {
	return triggerPattern.MatchString(name)
}

// Validate checks a rule before it is persisted.
func (r Rule) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !ValidTrigger(r.TriggerEvent) {
		errs = append(errs, fmt.Errorf("invalid trigger_event %q", r.TriggerEvent))
	}
	if r.TriggerEntity != "" && r.TriggerEntity != EntityLead {
		errs = append(errs, fmt.Errorf("unsupported trigger_entity %q", r.TriggerEntity))
	}
	if err := condition.ValidateAll(r.Conditions); err != nil {
		errs = append(errs, err)
	}
	if len(r.Actions) == 0 {
		errs = append(errs, errors.New("at least one action is required"))
	}
	for i, raw := range r.Actions {
		if _, err := Decode(raw); err != nil {
			errs = append(errs, fmt.Errorf("action %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// SortRules orders rules by priority ascending, then id ascending.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// CursorKey identifies the fairness cursor of one assignment action in a rule.
func CursorKey(ruleID int64, actionIndex int) string {
	return fmt.Sprintf("rule:%d:action:%d", ruleID, actionIndex)
}

// CursorKeyPrefix matches every cursor key of a rule.
func CursorKeyPrefix(ruleID int64) string {
	return fmt.Sprintf("rule:%d:", ruleID)
}
