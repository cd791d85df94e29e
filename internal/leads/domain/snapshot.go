// Package domain holds the lead view consumed by automation and scoring.
// The lead record itself is owned by the lead-storage service.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Snapshot is a read-only copy of the lead fields rules can reference.
type Snapshot struct {
	ID             int64
	StatusCode     string
	CountryID      *int64
	SourceID       *int64
	Priority       string
	AssignedTo     *int64
	LeadScore      int
	LeadRating     string
	ScoreUpdatedAt *time.Time
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	// Attributes holds custom lead fields not modelled above.
	Attributes map[string]any
}

var fieldAliases = map[string]string{
	"status":       "status_code",
	"country":      "country_id",
	"source":       "source_id",
	"agent_id":     "assigned_to",
	"score":        "lead_score",
	"rating":       "lead_rating",
	"phone_number": "phone",
}

// Lookup resolves a rule field name against the snapshot. Missing and null
// fields report ok=false.
func (s Snapshot) Lookup(field string) (any, bool) {
	name := strings.ToLower(strings.TrimSpace(field))
	if alias, ok := fieldAliases[name]; ok {
		name = alias
	}

	switch name {
	case "id":
		return s.ID, true
	case "status_code":
		return nonEmpty(s.StatusCode)
	case "country_id":
		return optionalInt(s.CountryID)
	case "source_id":
		return optionalInt(s.SourceID)
	case "priority":
		return nonEmpty(s.Priority)
	case "assigned_to":
		return optionalInt(s.AssignedTo)
	case "lead_score":
		return s.LeadScore, true
	case "lead_rating":
		return nonEmpty(s.LeadRating)
	case "first_name":
		return nonEmpty(s.FirstName)
	case "last_name":
		return nonEmpty(s.LastName)
	case "full_name":
		return nonEmpty(s.FullName())
	case "phone":
		return nonEmpty(s.Phone)
	case "email":
		return nonEmpty(s.Email)
	}

	if s.Attributes == nil {
		return nil, false
	}
	v, ok := s.Attributes[strings.TrimSpace(field)]
	if !ok {
		v, ok = s.Attributes[name]
	}
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Text renders a field as plain text for message placeholders. Missing fields render empty.
func (s Snapshot) Text(field string) string {
	v, ok := s.Lookup(field)
	if !ok {
		return ""
	}
	switch typed := v.(type) {
	case string:
		return typed
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

// FullName joins first and last name.
func (s Snapshot) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// IsAssigned reports whether the lead has an agent.
func (s Snapshot) IsAssigned() bool {
	return s.AssignedTo != nil && *s.AssignedTo > 0
}

// WithAssignedTo returns a copy of the snapshot assigned to agentID.
func (s Snapshot) WithAssignedTo(agentID int64) Snapshot {
	s.AssignedTo = &agentID
	return s
}

func nonEmpty(v string) (any, bool) {
	if strings.TrimSpace(v) == "" {
		return nil, false
	}
	return v, true
}

func optionalInt(v *int64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}
