// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"fmt"
	"strings"

	"lead_automation_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// Trigger names used by automation rules.
const (
	TriggerNewLead             = "new_lead"
	TriggerStatusChange        = "status_change"
	TriggerCommunicationLogged = "communication_logged"
)

// LeadLifecycleEvent is implemented by every event that can fire automation rules.
type LeadLifecycleEvent interface {
	Event
	Trigger() string
	Lead() int64
	Meta() map[string]any
}

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadCreated is published when a new lead row has been committed.
type LeadCreated struct {
	BaseEvent
	LeadID   int64          `json:"leadId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (e LeadCreated) EventName() string    { return "leads.lead.created" }
func (e LeadCreated) Trigger() string      { return TriggerNewLead }
func (e LeadCreated) Lead() int64          { return e.LeadID }
func (e LeadCreated) Meta() map[string]any { return e.Metadata }

// LeadStatusChanged is published when a lead transitions to another status.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    int64          `json:"leadId"`
	OldStatus string         `json:"oldStatus"`
	NewStatus string         `json:"newStatus"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e LeadStatusChanged) EventName() string { return "leads.lead.status_changed" }
func (e LeadStatusChanged) Trigger() string   { return TriggerStatusChange }
func (e LeadStatusChanged) Lead() int64       { return e.LeadID }
func (e LeadStatusChanged) Meta() map[string]any {
	meta := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["old_status"] = e.OldStatus
	meta["new_status"] = e.NewStatus
	return meta
}

// CommunicationLogged is published when a call, message or email is logged against a lead.
type CommunicationLogged struct {
	BaseEvent
	LeadID    int64          `json:"leadId"`
	Channel   string         `json:"channel"`
	Direction string         `json:"direction"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e CommunicationLogged) EventName() string { return "leads.communication.logged" }
func (e CommunicationLogged) Trigger() string   { return TriggerCommunicationLogged }
func (e CommunicationLogged) Lead() int64       { return e.LeadID }
func (e CommunicationLogged) Meta() map[string]any {
	meta := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["channel"] = e.Channel
	meta["direction"] = e.Direction
	return meta
}

// LeadTriggered carries any other trigger name raised by the CRM.
type LeadTriggered struct {
	BaseEvent
	Name     string         `json:"trigger"`
	LeadID   int64          `json:"leadId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (e LeadTriggered) EventName() string    { return "leads.lead.triggered" }
func (e LeadTriggered) Trigger() string      { return e.Name }
func (e LeadTriggered) Lead() int64          { return e.LeadID }
func (e LeadTriggered) Meta() map[string]any { return e.Metadata }

// LeadLifecycleEventNames lists the bus names of every LeadLifecycleEvent.
var LeadLifecycleEventNames = []string{
	LeadCreated{}.EventName(),
	LeadStatusChanged{}.EventName(),
	CommunicationLogged{}.EventName(),
	LeadTriggered{}.EventName(),
}

// NewLeadLifecycleEvent builds the bus event for a trigger name received from
// outside the process (HTTP ingestion, queued tasks). Names other than the
// built-in triggers become a LeadTriggered event.
func NewLeadLifecycleEvent(trigger string, leadID int64, metadata map[string]any) (LeadLifecycleEvent, error) {
	base := NewBaseEvent()
	trigger = strings.TrimSpace(trigger)
	if leadID <= 0 {
		return nil, fmt.Errorf("lead id must be positive, got %d", leadID)
	}
	switch trigger {
	case TriggerNewLead:
		return LeadCreated{BaseEvent: base, LeadID: leadID, Metadata: metadata}, nil
	case TriggerStatusChange:
		return LeadStatusChanged{
			BaseEvent: base,
			LeadID:    leadID,
			OldStatus: stringValue(metadata, "old_status"),
			NewStatus: stringValue(metadata, "new_status"),
			Metadata:  metadata,
		}, nil
	case TriggerCommunicationLogged:
		return CommunicationLogged{
			BaseEvent: base,
			LeadID:    leadID,
			Channel:   stringValue(metadata, "channel"),
			Direction: stringValue(metadata, "direction"),
			Metadata:  metadata,
		}, nil
	case "":
		return nil, fmt.Errorf("trigger event is required")
	default:
		return LeadTriggered{BaseEvent: base, Name: trigger, LeadID: leadID, Metadata: metadata}, nil
	}
}

func stringValue(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// =============================================================================
// Automation and Scoring Events
// =============================================================================

// LeadAssigned is published after an automation rule assigned a lead to an agent.
type LeadAssigned struct {
	BaseEvent
	LeadID   int64  `json:"leadId"`
	AgentID  int64  `json:"agentId"`
	RuleID   int64  `json:"ruleId"`
	Strategy string `json:"strategy"`
}

func (e LeadAssigned) EventName() string { return "automation.lead.assigned" }

// LeadScoreChanged is published after a recalculation changed a lead's score or rating.
type LeadScoreChanged struct {
	BaseEvent
	LeadID    int64  `json:"leadId"`
	OldScore  int    `json:"oldScore"`
	NewScore  int    `json:"newScore"`
	OldRating string `json:"oldRating"`
	NewRating string `json:"newRating"`
}

func (e LeadScoreChanged) EventName() string { return "scoring.lead.score_changed" }
