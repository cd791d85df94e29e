// Package ports defines the lead-storage collaborator consumed by the
// automation and scoring modules.
package ports

import (
	"context"

	"lead_automation_backend/internal/leads/domain"
)

// LeadReader loads lead snapshots.
type LeadReader interface {
	GetLeadSnapshot(ctx context.Context, leadID int64) (domain.Snapshot, error)
}

// LeadWriter applies the fields automation and scoring own on a lead.
type LeadWriter interface {
	UpdateLead(ctx context.Context, leadID int64, update domain.Update) error
}

// AgentDirectory lists agents that can receive assignments, sorted by id.
type AgentDirectory interface {
	ListActiveAgents(ctx context.Context, filter domain.AgentFilter) ([]int64, error)
}

// LeadLister enumerates lead ids for bulk jobs.
type LeadLister interface {
	ListLeadIDs(ctx context.Context) ([]int64, error)
}

// LeadStore is the full lead-storage collaborator.
type LeadStore interface {
	LeadReader
	LeadWriter
	AgentDirectory
	LeadLister
}
