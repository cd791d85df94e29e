// Package repository implements the lead-storage collaborator on PostgreSQL.
// The leads and agents tables are owned by the CRM; this service reads them and
// writes only assignment and score columns.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lead_automation_backend/internal/leads/domain"
	"lead_automation_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const getLeadSnapshotQuery = `
	SELECT id, COALESCE(status_code, ''), country_id, source_id, COALESCE(priority, ''), assigned_to,
		COALESCE(lead_score, 0), COALESCE(lead_rating, ''), score_updated_at,
		COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(phone, ''), COALESCE(email, ''),
		COALESCE(attributes, '{}'::jsonb)
	FROM leads
	WHERE id = $1 AND deleted_at IS NULL`

const listActiveAgentsQuery = `
	SELECT id
	FROM agents
	WHERE is_active = true
		AND ($1 = '' OR pool = $1)
		AND (cardinality($2::bigint[]) = 0 OR id = ANY($2::bigint[]))
	ORDER BY id ASC`

const listLeadIDsQuery = `
	SELECT id
	FROM leads
	WHERE deleted_at IS NULL
	ORDER BY id ASC`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetLeadSnapshot loads the fields rules can reference.
func (r *Repository) GetLeadSnapshot(ctx context.Context, leadID int64) (domain.Snapshot, error) {
	var (
		lead  domain.Snapshot
		attrs []byte
	)
	err := r.pool.QueryRow(ctx, getLeadSnapshotQuery, leadID).Scan(
		&lead.ID, &lead.StatusCode, &lead.CountryID, &lead.SourceID, &lead.Priority, &lead.AssignedTo,
		&lead.LeadScore, &lead.LeadRating, &lead.ScoreUpdatedAt,
		&lead.FirstName, &lead.LastName, &lead.Phone, &lead.Email,
		&attrs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get lead snapshot: %w", err)
	}

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &lead.Attributes); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode lead attributes: %w", err)
		}
	}

	return lead, nil
}

// UpdateLead writes the non-nil fields of update in a single statement.
func (r *Repository) UpdateLead(ctx context.Context, leadID int64, update domain.Update) error {
	query, args, ok := buildUpdateLeadQuery(leadID, update)
	if !ok {
		return nil
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

func buildUpdateLeadQuery(leadID int64, update domain.Update) (string, []any, bool) {
	if update.IsEmpty() {
		return "", nil, false
	}

	sets := make([]string, 0, 2)
	args := make([]any, 0, 2)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if update.AssignedTo != nil {
		add("assigned_to", *update.AssignedTo)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, leadID)
	query := "UPDATE leads SET " + strings.Join(sets, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args)) + " AND deleted_at IS NULL"
	return query, args, true
}

// ListActiveAgents returns active agent ids matching filter, ascending.
func (r *Repository) ListActiveAgents(ctx context.Context, filter domain.AgentFilter) ([]int64, error) {
	ids := filter.IDs
	if ids == nil {
		ids = []int64{}
	}
	return r.queryIDs(ctx, "list active agents", listActiveAgentsQuery, strings.TrimSpace(filter.Pool), ids)
}

// ListLeadIDs returns every live lead id, ascending.
func (r *Repository) ListLeadIDs(ctx context.Context) ([]int64, error) {
	return r.queryIDs(ctx, "list lead ids", listLeadIDsQuery)
}

func (r *Repository) queryIDs(ctx context.Context, op, query string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}
