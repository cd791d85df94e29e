// Package repository persists scoring rules and lead score history in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lead_automation_backend/internal/condition"
	"lead_automation_backend/internal/scoring/domain"
	"lead_automation_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ruleNotFoundMsg = "scoring rule not found"

const ruleColumns = `id, rule_name, rule_type, condition_field, condition_operator, condition_value, score_points, priority, is_active, created_at, updated_at`

const createRuleQuery = `
	INSERT INTO scoring_rules (rule_name, rule_type, condition_field, condition_operator, condition_value, score_points, priority, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + ruleColumns

const getRuleQuery = `SELECT ` + ruleColumns + ` FROM scoring_rules WHERE id = $1`

const listRulesQuery = `
	SELECT ` + ruleColumns + `
	FROM scoring_rules
	WHERE ($1 = false OR is_active = true)
	ORDER BY priority ASC, id ASC`

const listActiveRulesQuery = `
	SELECT ` + ruleColumns + `
	FROM scoring_rules
	WHERE is_active = true
	ORDER BY priority ASC, id ASC`

const updateRuleQuery = `
	UPDATE scoring_rules
	SET rule_name = $2, rule_type = $3, condition_field = $4, condition_operator = $5, condition_value = $6,
		score_points = $7, priority = $8, is_active = $9, updated_at = now()
	WHERE id = $1
	RETURNING ` + ruleColumns

const setRuleActiveQuery = `
	UPDATE scoring_rules
	SET is_active = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + ruleColumns

const deleteRuleQuery = `DELETE FROM scoring_rules WHERE id = $1`

const insertHistoryQuery = `
	INSERT INTO lead_score_history (lead_id, old_score, new_score, old_rating, new_rating, rule_id, matched_rule_ids, reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at`

const existsLeadQuery = `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1 AND deleted_at IS NULL)`

// applyScoreQuery only matches while the stored score is still the one the
// recalculation read.
const applyScoreQuery = `
	UPDATE leads
	SET lead_score = $2, lead_rating = $3, score_updated_at = $4, updated_at = now()
	WHERE id = $1 AND deleted_at IS NULL
		AND COALESCE(lead_score, 0) = $5 AND COALESCE(lead_rating, '') = $6`

const listHistoryQuery = `
	SELECT id, lead_id, old_score, new_score, old_rating, new_rating, rule_id, matched_rule_ids, reason, created_at
	FROM lead_score_history
	WHERE lead_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2`

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateRule(ctx context.Context, rule domain.ScoringRule) (domain.ScoringRule, error) {
	row := r.pool.QueryRow(ctx, createRuleQuery,
		rule.RuleName, rule.RuleType, rule.ConditionField, string(rule.ConditionOperator.Normalize()), rule.ConditionValue,
		rule.ScorePoints, rule.Priority, rule.IsActive,
	)
	created, err := scanRule(row)
	if err != nil {
		return domain.ScoringRule{}, fmt.Errorf("create scoring rule: %w", err)
	}
	return created, nil
}

func (r *Repository) GetRule(ctx context.Context, id int64) (domain.ScoringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, getRuleQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoringRule{}, apperr.NotFound(ruleNotFoundMsg)
	}
	if err != nil {
		return domain.ScoringRule{}, fmt.Errorf("get scoring rule: %w", err)
	}
	return rule, nil
}

func (r *Repository) ListRules(ctx context.Context, activeOnly bool) ([]domain.ScoringRule, error) {
	rows, err := r.pool.Query(ctx, listRulesQuery, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list scoring rules: %w", err)
	}
	return collectRules(rows)
}

// ListActiveRules returns active rules ordered by priority then id.
func (r *Repository) ListActiveRules(ctx context.Context) ([]domain.ScoringRule, error) {
	rows, err := r.pool.Query(ctx, listActiveRulesQuery)
	if err != nil {
		return nil, fmt.Errorf("list active scoring rules: %w", err)
	}
	return collectRules(rows)
}

func (r *Repository) UpdateRule(ctx context.Context, rule domain.ScoringRule) (domain.ScoringRule, error) {
	row := r.pool.QueryRow(ctx, updateRuleQuery,
		rule.ID, rule.RuleName, rule.RuleType, rule.ConditionField, string(rule.ConditionOperator.Normalize()), rule.ConditionValue,
		rule.ScorePoints, rule.Priority, rule.IsActive,
	)
	updated, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoringRule{}, apperr.NotFound(ruleNotFoundMsg)
	}
	if err != nil {
		return domain.ScoringRule{}, fmt.Errorf("update scoring rule: %w", err)
	}
	return updated, nil
}

func (r *Repository) SetRuleActive(ctx context.Context, id int64, active bool) (domain.ScoringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, setRuleActiveQuery, id, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoringRule{}, apperr.NotFound(ruleNotFoundMsg)
	}
	if err != nil {
		return domain.ScoringRule{}, fmt.Errorf("toggle scoring rule: %w", err)
	}
	return rule, nil
}

func (r *Repository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteRuleQuery, id)
	if err != nil {
		return fmt.Errorf("delete scoring rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(ruleNotFoundMsg)
	}
	return nil
}

// ApplyScore moves the lead from entry's old score and rating to the new ones
// and appends entry in the same transaction. It returns domain.ErrScoreConflict
// when the stored values differ from entry's old values, and NotFound when the
// lead does not exist.
func (r *Repository) ApplyScore(ctx context.Context, entry *domain.HistoryEntry, updatedAt time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin score tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, applyScoreQuery,
		entry.LeadID, entry.NewScore, entry.NewRating, updatedAt, entry.OldScore, entry.OldRating)
	if err != nil {
		return fmt.Errorf("update lead score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, existsLeadQuery, entry.LeadID).Scan(&exists); err != nil {
			return fmt.Errorf("check lead: %w", err)
		}
		if !exists {
			return apperr.NotFound("lead not found")
		}
		return domain.ErrScoreConflict
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit score tx: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry *domain.HistoryEntry) error {
	matched := entry.MatchedRuleIDs
	if matched == nil {
		matched = []int64{}
	}
	err := tx.QueryRow(ctx, insertHistoryQuery,
		entry.LeadID, entry.OldScore, entry.NewScore, entry.OldRating, entry.NewRating,
		entry.RuleID, matched, entry.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert score history: %w", err)
	}
	return nil
}

// ListHistory returns the newest history rows of a lead first.
func (r *Repository) ListHistory(ctx context.Context, leadID int64, limit int) ([]domain.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, listHistoryQuery, leadID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list score history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.LeadID, &e.OldScore, &e.NewScore, &e.OldRating, &e.NewRating,
			&e.RuleID, &e.MatchedRuleIDs, &e.Reason, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan score history: %w", err)
		}
		if e.MatchedRuleIDs == nil {
			e.MatchedRuleIDs = []int64{}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history: %w", err)
	}
	return entries, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func collectRules(rows pgx.Rows) ([]domain.ScoringRule, error) {
	defer rows.Close()

	rules := make([]domain.ScoringRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scoring rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoring rules: %w", err)
	}
	return rules, nil
}

func scanRule(row pgx.Row) (domain.ScoringRule, error) {
	var (
		rule     domain.ScoringRule
		operator string
	)
	err := row.Scan(
		&rule.ID, &rule.RuleName, &rule.RuleType, &rule.ConditionField, &operator, &rule.ConditionValue,
		&rule.ScorePoints, &rule.Priority, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return domain.ScoringRule{}, err
	}
	rule.ConditionOperator = condition.Operator(operator)
	return rule, nil
}
