// Package repository persists automation rules and dispatch logs in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lead_automation_backend/internal/automation/domain"
	"lead_automation_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ruleNotFoundMsg = "automation rule not found"

const ruleColumns = `id, name, trigger_event, trigger_entity, conditions, actions, priority, is_active, created_by, created_at, updated_at`

const createRuleQuery = `
	INSERT INTO automation_rules (name, trigger_event, trigger_entity, conditions, actions, priority, is_active, created_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + ruleColumns

const getRuleQuery = `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = $1`

const listRulesQuery = `
	SELECT ` + ruleColumns + `
	FROM automation_rules
	WHERE ($1 = '' OR trigger_event = $1)
		AND ($2 = false OR is_active = true)
	ORDER BY priority ASC, id ASC`

const listActiveByTriggerQuery = `
	SELECT ` + ruleColumns + `
	FROM automation_rules
	WHERE trigger_event = $1 AND trigger_entity = 'lead' AND is_active = true
	ORDER BY priority ASC, id ASC`

const updateRuleQuery = `
	UPDATE automation_rules
	SET name = $2, trigger_event = $3, trigger_entity = $4, conditions = $5, actions = $6,
		priority = $7, is_active = $8, updated_at = now()
	WHERE id = $1
	RETURNING ` + ruleColumns

const setRuleActiveQuery = `
	UPDATE automation_rules
	SET is_active = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + ruleColumns

const deleteRuleQuery = `DELETE FROM automation_rules WHERE id = $1`

const insertLogQuery = `
	INSERT INTO automation_logs (run_id, rule_id, lead_id, trigger_event, matched, matched_conditions, executed_actions, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at`

const deleteLogsBeforeQuery = `DELETE FROM automation_logs WHERE created_at < $1`

const logColumns = `id, run_id, rule_id, lead_id, trigger_event, matched, matched_conditions, executed_actions, status, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	conditions, actions, err := encodeRuleBody(rule)
	if err != nil {
		return domain.Rule{}, err
	}

	row := r.pool.QueryRow(ctx, createRuleQuery,
		rule.Name, rule.TriggerEvent, entityOrDefault(rule.TriggerEntity), conditions, actions,
		rule.Priority, rule.IsActive, rule.CreatedBy,
	)
	created, err := scanRule(row)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("create automation rule: %w", err)
	}
	return created, nil
}

func (r *Repository) GetRule(ctx context.Context, id int64) (domain.Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, getRuleQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Rule{}, apperr.NotFound(ruleNotFoundMsg)
	}
	if err != nil {
		return domain.Rule{}, fmt.Errorf("get automation rule: %w", err)
	}
	return rule, nil
}

func (r *Repository) ListRules(ctx context.Context, filter domain.RuleFilter) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, listRulesQuery, filter.TriggerEvent, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list automation rules: %w", err)
	}
	return collectRules(rows)
}

// ListActiveByTrigger returns the active rules for trigger, ordered by priority then id.
func (r *Repository) ListActiveByTrigger(ctx context.Context, trigger string) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, listActiveByTriggerQuery, trigger)
	if err != nil {
		return nil, fmt.Errorf("list active automation rules: %w", err)
	}
	return collectRules(rows)
}

func (r *Repository) UpdateRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	conditions, actions, err := encodeRuleBody(rule)
	if err != nil {
		return domain.Rule{}, err
	}

	row := r.pool.QueryRow(ctx, updateRuleQuery,
		rule.ID, rule.Name, rule.TriggerEvent, entityOrDefault(rule.TriggerEntity), conditions, actions,
		rule.Priority, rule.IsActive,
	)
	updated, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Rule{}, apperr.NotFound(ruleNotFoundMsg)
	}
	if err != nil {
		return domain.Rule{}, fmt.Errorf("update automation rule: %w", err)
	}
	return updated, nil
}

func (r *Repository) SetRuleActive(ctx context.Context, id int64, active bool) (domain.Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, setRuleActiveQuery, id, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Rule{}, apperr.NotFound(ruleNotFoundMsg)
	}
	if err != nil {
		return domain.Rule{}, fmt.Errorf("toggle automation rule: %w", err)
	}
	return rule, nil
}

func (r *Repository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteRuleQuery, id)
	if err != nil {
		return fmt.Errorf("delete automation rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(ruleNotFoundMsg)
	}
	return nil
}

// InsertLog appends one dispatch log row and fills its id and created_at.
func (r *Repository) InsertLog(ctx context.Context, entry *domain.LogEntry) error {
	conditions, err := json.Marshal(nonNilSlice(entry.MatchedConditions))
	if err != nil {
		return fmt.Errorf("encode matched conditions: %w", err)
	}
	actions, err := json.Marshal(nonNilSlice(entry.ExecutedActions))
	if err != nil {
		return fmt.Errorf("encode executed actions: %w", err)
	}

	err = r.pool.QueryRow(ctx, insertLogQuery,
		entry.RunID, entry.RuleID, entry.LeadID, entry.TriggerEvent, entry.Matched, conditions, actions, entry.Status,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert automation log: %w", err)
	}
	return nil
}

// ListLogs returns one page of logs, newest first, and the total count.
func (r *Repository) ListLogs(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, int, error) {
	where, args := buildLogFilter(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM automation_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count automation logs: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	args = append(args, size, (page-1)*size)
	query := "SELECT " + logColumns + " FROM automation_logs" + where +
		" ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list automation logs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LogEntry, 0, size)
	for rows.Next() {
		var (
			entry      domain.LogEntry
			conditions []byte
			actions    []byte
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.RuleID, &entry.LeadID, &entry.TriggerEvent,
			&entry.Matched, &conditions, &actions, &entry.Status, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan automation log: %w", err)
		}
		if err := json.Unmarshal(conditions, &entry.MatchedConditions); err != nil {
			return nil, 0, fmt.Errorf("decode matched conditions: %w", err)
		}
		if err := json.Unmarshal(actions, &entry.ExecutedActions); err != nil {
			return nil, 0, fmt.Errorf("decode executed actions: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate automation logs: %w", err)
	}
	return entries, total, nil
}

// DeleteLogsBefore removes log rows created before cutoff.
func (r *Repository) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteLogsBeforeQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete automation logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildLogFilter(filter domain.LogFilter) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.RuleID != nil {
		add("rule_id = $%d", *filter.RuleID)
	}
	if filter.LeadID != nil {
		add("lead_id = $%d", *filter.LeadID)
	}
	if filter.RunID != nil {
		add("run_id = $%d", *filter.RunID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	return page, size
}

func collectRules(rows pgx.Rows) ([]domain.Rule, error) {
	defer rows.Close()

	rules := make([]domain.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate automation rules: %w", err)
	}
	return rules, nil
}

func scanRule(row pgx.Row) (domain.Rule, error) {
	var (
		rule       domain.Rule
		conditions []byte
		actions    []byte
	)
	if err := row.Scan(&rule.ID, &rule.Name, &rule.TriggerEvent, &rule.TriggerEntity, &conditions, &actions,
		&rule.Priority, &rule.IsActive, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return domain.Rule{}, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return domain.Rule{}, fmt.Errorf("decode conditions of rule %d: %w", rule.ID, err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return domain.Rule{}, fmt.Errorf("decode actions of rule %d: %w", rule.ID, err)
	}
	return rule, nil
}

func encodeRuleBody(rule domain.Rule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(nonNilSlice(rule.Conditions))
	if err != nil {
		return nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	actions, err := json.Marshal(nonNilSlice(rule.Actions))
	if err != nil {
		return nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	return conditions, actions, nil
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func entityOrDefault(entity string) string {
	if entity == "" {
		return domain.EntityLead
	}
	return entity
}
