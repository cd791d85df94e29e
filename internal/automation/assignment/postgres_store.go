package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureCursorQuery = `
	INSERT INTO assignment_cursors (cursor_key)
	VALUES ($1)
	ON CONFLICT (cursor_key) DO NOTHING`

const lockCursorQuery = `
	SELECT last_index, COALESCE(last_agent_id, 0), weights, assignments, updated_at
	FROM assignment_cursors
	WHERE cursor_key = $1
	FOR UPDATE`

const selectCursorQuery = `
	SELECT last_index, COALESCE(last_agent_id, 0), weights, assignments, updated_at
	FROM assignment_cursors
	WHERE cursor_key = $1`

const saveCursorQuery = `
	UPDATE assignment_cursors
	SET last_index = $2, last_agent_id = NULLIF($3::bigint, 0), weights = $4, assignments = $5, updated_at = $6
	WHERE cursor_key = $1`

const deleteCursorPrefixQuery = `
	DELETE FROM assignment_cursors
	WHERE starts_with(cursor_key, $1)`

// PostgresStore persists cursors in assignment_cursors and serializes updates
// with a row lock held for the duration of one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Advance(ctx context.Context, key string, fn AdvanceFunc) (Cursor, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Cursor{}, fmt.Errorf("begin cursor tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, ensureCursorQuery, key); err != nil {
		return Cursor{}, fmt.Errorf("ensure cursor: %w", err)
	}

	current, err := scanCursor(key, tx.QueryRow(ctx, lockCursorQuery, key))
	if err != nil {
		return Cursor{}, fmt.Errorf("lock cursor: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return Cursor{}, err
	}
	next.Key = key

	weights, err := encodeCounters(next.Current)
	if err != nil {
		return Cursor{}, err
	}
	if _, err := tx.Exec(ctx, saveCursorQuery, key, next.LastIndex, next.LastAgentID, weights, next.Assignments, next.UpdatedAt); err != nil {
		return Cursor{}, fmt.Errorf("save cursor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Cursor{}, fmt.Errorf("commit cursor: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Cursor, bool, error) {
	c, err := scanCursor(key, s.pool.QueryRow(ctx, selectCursorQuery, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return NewCursor(key), false, nil
	}
	if err != nil {
		return Cursor{}, false, fmt.Errorf("get cursor: %w", err)
	}
	return c, true, nil
}

func (s *PostgresStore) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := s.pool.Exec(ctx, deleteCursorPrefixQuery, prefix); err != nil {
		return fmt.Errorf("delete cursors: %w", err)
	}
	return nil
}

func scanCursor(key string, row pgx.Row) (Cursor, error) {
	c := NewCursor(key)
	var weights []byte
	if err := row.Scan(&c.LastIndex, &c.LastAgentID, &weights, &c.Assignments, &c.UpdatedAt); err != nil {
		return Cursor{}, err
	}
	counters, err := decodeCounters(weights)
	if err != nil {
		return Cursor{}, err
	}
	c.Current = counters
	return c, nil
}

// Counters are stored as a JSON object keyed by agent id.
func encodeCounters(counters map[int64]int64) ([]byte, error) {
	if counters == nil {
		counters = map[int64]int64{}
	}
	raw, err := json.Marshal(counters)
	if err != nil {
		return nil, fmt.Errorf("encode cursor weights: %w", err)
	}
	return raw, nil
}

func decodeCounters(raw []byte) (map[int64]int64, error) {
	counters := make(map[int64]int64)
	if len(raw) == 0 {
		return counters, nil
	}
	if err := json.Unmarshal(raw, &counters); err != nil {
		return nil, fmt.Errorf("decode cursor weights: %w", err)
	}
	return counters, nil
}
