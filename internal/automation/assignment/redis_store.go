package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCursorContention is returned when optimistic updates keep losing the race.
var ErrCursorContention = errors.New("assignment cursor contention")

const defaultRedisRetries = 16

// RedisStore keeps cursors as JSON strings and applies updates with
// WATCH/MULTI compare-and-swap, retrying when another writer got there first.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// NewRedisStore creates a RedisStore. Keys are namespaced with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "assignment:cursor:"
	}
	return &RedisStore{client: client, prefix: prefix, maxRetries: defaultRedisRetries}
}

type redisCursor struct {
	LastIndex   int             `json:"last_index"`
	LastAgentID int64           `json:"last_agent_id,omitempty"`
	Current     map[int64]int64 `json:"current,omitempty"`
	Assignments int64           `json:"assignments"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (s *RedisStore) Advance(ctx context.Context, key string, fn AdvanceFunc) (Cursor, error) {
	redisKey := s.prefix + key
	var result Cursor

	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, key, redisKey)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		next.Key = key

		payload, err := encodeRedisCursor(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Cursor{}, err
	}
	return Cursor{}, fmt.Errorf("%w on %s", ErrCursorContention, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (Cursor, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewCursor(key), false, nil
	}
	if err != nil {
		return Cursor{}, false, fmt.Errorf("get cursor: %w", err)
	}
	c, err := decodeRedisCursor(key, raw)
	if err != nil {
		return Cursor{}, false, err
	}
	return c, true, nil
}

// DeletePrefix uses SCAN so large keyspaces are not blocked.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pattern := s.prefix + prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan cursors: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cursors: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) load(ctx context.Context, tx *redis.Tx, key, redisKey string) (Cursor, error) {
	raw, err := tx.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewCursor(key), nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	return decodeRedisCursor(key, raw)
}

func encodeRedisCursor(c Cursor) ([]byte, error) {
	return json.Marshal(redisCursor{
		LastIndex:   c.LastIndex,
		LastAgentID: c.LastAgentID,
		Current:     c.Current,
		Assignments: c.Assignments,
		UpdatedAt:   c.UpdatedAt,
	})
}

func decodeRedisCursor(key string, raw []byte) (Cursor, error) {
	var stored redisCursor
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	if stored.Current == nil {
		stored.Current = map[int64]int64{}
	}
	return Cursor{
		Key:         key,
		LastIndex:   stored.LastIndex,
		LastAgentID: stored.LastAgentID,
		Current:     stored.Current,
		Assignments: stored.Assignments,
		UpdatedAt:   stored.UpdatedAt,
	}, nil
}
