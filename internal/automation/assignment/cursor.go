// Package assignment implements round-robin and weighted agent selection over
// persisted fairness cursors.
package assignment

import (
	"context"
	"errors"
	"time"
)

// ErrNoAgents is returned by a strategy when the pool is empty. Callers treat it
// as "no assignment", not as a failure.
var ErrNoAgents = errors.New("no agents available")

// Cursor is the fairness state of one assignment action.
type Cursor struct {
	Key         string
	LastIndex   int
	LastAgentID int64
	// Current holds the smooth weighted round-robin counters per agent.
	Current     map[int64]int64
	Assignments int64
	UpdatedAt   time.Time
}

// NewCursor returns the state of a cursor that has never assigned.
func NewCursor(key string) Cursor {
	return Cursor{Key: key, LastIndex: -1, Current: map[int64]int64{}}
}

func (c Cursor) clone() Cursor {
	out := c
	out.Current = make(map[int64]int64, len(c.Current))
	for k, v := range c.Current {
		out.Current[k] = v
	}
	return out
}

// AdvanceFunc computes the next cursor state. Returning an error aborts the
// update and leaves the stored cursor untouched.
type AdvanceFunc func(Cursor) (Cursor, error)

// CursorStore serializes read-modify-write cycles per key. Implementations
// must hold their per-key exclusion only for the duration of fn.
type CursorStore interface {
	Advance(ctx context.Context, key string, fn AdvanceFunc) (Cursor, error)
	Get(ctx context.Context, key string) (Cursor, bool, error)
	DeletePrefix(ctx context.Context, prefix string) error
}
