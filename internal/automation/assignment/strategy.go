package assignment

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Strategy names, used in logs and metrics.
const (
	StrategyRoundRobin = "round_robin"
	StrategyWeighted   = "weighted"
)

// Assigner picks agents using a CursorStore for fairness state.
type Assigner struct {
	store CursorStore
	now   func() time.Time
}

// NewAssigner creates an Assigner backed by store.
func NewAssigner(store CursorStore) *Assigner {
	return &Assigner{store: store, now: time.Now}
}

// Pick is one cursor advance. It can be released while no later advance has
// happened on the same cursor.
type Pick struct {
	Key         string
	AgentID     int64
	assignments int64
	previous    Cursor
}

var errCursorMoved = errors.New("cursor advanced after pick")

// RoundRobin returns the agent after the cursor's last pick in id order and
// advances the cursor. An empty pool returns ErrNoAgents.
func (a *Assigner) RoundRobin(ctx context.Context, key string, agents []int64) (int64, error) {
	pick, err := a.PickRoundRobin(ctx, key, agents)
	return pick.AgentID, err
}

// PickRoundRobin is RoundRobin returning a releasable Pick.
func (a *Assigner) PickRoundRobin(ctx context.Context, key string, agents []int64) (Pick, error) {
	pool := normalizePool(agents)
	if len(pool) == 0 {
		return Pick{}, ErrNoAgents
	}

	var previous Cursor
	cursor, err := a.store.Advance(ctx, key, func(c Cursor) (Cursor, error) {
		previous = c.clone()
		next := c.clone()
		idx := nextRoundRobinIndex(c, pool)
		next.LastIndex = idx
		next.LastAgentID = pool[idx]
		next.Assignments++
		next.UpdatedAt = a.now()
		return next, nil
	})
	if err != nil {
		return Pick{}, err
	}
	return Pick{Key: key, AgentID: cursor.LastAgentID, assignments: cursor.Assignments, previous: previous}, nil
}

// Release restores the cursor to its state before pick, so the agent keeps its
// turn. It reports false without changing anything when the cursor was advanced
// again after pick.
func (a *Assigner) Release(ctx context.Context, pick Pick) (bool, error) {
	if pick.Key == "" {
		return false, nil
	}
	_, err := a.store.Advance(ctx, pick.Key, func(c Cursor) (Cursor, error) {
		if c.LastAgentID != pick.AgentID || c.Assignments != pick.assignments {
			return c, errCursorMoved
		}
		restored := pick.previous.clone()
		restored.UpdatedAt = a.now()
		return restored, nil
	})
	if errors.Is(err, errCursorMoved) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// nextRoundRobinIndex is (last_index + 1) mod N for an unchanged pool. When the
// pool changed since the last pick, rotation resumes after the last agent id so
// agents are neither skipped nor repeated.
func nextRoundRobinIndex(c Cursor, pool []int64) int {
	n := len(pool)
	if c.LastAgentID > 0 {
		idx := sort.Search(n, func(i int) bool { return pool[i] > c.LastAgentID })
		return idx % n
	}
	if c.LastIndex < 0 {
		return 0
	}
	return (c.LastIndex + 1) % n
}

// Weighted runs one step of smooth weighted round-robin over weights, visiting
// agents in id order. Agents with a non-positive weight are ignored.
func (a *Assigner) Weighted(ctx context.Context, key string, weights map[int64]int) (int64, error) {
	pick, err := a.PickWeighted(ctx, key, weights)
	return pick.AgentID, err
}

// PickWeighted is Weighted returning a releasable Pick.
func (a *Assigner) PickWeighted(ctx context.Context, key string, weights map[int64]int) (Pick, error) {
	ids := make([]int64, 0, len(weights))
	for id, w := range weights {
		if id > 0 && w > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Pick{}, ErrNoAgents
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var previous Cursor
	cursor, err := a.store.Advance(ctx, key, func(c Cursor) (Cursor, error) {
		previous = c.clone()
		next := c.clone()
		pick, current := smoothWeightedPick(ids, weights, c.Current)
		next.Current = current
		next.LastAgentID = pick
		next.LastIndex = sort.Search(len(ids), func(i int) bool { return ids[i] >= pick })
		next.Assignments++
		next.UpdatedAt = a.now()
		return next, nil
	})
	if err != nil {
		return Pick{}, err
	}
	return Pick{Key: key, AgentID: cursor.LastAgentID, assignments: cursor.Assignments, previous: previous}, nil
}

// smoothWeightedPick adds each weight to its agent's counter, picks the highest
// counter (lowest id on ties) and subtracts the total weight from it. Counters
// of agents no longer weighted are dropped.
func smoothWeightedPick(ids []int64, weights map[int64]int, counters map[int64]int64) (int64, map[int64]int64) {
	current := make(map[int64]int64, len(ids))
	var total int64
	var best int64
	bestSet := false

	for _, id := range ids {
		w := int64(weights[id])
		current[id] = counters[id] + w
		total += w
		if !bestSet || current[id] > current[best] {
			best = id
			bestSet = true
		}
	}
	current[best] -= total
	return best, current
}

func normalizePool(agents []int64) []int64 {
	seen := make(map[int64]struct{}, len(agents))
	pool := make([]int64, 0, len(agents))
	for _, id := range agents {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })
	return pool
}
