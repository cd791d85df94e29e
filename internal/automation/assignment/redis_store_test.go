package assignment

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:cursor:"), mr
}

func TestRedisStoreRoundRobinPersistsCursor(t *testing.T) {
	store, mr := newTestRedisStore(t)
	assigner := NewAssigner(store)
	ctx := context.Background()

	for _, want := range []int64{10, 11, 10} {
		got, err := assigner.RoundRobin(ctx, "rule:1:action:0", []int64{10, 11})
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if got != want {
			t.Fatalf("expected agent %d, got %d", want, got)
		}
	}

	if !mr.Exists("test:cursor:rule:1:action:0") {
		t.Fatal("expected cursor key to be stored in redis")
	}

	cursor, found, err := store.Get(ctx, "rule:1:action:0")
	if err != nil || !found {
		t.Fatalf("expected stored cursor, got found=%v err=%v", found, err)
	}
	if cursor.Assignments != 3 || cursor.LastAgentID != 10 {
		t.Fatalf("unexpected cursor %+v", cursor)
	}
}

func TestRedisStoreWeightedKeepsCounters(t *testing.T) {
	store, _ := newTestRedisStore(t)
	assigner := NewAssigner(store)
	ctx := context.Background()

	counts := map[int64]int{}
	for i := 0; i < 40; i++ {
		agent, err := assigner.Weighted(ctx, "rule:2:action:0", map[int64]int{1: 1, 2: 3})
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		counts[agent]++
	}
	if counts[1] != 10 || counts[2] != 30 {
		t.Fatalf("expected 10/30 split, got %v", counts)
	}
}

func TestRedisStoreConcurrentAdvanceIsAtomic(t *testing.T) {
	store, _ := newTestRedisStore(t)
	store.maxRetries = 1000
	assigner := NewAssigner(store)
	ctx := context.Background()

	var mu sync.Mutex
	counts := map[int64]int{}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent, err := assigner.RoundRobin(ctx, "rule:3:action:0", []int64{1, 2, 3})
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			counts[agent]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, id := range []int64{1, 2, 3} {
		if counts[id] != 10 {
			t.Fatalf("expected 10 per agent, got %v", counts)
		}
	}
}

func TestRedisStoreDeletePrefix(t *testing.T) {
	store, mr := newTestRedisStore(t)
	assigner := NewAssigner(store)
	ctx := context.Background()
	_, _ = assigner.RoundRobin(ctx, "rule:4:action:0", []int64{1})
	_, _ = assigner.RoundRobin(ctx, "rule:40:action:0", []int64{1})

	if err := store.DeletePrefix(ctx, "rule:4:"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if mr.Exists("test:cursor:rule:4:action:0") {
		t.Fatal("expected rule 4 cursor to be deleted")
	}
	if !mr.Exists("test:cursor:rule:40:action:0") {
		t.Fatal("expected rule 40 cursor to survive")
	}
}

func TestPostgresCursorQueriesLockTheRow(t *testing.T) {
	if !containsFold(lockCursorQuery, "for update") {
		t.Fatal("expected cursor read inside Advance to take a row lock")
	}
	if !containsFold(ensureCursorQuery, "on conflict (cursor_key) do nothing") {
		t.Fatal("expected cursor creation to be idempotent")
	}
}
