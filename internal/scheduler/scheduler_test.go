package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lead_automation_backend/internal/events"
	"lead_automation_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewClientWithOpt(asynq.RedisClientOpt{Addr: mr.Addr()}, "automation")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEnqueueAutomationDispatch(t *testing.T) {
	client := newTestClient(t)

	id, err := client.EnqueueAutomationDispatch(context.Background(), AutomationDispatchPayload{Event: "new_lead", LeadID: 42})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id == "" {
		t.Fatal("expected a task id")
	}
}

func TestAutomationDispatchPayloadSurvivesTask(t *testing.T) {
	task, err := NewAutomationDispatchTask(AutomationDispatchPayload{Event: "new_lead", LeadID: 42})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TaskAutomationDispatch {
		t.Fatalf("expected %s, got %s", TaskAutomationDispatch, task.Type())
	}
	payload, err := ParseAutomationDispatchPayload(task)
	if err != nil || payload.LeadID != 42 || payload.Event != "new_lead" {
		t.Fatalf("unexpected payload %+v (%v)", payload, err)
	}
}

func TestEnqueueBulkRecalculationAllIsUnique(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.EnqueueBulkRecalculation(ctx, ScoringBulkRecalculatePayload{All: true}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	_, err := client.EnqueueBulkRecalculation(ctx, ScoringBulkRecalculatePayload{All: true})
	if !errors.Is(err, asynq.ErrDuplicateTask) {
		t.Fatalf("expected duplicate task error, got %v", err)
	}
}

func TestNilClientRefusesToEnqueue(t *testing.T) {
	var client *Client
	if _, err := client.EnqueueAutomationDispatch(context.Background(), AutomationDispatchPayload{}); err == nil {
		t.Fatal("expected error from nil client")
	}
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	_ = b.PublishSync(ctx, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

type fakeRecalculator struct {
	ids    []int64
	all    bool
	source string
}

func (f *fakeRecalculator) RunBulkRecalculation(_ context.Context, ids []int64, all bool, source string) error {
	f.ids, f.all, f.source = ids, all, source
	return nil
}

func TestWorkerRepublishesLifecycleEvent(t *testing.T) {
	bus := &recordingBus{}
	w := newWorker(bus, nil, logger.Discard())

	task, _ := NewAutomationDispatchTask(AutomationDispatchPayload{Event: "status_change", LeadID: 5, Metadata: map[string]any{"new_status": "won"}})
	if err := w.handleAutomationDispatch(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(bus.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(bus.events))
	}
	evt, ok := bus.events[0].(events.LeadStatusChanged)
	if !ok || evt.LeadID != 5 || evt.NewStatus != "won" {
		t.Fatalf("unexpected event %#v", bus.events[0])
	}
}

func TestWorkerSkipsRetryForBadPayload(t *testing.T) {
	w := newWorker(&recordingBus{}, nil, logger.Discard())
	err := w.handleAutomationDispatch(context.Background(), asynq.NewTask(TaskAutomationDispatch, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestWorkerRunsBulkRecalculation(t *testing.T) {
	recalc := &fakeRecalculator{}
	w := newWorker(nil, recalc, logger.Discard())

	task, _ := NewScoringBulkRecalculateTask(ScoringBulkRecalculatePayload{LeadIDs: []int64{1, 2}})
	if err := w.handleScoringBulkRecalculate(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(recalc.ids) != 2 || recalc.all || recalc.source != "task" {
		t.Fatalf("unexpected call ids=%v all=%v source=%q", recalc.ids, recalc.all, recalc.source)
	}
}

type fakePruner struct {
	before time.Time
	calls  int
}

func (f *fakePruner) DeleteLogsBefore(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	f.calls++
	return 3, nil
}

func TestLogRetentionPrunesWithCutoff(t *testing.T) {
	pruner := &fakePruner{}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	retention := NewLogRetention(pruner, logger.Discard(), time.Hour, 24*time.Hour)
	retention.now = func() time.Time { return now }

	retention.prune(context.Background())

	if pruner.calls != 1 || !pruner.before.Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("unexpected prune call %d before=%s", pruner.calls, pruner.before)
	}
}

func TestRescoringScheduleRejectsBadSchedule(t *testing.T) {
	if _, err := NewRescoringSchedule("not a cron", nil, logger.Discard()); err == nil {
		t.Fatal("expected invalid cron schedule error")
	}
}

type fakeEnqueuer struct {
	payload ScoringBulkRecalculatePayload
}

func (f *fakeEnqueuer) EnqueueBulkRecalculation(_ context.Context, payload ScoringBulkRecalculatePayload) (string, error) {
	f.payload = payload
	return "task-1", nil
}

func TestRescoringScheduleEnqueuesFullRun(t *testing.T) {
	enq := &fakeEnqueuer{}
	s, err := NewRescoringSchedule("@daily", enq, logger.Discard())
	if err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}

	s.enqueue()

	if !enq.payload.All || enq.payload.Source != "cron" {
		t.Fatalf("unexpected payload %+v", enq.payload)
	}
}
