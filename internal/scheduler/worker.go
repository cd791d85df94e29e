package scheduler

import (
	"context"
	"fmt"

	"lead_automation_backend/internal/events"
	"lead_automation_backend/platform/config"
	"lead_automation_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// BulkRecalculator runs a queued bulk score recalculation.
type BulkRecalculator interface {
	RunBulkRecalculation(ctx context.Context, leadIDs []int64, all bool, source string) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	bus     events.Bus
	scoring BulkRecalculator
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, scoring BulkRecalculator, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := newWorker(bus, scoring, log)
	w.server = server
	return w, nil
}

func newWorker(bus events.Bus, scoring BulkRecalculator, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:     mux,
		bus:     bus,
		scoring: scoring,
		log:     log,
	}

	mux.HandleFunc(TaskAutomationDispatch, w.handleAutomationDispatch)
	mux.HandleFunc(TaskScoringBulkRecalculate, w.handleScoringBulkRecalculate)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleAutomationDispatch republishes the queued event on the in-process bus
// so automation and scoring handle it exactly as they would a live event.
func (w *Worker) handleAutomationDispatch(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseAutomationDispatchPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	event, err := events.NewLeadLifecycleEvent(payload.Event, payload.LeadID, payload.Metadata)
	if err != nil {
		w.log.Warn("dropping automation task with unknown event", "event", payload.Event, "lead_id", payload.LeadID)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	return w.bus.PublishSync(ctx, event)
}

func (w *Worker) handleScoringBulkRecalculate(ctx context.Context, task *asynq.Task) error {
	if w.scoring == nil {
		return nil
	}

	payload, err := ParseScoringBulkRecalculatePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	source := payload.Source
	if source == "" {
		source = "task"
	}
	return w.scoring.RunBulkRecalculation(ctx, payload.LeadIDs, payload.All, source)
}
