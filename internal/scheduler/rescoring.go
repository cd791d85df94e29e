package scheduler

import (
	"context"
	"fmt"

	"lead_automation_backend/platform/logger"

	"github.com/robfig/cron/v3"
)

// RescoringSchedule enqueues a full bulk recalculation on a cron schedule.
type RescoringSchedule struct {
	cron     *cron.Cron
	enqueuer RecalculationEnqueuer
	log      *logger.Logger
}

// NewRescoringSchedule validates schedule (standard five-field cron or a
// descriptor such as "@daily") and registers the rescoring job.
func NewRescoringSchedule(schedule string, enqueuer RecalculationEnqueuer, log *logger.Logger) (*RescoringSchedule, error) {
	s := &RescoringSchedule{
		cron:     cron.New(),
		enqueuer: enqueuer,
		log:      log,
	}
	if _, err := s.cron.AddFunc(schedule, s.enqueue); err != nil {
		return nil, fmt.Errorf("invalid SCORING_CRON %q: %w", schedule, err)
	}
	return s, nil
}

// Run blocks until ctx is cancelled, then waits for a running enqueue to finish.
func (s *RescoringSchedule) Run(ctx context.Context) {
	if s == nil {
		return
	}
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

func (s *RescoringSchedule) enqueue() {
	id, err := s.enqueuer.EnqueueBulkRecalculation(context.Background(), ScoringBulkRecalculatePayload{All: true, Source: "cron"})
	if err != nil {
		s.log.Warn("scheduled rescoring enqueue failed", "error", err)
		return
	}
	s.log.Info("scheduled rescoring enqueued", "task_id", id)
}
