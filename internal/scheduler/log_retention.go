package scheduler

import (
	"context"
	"time"

	"lead_automation_backend/platform/logger"
)

const (
	defaultLogRetentionInterval = time.Hour
	defaultLogRetention         = 90 * 24 * time.Hour
)

// LogPruner deletes automation log rows created before a cutoff.
type LogPruner interface {
	DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error)
}

// LogRetention periodically removes old automation log rows.
type LogRetention struct {
	repo      LogPruner
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewLogRetention(repo LogPruner, log *logger.Logger, interval, retention time.Duration) *LogRetention {
	if interval <= 0 {
		interval = defaultLogRetentionInterval
	}
	if retention <= 0 {
		retention = defaultLogRetention
	}

	return &LogRetention{
		repo:      repo,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *LogRetention) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.prune(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.prune(ctx)
		}
	}
}

func (c *LogRetention) prune(ctx context.Context) {
	before := c.now().Add(-c.retention)

	deleted, err := c.repo.DeleteLogsBefore(ctx, before)
	if err != nil {
		c.log.Warn("automation log retention failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("automation log retention deleted old rows", "deleted", deleted, "before", before)
	}
}
