package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_automation_backend/internal/automation"
	"lead_automation_backend/internal/events"
	leadrepo "lead_automation_backend/internal/leads/repository"
	"lead_automation_backend/internal/messaging"
	"lead_automation_backend/internal/scheduler"
	"lead_automation_backend/internal/scoring"
	"lead_automation_backend/platform/config"
	"lead_automation_backend/platform/db"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"
	"lead_automation_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logRetentionInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New(nil)
	val := validator.New()

	templates, err := messaging.LoadTemplates(cfg.GetMessageTemplatesFile())
	if err != nil {
		log.Error("failed to load message templates", "error", err)
		panic("failed to load message templates: " + err.Error())
	}

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		panic("failed to initialize task client: " + err.Error())
	}
	defer func() { _ = taskClient.Close() }()

	leads := leadrepo.New(pool)

	// Worker-side wiring: queued events are republished on the bus and handled
	// by the same module services the API process uses.
	scoringModule, err := scoring.NewModule(scoring.Deps{
		Pool:    pool,
		Leads:   leads,
		Bus:     eventBus,
		Metrics: appMetrics,
		Config:  cfg,
		Log:     log,
	})
	if err != nil {
		log.Error("failed to initialize scoring module", "error", err)
		panic("failed to initialize scoring module: " + err.Error())
	}

	automationDeps := automation.Deps{
		Pool:     pool,
		Leads:    leads,
		Bus:      eventBus,
		WhatsApp: messaging.NewWhatsAppSender(cfg, templates, log),
		Email:    messaging.NewEmailSender(cfg, templates, log),
		Metrics:  appMetrics,
		Config:   cfg,
		Val:      val,
		Log:      log,
	}
	if cfg.GetAssignmentCursorBackend() == "redis" {
		redisClient, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize redis cursor client", "error", err)
			panic("failed to initialize redis cursor client: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()
		automationDeps.Redis = redisClient
	}
	automationModule, err := automation.NewModule(automationDeps)
	if err != nil {
		log.Error("failed to initialize automation module", "error", err)
		panic("failed to initialize automation module: " + err.Error())
	}

	retention := scheduler.NewLogRetention(automationModule.Repository(), log, logRetentionInterval, cfg.GetAutomationLogRetention())
	go retention.Run(ctx)

	if schedule := cfg.GetScoringCron(); schedule != "" {
		rescoring, err := scheduler.NewRescoringSchedule(schedule, taskClient, log)
		if err != nil {
			log.Error("failed to initialize rescoring schedule", "error", err)
			panic("failed to initialize rescoring schedule: " + err.Error())
		}
		go rescoring.Run(ctx)
		log.Info("scheduled rescoring enabled", "schedule", schedule)
	}

	worker, err := scheduler.NewWorker(cfg, eventBus, scoringModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
