package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_automation_backend/internal/automation"
	"lead_automation_backend/internal/events"
	apphttp "lead_automation_backend/internal/http"
	"lead_automation_backend/internal/http/router"
	leadrepo "lead_automation_backend/internal/leads/repository"
	"lead_automation_backend/internal/messaging"
	"lead_automation_backend/internal/scheduler"
	"lead_automation_backend/internal/scoring"
	"lead_automation_backend/migrations"
	"lead_automation_backend/platform/config"
	"lead_automation_backend/platform/db"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"
	"lead_automation_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure
	// ========================================================================

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg)

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	templates, err := messaging.LoadTemplates(cfg.GetMessageTemplatesFile())
	if err != nil {
		log.Error("failed to load message templates", "error", err)
		panic("failed to load message templates: " + err.Error())
	}

	taskClient, closeTaskClient := initTaskClient(cfg, log)
	if closeTaskClient != nil {
		defer closeTaskClient()
	}

	redisClient, err := initCursorRedis(cfg)
	if err != nil {
		log.Error("failed to initialize redis cursor client", "error", err)
		panic("failed to initialize redis cursor client: " + err.Error())
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// ========================================================================
	// Domain Modules
	// ========================================================================

	leads := leadrepo.New(pool)

	scoringDeps := scoring.Deps{
		Pool:    pool,
		Leads:   leads,
		Bus:     eventBus,
		Metrics: appMetrics,
		Config:  cfg,
		Val:     val,
		Log:     log,
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
	if taskClient != nil {
		scoringDeps.Enqueuer = taskClient
		automationDeps.Enqueuer = taskClient
	}
	if redisClient != nil {
		automationDeps.Redis = redisClient
	}

	// Scoring subscribes first so rules dispatched for the same event see the new score.
	scoringModule, err := scoring.NewModule(scoringDeps)
	if err != nil {
		log.Error("failed to initialize scoring module", "error", err)
		panic("failed to initialize scoring module: " + err.Error())
	}
	automationModule, err := automation.NewModule(automationDeps)
	if err != nil {
		log.Error("failed to initialize automation module", "error", err)
		panic("failed to initialize automation module: " + err.Error())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		Metrics:  appMetrics,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			automationModule,
			scoringModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initTaskClient(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; events are dispatched in-process and bulk recalculation runs inline")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func initCursorRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.GetAssignmentCursorBackend() != "redis" {
		return nil, nil
	}
	return scheduler.NewRedisClient(cfg)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
