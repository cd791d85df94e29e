// Package automation provides the automation bounded context module:
// rule management, trigger dispatch and the action executor.
package automation

import (
	"fmt"

	"lead_automation_backend/internal/automation/assignment"
	"lead_automation_backend/internal/automation/dispatcher"
	"lead_automation_backend/internal/automation/executor"
	"lead_automation_backend/internal/automation/handler"
	"lead_automation_backend/internal/automation/repository"
	"lead_automation_backend/internal/automation/service"
	"lead_automation_backend/internal/automation/transport"
	"lead_automation_backend/internal/condition"
	"lead_automation_backend/internal/events"
	apphttp "lead_automation_backend/internal/http"
	"lead_automation_backend/internal/leads/ports"
	"lead_automation_backend/internal/messaging"
	"lead_automation_backend/internal/scheduler"
	"lead_automation_backend/platform/config"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"
	"lead_automation_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Deps holds what the automation module needs from the composition root.
// Enqueuer and Redis are optional.
type Deps struct {
	Pool     *pgxpool.Pool
	Leads    ports.LeadStore
	Bus      events.Bus
	WhatsApp messaging.Sender
	Email    messaging.Sender
	Enqueuer scheduler.EventEnqueuer
	Redis    redis.UniversalClient
	Metrics  *metrics.Metrics
	Config   config.AutomationConfig
	Val      *validator.Validator
	Log      *logger.Logger
}

// Module is the automation bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	service    *service.Service
	repo       *repository.Repository
	dispatcher *dispatcher.Dispatcher
}

// NewModule wires the automation module and subscribes it to lead lifecycle events.
func NewModule(deps Deps) (*Module, error) {
	cursors, err := NewCursorStore(deps.Config.GetAssignmentCursorBackend(), deps.Pool, deps.Redis)
	if err != nil {
		return nil, err
	}

	repo := repository.New(deps.Pool)
	exec := executor.New(executor.Deps{
		Leads:    deps.Leads,
		Assigner: assignment.NewAssigner(cursors),
		WhatsApp: deps.WhatsApp,
		Email:    deps.Email,
		Bus:      deps.Bus,
		Metrics:  deps.Metrics,
		Timeout:  deps.Config.GetActionTimeout(),
		Log:      deps.Log,
	})
	d := dispatcher.New(repo, repo, deps.Leads, exec, condition.New(deps.Log), deps.Metrics, deps.Log)
	svc := service.New(repo, d, cursors, deps.Bus, deps.Enqueuer, deps.Log)

	transport.RegisterValidations(deps.Val)
	for _, name := range events.LeadLifecycleEventNames {
		deps.Bus.Subscribe(name, svc)
	}

	return &Module{
		handler:    handler.New(svc, deps.Val),
		service:    svc,
		repo:       repo,
		dispatcher: d,
	}, nil
}

// NewCursorStore returns the assignment cursor backend named by backend.
func NewCursorStore(backend string, pool *pgxpool.Pool, client redis.UniversalClient) (assignment.CursorStore, error) {
	switch backend {
	case "", "postgres":
		return assignment.NewPostgresStore(pool), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis cursor backend requires a redis client")
		}
		return assignment.NewRedisStore(client, ""), nil
	case "memory":
		return assignment.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown assignment cursor backend %q", backend)
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "automation"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the rule and log repository, used by log retention.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts automation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/automation")
	m.handler.RegisterRoutes(group)

	var limit gin.HandlerFunc
	if ctx.EventsRateLimiter != nil {
		limit = ctx.EventsRateLimiter.RateLimit()
	}
	m.handler.RegisterEventRoutes(group, limit)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
