// Package scoring provides the scoring bounded context module:
// scoring rules, the recalculation engine and score history.
package scoring

import (
	"lead_automation_backend/internal/condition"
	"lead_automation_backend/internal/events"
	apphttp "lead_automation_backend/internal/http"
	"lead_automation_backend/internal/leads/ports"
	"lead_automation_backend/internal/scheduler"
	"lead_automation_backend/internal/scoring/domain"
	"lead_automation_backend/internal/scoring/engine"
	"lead_automation_backend/internal/scoring/handler"
	"lead_automation_backend/internal/scoring/repository"
	"lead_automation_backend/internal/scoring/service"
	"lead_automation_backend/internal/scoring/transport"
	"lead_automation_backend/platform/config"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"
	"lead_automation_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps holds what the scoring module needs from the composition root.
// Enqueuer and Val are optional; without Val no routes can be registered.
type Deps struct {
	Pool     *pgxpool.Pool
	Leads    ports.LeadStore
	Bus      events.Bus
	Enqueuer scheduler.RecalculationEnqueuer
	Metrics  *metrics.Metrics
	Config   config.ScoringConfig
	Val      *validator.Validator
	Log      *logger.Logger
}

// Module is the scoring bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	engine  *engine.Engine
}

// NewModule wires the scoring module. When scoring on events is enabled the
// service is subscribed to lead lifecycle events.
func NewModule(deps Deps) (*Module, error) {
	ratings, err := domain.LoadRatings(deps.Config.GetScoringRatingsFile())
	if err != nil {
		return nil, err
	}

	repo := repository.New(deps.Pool)
	eng := engine.New(engine.Deps{
		Rules:       repo,
		Scores:      repo,
		Leads:       deps.Leads,
		Evaluator:   condition.New(deps.Log),
		Ratings:     ratings,
		Bus:         deps.Bus,
		Metrics:     deps.Metrics,
		Concurrency: deps.Config.GetScoringBulkConcurrency(),
		Log:         deps.Log,
	})
	svc := service.New(repo, eng, deps.Enqueuer, deps.Config.GetScoringSyncLimit(), deps.Metrics, deps.Log)

	if deps.Config.GetScoringOnEvents() {
		for _, name := range events.LeadLifecycleEventNames {
			deps.Bus.Subscribe(name, svc)
		}
	}

	m := &Module{service: svc, engine: eng}
	if deps.Val != nil {
		transport.RegisterValidations(deps.Val)
		m.handler = handler.New(svc, deps.Val)
	}
	return m, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "scoring"
}

// Service returns the service layer, used by the scheduler worker.
func (m *Module) Service() *service.Service {
	return m.service
}

// Engine returns the recalculation engine.
func (m *Module) Engine() *engine.Engine {
	return m.engine
}

// RegisterRoutes mounts scoring routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.handler == nil {
		return
	}
	m.handler.RegisterRoutes(ctx.Protected.Group("/scoring"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
