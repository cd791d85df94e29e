// Package metrics holds the Prometheus collectors exported on /metrics.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Automation metrics
	RuleEvaluations  *prometheus.CounterVec
	ActionResults    *prometheus.CounterVec
	ActionDuration   *prometheus.HistogramVec
	Assignments      *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Scoring metrics
	ScoreRecalculations *prometheus.CounterVec
	BulkRecalculations  *prometheus.CounterVec
}

// New registers every collector on reg. Passing nil uses a fresh private registry,
// which keeps tests free of duplicate-registration panics.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		RuleEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_rule_evaluations_total",
				Help: "Automation rules evaluated per trigger, by outcome",
			},
			[]string{"trigger", "status"}, // success, failed, skipped
		),
		ActionResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_action_results_total",
				Help: "Automation actions executed, by type and status",
			},
			[]string{"type", "status"},
		),
		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automation_action_duration_seconds",
				Help:    "Automation action latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"type"},
		),
		Assignments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_assignments_total",
				Help: "Leads assigned to agents, by strategy",
			},
			[]string{"strategy"}, // round_robin, weighted
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automation_dispatch_duration_seconds",
				Help:    "Time spent dispatching one trigger event",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),

		ScoreRecalculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scoring_recalculations_total",
				Help: "Lead score recalculations, by outcome",
			},
			[]string{"outcome"}, // changed, unchanged, failed
		),
		BulkRecalculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scoring_bulk_runs_total",
				Help: "Bulk score recalculation runs, by source",
			},
			[]string{"source"}, // http, task, cron
		),
	}
}

// Middleware creates a gin middleware for Prometheus HTTP metrics
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath() // Route pattern, not actual path (e.g., /api/v1/automation/rules/:id)
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// RecordRule increments the rule outcome counter.
func (m *Metrics) RecordRule(trigger, status string) {
	if m == nil {
		return
	}
	m.RuleEvaluations.WithLabelValues(trigger, status).Inc()
}

// RecordAction records one executed action.
func (m *Metrics) RecordAction(actionType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActionResults.WithLabelValues(actionType, status).Inc()
	m.ActionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// RecordAssignment increments the assignment counter for strategy.
func (m *Metrics) RecordAssignment(strategy string) {
	if m == nil {
		return
	}
	m.Assignments.WithLabelValues(strategy).Inc()
}

// RecordDispatch records the latency of one dispatch.
func (m *Metrics) RecordDispatch(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordRecalculation increments the recalculation counter for outcome.
func (m *Metrics) RecordRecalculation(outcome string) {
	if m == nil {
		return
	}
	m.ScoreRecalculations.WithLabelValues(outcome).Inc()
}

// RecordBulkRun increments the bulk run counter for source.
func (m *Metrics) RecordBulkRun(source string) {
	if m == nil {
		return
	}
	m.BulkRecalculations.WithLabelValues(source).Inc()
}
