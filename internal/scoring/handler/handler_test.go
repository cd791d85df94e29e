package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lead_automation_backend/internal/scoring/domain"
	"lead_automation_backend/internal/scoring/service"
	"lead_automation_backend/internal/scoring/transport"
	"lead_automation_backend/platform/apperr"
	"lead_automation_backend/platform/httpkit"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type stubRepo struct {
	rules map[int64]domain.ScoringRule
}

func (r *stubRepo) CreateRule(_ context.Context, rule domain.ScoringRule) (domain.ScoringRule, error) {
	rule.ID = int64(len(r.rules) + 1)
	r.rules[rule.ID] = rule
	return rule, nil
}

func (r *stubRepo) GetRule(_ context.Context, id int64) (domain.ScoringRule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return domain.ScoringRule{}, apperr.NotFound("scoring rule not found")
	}
	return rule, nil
}

func (r *stubRepo) ListRules(context.Context, bool) ([]domain.ScoringRule, error) {
	return []domain.ScoringRule{}, nil
}

func (r *stubRepo) UpdateRule(_ context.Context, rule domain.ScoringRule) (domain.ScoringRule, error) {
	r.rules[rule.ID] = rule
	return rule, nil
}

func (r *stubRepo) SetRuleActive(_ context.Context, id int64, active bool) (domain.ScoringRule, error) {
	rule := r.rules[id]
	rule.IsActive = active
	return rule, nil
}

func (r *stubRepo) DeleteRule(context.Context, int64) error { return nil }

func (r *stubRepo) ListHistory(_ context.Context, leadID int64, _ int) ([]domain.HistoryEntry, error) {
	return []domain.HistoryEntry{{LeadID: leadID, OldScore: 0, NewScore: 35, NewRating: domain.RatingCold}}, nil
}

type stubEngine struct{}

func (stubEngine) Recalculate(_ context.Context, leadID int64, _ string) (domain.Result, error) {
	if leadID == 404 {
		return domain.Result{}, apperr.NotFound("lead not found")
	}
	return domain.Result{LeadID: leadID, Score: 35, Rating: domain.RatingCold, Changed: true}, nil
}

func (stubEngine) BulkRecalculate(_ context.Context, ids []int64, _ bool, _ string) (domain.BulkResult, error) {
	return domain.BulkResult{Processed: len(ids)}, nil
}

func newRouter(roles []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	val := validator.New()
	transport.RegisterValidations(val)
	svc := service.New(&stubRepo{rules: map[int64]domain.ScoringRule{}}, stubEngine{}, nil, 0, nil, logger.Discard())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, int64(1))
		c.Set(httpkit.ContextRolesKey, roles)
		c.Next()
	})
	New(svc, val).RegisterRoutes(r.Group("/scoring"))
	return r
}

func send(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateScoringRule(t *testing.T) {
	r := newRouter([]string{"admin"})

	rec := send(r, http.MethodPost, "/scoring/rules", map[string]any{
		"rule_name":       "High priority",
		"condition_field": "priority",
		"condition_value": "high",
		"score_points":    20,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = send(r, http.MethodPost, "/scoring/rules", map[string]any{
		"rule_name":          "Bad operator",
		"condition_field":    "priority",
		"condition_operator": "sounds_like",
		"score_points":       20,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown operator, got %d", rec.Code)
	}
}

func TestScoringWritesRequireAdmin(t *testing.T) {
	r := newRouter([]string{"agent"})

	if rec := send(r, http.MethodPost, "/scoring/recalculate", map[string]any{"all": true}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRecalculateLeadEndpoint(t *testing.T) {
	r := newRouter(nil)

	rec := send(r, http.MethodPost, "/scoring/leads/7/recalculate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result domain.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Score != 35 || result.Rating != domain.RatingCold {
		t.Fatalf("unexpected result %+v", result)
	}

	if rec := send(r, http.MethodPost, "/scoring/leads/404/recalculate", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	r := newRouter(nil)

	rec := send(r, http.MethodGet, "/scoring/leads/9/history?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp transport.HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LeadID != 9 || len(resp.Items) != 1 {
		t.Fatalf("unexpected history %+v", resp)
	}

	if rec := send(r, http.MethodGet, "/scoring/leads/9/history?limit=9999", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", rec.Code)
	}
}

func TestBulkRecalculateInline(t *testing.T) {
	r := newRouter([]string{"admin"})

	rec := send(r, http.MethodPost, "/scoring/recalculate", map[string]any{"lead_ids": []int64{1, 2, 3}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.RecalculateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != transport.RecalculateModeSync || resp.Result == nil || resp.Result.Processed != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
}
