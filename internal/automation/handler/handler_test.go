package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lead_automation_backend/internal/automation/assignment"
	"lead_automation_backend/internal/automation/dispatcher"
	"lead_automation_backend/internal/automation/domain"
	"lead_automation_backend/internal/automation/service"
	"lead_automation_backend/internal/automation/transport"
	"lead_automation_backend/internal/events"
	"lead_automation_backend/platform/apperr"
	"lead_automation_backend/platform/httpkit"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type memoryRepo struct {
	rules map[int64]domain.Rule
}

func (r *memoryRepo) CreateRule(_ context.Context, rule domain.Rule) (domain.Rule, error) {
	rule.ID = int64(len(r.rules) + 1)
	r.rules[rule.ID] = rule
	return rule, nil
}

func (r *memoryRepo) GetRule(_ context.Context, id int64) (domain.Rule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return domain.Rule{}, apperr.NotFound("automation rule not found")
	}
	return rule, nil
}

func (r *memoryRepo) ListRules(context.Context, domain.RuleFilter) ([]domain.Rule, error) {
	out := make([]domain.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (r *memoryRepo) UpdateRule(_ context.Context, rule domain.Rule) (domain.Rule, error) {
	r.rules[rule.ID] = rule
	return rule, nil
}

func (r *memoryRepo) SetRuleActive(ctx context.Context, id int64, active bool) (domain.Rule, error) {
	rule, err := r.GetRule(ctx, id)
	if err != nil {
		return domain.Rule{}, err
	}
	rule.IsActive = active
	r.rules[id] = rule
	return rule, nil
}

func (r *memoryRepo) DeleteRule(ctx context.Context, id int64) error {
	if _, err := r.GetRule(ctx, id); err != nil {
		return err
	}
	delete(r.rules, id)
	return nil
}

func (r *memoryRepo) ListLogs(context.Context, domain.LogFilter) ([]domain.LogEntry, int, error) {
	return []domain.LogEntry{}, 0, nil
}

type noopDispatcher struct{}

func (noopDispatcher) DispatchLead(context.Context, string, int64, map[string]any) (dispatcher.Summary, error) {
	return dispatcher.Summary{}, nil
}

func (noopDispatcher) Test(_ context.Context, ruleID, leadID int64) (dispatcher.TestResult, error) {
	return dispatcher.TestResult{RuleID: ruleID, LeadID: leadID, Matched: true}, nil
}

func newRouter(t *testing.T, roles []string) (*gin.Engine, *memoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &memoryRepo{rules: map[int64]domain.Rule{}}
	log := logger.Discard()
	svc := service.New(repo, noopDispatcher{}, assignment.NewMemoryStore(), events.NewInMemoryBus(log), nil, log)
	val := validator.New()
	transport.RegisterValidations(val)
	h := New(svc, val)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, int64(7))
		c.Set(httpkit.ContextRolesKey, roles)
		c.Next()
	})
	group := r.Group("/api/v1/automation")
	h.RegisterRoutes(group)
	h.RegisterEventRoutes(group, nil)
	return r, repo
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
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

func validRuleBody() map[string]any {
	return map[string]any{
		"name":          "Assign NL leads",
		"trigger_event": "new_lead",
		"conditions":    []map[string]any{{"field": "country_id", "operator": "equals", "value": 5}},
		"actions": []map[string]any{{
			"type":   "assign_round_robin",
			"config": map[string]any{"agent_ids": []int64{10, 11}},
		}},
	}
}

func TestCreateRuleReturnsCreated(t *testing.T) {
	r, repo := newRouter(t, []string{"admin"})

	rec := doJSON(r, http.MethodPost, "/api/v1/automation/rules", validRuleBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rule domain.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rule.ID != 1 || rule.Priority != 10 || !rule.IsActive {
		t.Fatalf("unexpected rule %+v", rule)
	}
	if rule.CreatedBy == nil || *rule.CreatedBy != 7 {
		t.Fatalf("expected created_by 7, got %v", rule.CreatedBy)
	}
	if len(repo.rules) != 1 {
		t.Fatalf("expected one stored rule, got %d", len(repo.rules))
	}
}

func TestCreateRuleRequiresAdmin(t *testing.T) {
	r, _ := newRouter(t, []string{"agent"})

	rec := doJSON(r, http.MethodPost, "/api/v1/automation/rules", validRuleBody())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateRuleRejectsUnknownActionType(t *testing.T) {
	r, _ := newRouter(t, []string{"admin"})
	body := validRuleBody()
	body["actions"] = []map[string]any{{"type": "send_fax"}}

	rec := doJSON(r, http.MethodPost, "/api/v1/automation/rules", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateRuleRejectsMalformedJSON(t *testing.T) {
	r, _ := newRouter(t, []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/automation/rules", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetRuleNotFoundAndBadID(t *testing.T) {
	r, _ := newRouter(t, nil)

	if rec := doJSON(r, http.MethodGet, "/api/v1/automation/rules/99", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodGet, "/api/v1/automation/rules/abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestToggleAndDeleteRule(t *testing.T) {
	r, repo := newRouter(t, []string{"admin"})
	if rec := doJSON(r, http.MethodPost, "/api/v1/automation/rules", validRuleBody()); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	rec := doJSON(r, http.MethodPatch, "/api/v1/automation/rules/1/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.rules[1].IsActive {
		t.Fatal("expected rule to be deactivated")
	}

	if rec := doJSON(r, http.MethodDelete, "/api/v1/automation/rules/1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodDelete, "/api/v1/automation/rules/1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestTestRuleDryRun(t *testing.T) {
	r, _ := newRouter(t, nil)

	rec := doJSON(r, http.MethodPost, "/api/v1/automation/rules/3/test", map[string]any{"lead_id": 42})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result dispatcher.TestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.RuleID != 3 || result.LeadID != 42 || !result.Matched {
		t.Fatalf("unexpected dry run result %+v", result)
	}
}

func TestListLogsRejectsBadRunID(t *testing.T) {
	r, _ := newRouter(t, nil)

	if rec := doJSON(r, http.MethodGet, "/api/v1/automation/logs?run_id=nope", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodGet, "/api/v1/automation/logs?status=success", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIngestEventAccepted(t *testing.T) {
	r, _ := newRouter(t, nil)

	rec := doJSON(r, http.MethodPost, "/api/v1/automation/events", map[string]any{"event": "new_lead", "lead_id": 5})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.IngestEventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted || resp.Mode != transport.IngestModePublished {
		t.Fatalf("unexpected ingest response %+v", resp)
	}

	if rec := doJSON(r, http.MethodPost, "/api/v1/automation/events", map[string]any{"event": "Bad Name", "lead_id": 5}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed trigger, got %d", rec.Code)
	}
}
