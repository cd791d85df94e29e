package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRule("new_lead", "success")
	m.RecordAction("send_email", "failed", time.Second)
	m.RecordAssignment("round_robin")
	m.RecordRecalculation("changed")
}

func TestRecordRuleCounts(t *testing.T) {
	m := New(nil)
	m.RecordRule("new_lead", "success")
	m.RecordRule("new_lead", "success")
	m.RecordRule("new_lead", "skipped")

	if got := testutil.ToFloat64(m.RuleEvaluations.WithLabelValues("new_lead", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
}

func TestHandlerExposesMiddlewareMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(nil)
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",path="/ping",status="200"} 1`) {
		t.Fatalf("expected ping counter in output, got:\n%s", rec.Body.String())
	}
}
