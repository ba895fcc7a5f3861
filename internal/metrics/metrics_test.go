package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.AnswerGraded("mcq", "correct")
	m.AnswerGraded("mcq", "correct")
	m.AnswerGraded("essay", "pending")
	m.AttemptTransition("submitted")
	m.MasteryUpdated("correct", 42)
	m.Recommendation("review")
	m.ReviewDropped()
	m.ObserveLLMCall("answer-review", "mock", 300*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.answersGraded.WithLabelValues("mcq", "correct")); got != 2 {
		t.Errorf("answers graded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reviewDropped); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.llmRequests.WithLabelValues("answer-review", "mock", "error")); got != 1 {
		t.Errorf("llm errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.masteryLevel); got != 1 {
		t.Errorf("mastery level series = %d, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AnswerGraded("mcq", "correct")
	m.AttemptTransition("graded")
	m.MasteryUpdated("partial", 10)
	m.Recommendation("advance")
	m.ReviewDropped()
	m.ObserveLLMCall("p", "m", time.Second, nil)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/v1/attempts/:attemptID", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"a1", "a2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+id, nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/attempts/:attemptID", "204")); got != 2 {
		t.Errorf("route requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "gradewise_http_requests_total") {
		t.Errorf("exposition missing http counter:\n%s", body)
	}
}
