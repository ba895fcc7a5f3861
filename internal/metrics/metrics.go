// Package metrics exposes gradewise Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gradewise"

type Metrics struct {
	registry *prometheus.Registry

	answersGraded      *prometheus.CounterVec
	attemptTransitions *prometheus.CounterVec
	masteryUpdates     *prometheus.CounterVec
	masteryLevel       prometheus.Histogram
	recommendations    *prometheus.CounterVec
	reviewDropped      prometheus.Counter
	llmRequests        *prometheus.CounterVec
	llmDuration        *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		answersGraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_graded_total",
			Help:      "Answers graded, by question kind and result.",
		}, []string{"kind", "result"}),
		attemptTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_transitions_total",
			Help:      "Quiz attempt status transitions.",
		}, []string{"status"}),
		masteryUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mastery_updates_total",
			Help:      "Mastery record updates, by interaction outcome.",
		}, []string{"outcome"}),
		masteryLevel: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mastery_level",
			Help:      "Mastery level after each update.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendations issued, by type.",
		}, []string{"type"}),
		reviewDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_queue_dropped_total",
			Help:      "Review requests dropped on a full queue and left for manual review.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM provider calls, by purpose, model and result.",
		}, []string{"purpose", "model", "result"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM provider call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"purpose"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5},
		}, []string{"method", "endpoint"}),
	}
	m.registry.MustRegister(
		m.answersGraded,
		m.attemptTransitions,
		m.masteryUpdates,
		m.masteryLevel,
		m.recommendations,
		m.reviewDropped,
		m.llmRequests,
		m.llmDuration,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AnswerGraded counts one graded answer. result is correct, partial,
// incorrect, pending or error.
func (m *Metrics) AnswerGraded(kind, result string) {
	if m == nil {
		return
	}
	m.answersGraded.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) AttemptTransition(status string) {
	if m == nil {
		return
	}
	m.attemptTransitions.WithLabelValues(status).Inc()
}

// MasteryUpdated counts an update and observes the resulting level.
func (m *Metrics) MasteryUpdated(outcome string, level float64) {
	if m == nil {
		return
	}
	m.masteryUpdates.WithLabelValues(outcome).Inc()
	m.masteryLevel.Observe(level)
}

func (m *Metrics) Recommendation(kind string) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReviewDropped() {
	if m == nil {
		return
	}
	m.reviewDropped.Inc()
}

// ObserveLLMCall matches llm.CallObserver.
func (m *Metrics) ObserveLLMCall(purpose, model string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.llmRequests.WithLabelValues(purpose, model, result).Inc()
	m.llmDuration.WithLabelValues(purpose).Observe(latency.Seconds())
}

// Middleware records every request against its route template, so
// /attempts/abc and /attempts/def share a series.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
