package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	scoringFallback prometheus.Counter
	outboxPublished prometheus.Counter
	outboxFailed    prometheus.Counter
	outboxBatch     prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "underwriting_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_decisions_total",
			Help: "Underwriting decisions by outcome.",
		}, []string{"decision"}),
		scoringFallback: promauto.NewCounter(prometheus.CounterOpts{
			Name: "underwriting_scoring_fallback_total",
			Help: "Scoring calls that fell back to the internal adapter.",
		}),
		outboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "underwriting_outbox_published_total",
			Help: "Outbox events delivered to the sink.",
		}),
		outboxFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "underwriting_outbox_publish_failures_total",
			Help: "Outbox batches rolled back after a sink failure.",
		}),
		outboxBatch: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "underwriting_outbox_batch_duration_seconds",
			Help:    "Outbox publish cycle duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordDecision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordScoringFallback() {
	if m == nil {
		return
	}
	m.scoringFallback.Inc()
}

func (m *Metrics) RecordOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(float64(n))
}

func (m *Metrics) RecordOutboxFailure() {
	if m == nil {
		return
	}
	m.outboxFailed.Inc()
}

func (m *Metrics) ObserveOutboxBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.outboxBatch.Observe(d.Seconds())
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
