// Package metrics exposes the Prometheus collectors of the invoicing pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	SubmissionAttempts *prometheus.CounterVec
	AttemptDuration    *prometheus.HistogramVec
	StatusChecks       *prometheus.CounterVec
	DedupeHits         prometheus.Counter
	BreakerState       *prometheus.GaugeVec
	PipelineResults    *prometheus.CounterVec
	RenderFailures     prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		SubmissionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authority_submission_attempts_total",
			Help:      "Submission attempts sent to DIAN by outcome",
		}, []string{"outcome"}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authority_attempt_duration_seconds",
			Help:      "Duration of a single submission attempt",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"outcome"}),
		StatusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authority_status_checks_total",
			Help:      "GetStatus calls by outcome",
		}, []string{"outcome"}),
		DedupeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authority_dedupe_hits_total",
			Help:      "Submissions answered from the dedupe cache without contacting DIAN",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "authority_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		PipelineResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_pipeline_results_total",
			Help:      "Final invoice status after a send",
		}, []string{"status"}),
		RenderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_render_failures_total",
			Help:      "PDF renders that failed after acceptance",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.SubmissionAttempts,
		c.AttemptDuration,
		c.StatusChecks,
		c.DedupeHits,
		c.BreakerState,
		c.PipelineResults,
		c.RenderFailures,
		c.HTTPRequests,
		c.HTTPDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveAttempt(outcome string, d time.Duration) {
	if c == nil {
		return
	}

	c.SubmissionAttempts.WithLabelValues(outcome).Inc()
	c.AttemptDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) ObserveStatusCheck(outcome string) {
	if c == nil {
		return
	}

	c.StatusChecks.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveDedupeHit() {
	if c == nil {
		return
	}

	c.DedupeHits.Inc()
}

func (c *Collector) SetBreakerState(name string, state int) {
	if c == nil {
		return
	}

	c.BreakerState.WithLabelValues(name).Set(float64(state))
}

func (c *Collector) ObservePipeline(status string) {
	if c == nil {
		return
	}

	c.PipelineResults.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveRenderFailure() {
	if c == nil {
		return
	}

	c.RenderFailures.Inc()
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}

	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
