package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the prometheus metrics for the API.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	checksTotal   *prometheus.CounterVec
	ruleEvals     prometheus.Counter
	ruleFailures  prometheus.Counter
	rulesActive   prometheus.Gauge
	savedTotal    prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		httpRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		checksTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_checks_total",
			Help: "Total number of transaction checks by outcome",
		}, []string{"outcome"}),
		ruleEvals: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Total number of individual rule evaluations",
		}),
		ruleFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "rule_failures_total",
			Help: "Total number of rule evaluations that failed or errored",
		}),
		rulesActive: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "rules_active",
			Help: "Number of rules in the active rule set",
		}),
		savedTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "transactions_saved_total",
			Help: "Total number of transactions persisted",
		}),
	}
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCheck records a check outcome ("approved" or "rejected").
func (c *Collector) RecordCheck(outcome string) {
	c.checksTotal.WithLabelValues(outcome).Inc()
}

// RecordEvaluations records a batch of rule evaluations.
func (c *Collector) RecordEvaluations(evaluated, failed int) {
	c.ruleEvals.Add(float64(evaluated))
	c.ruleFailures.Add(float64(failed))
	c.rulesActive.Set(float64(evaluated))
}

// RecordSavedTransaction counts a persisted transaction.
func (c *Collector) RecordSavedTransaction() {
	c.savedTotal.Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
