package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the API and the worker.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	httpDuration    *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	recurringFired  *prometheus.CounterVec
	alertsRaised    *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	batchDuration   prometheus.Histogram
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vantage_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		recurringFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_recurring_firings_total",
				Help: "Recurring template firings by outcome.",
			},
			[]string{"outcome"},
		),
		alertsRaised: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_budget_alerts_total",
				Help: "Budget alerts raised by type and severity.",
			},
			[]string{"type", "severity"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_events_published_total",
				Help: "Domain events published by routing key and status.",
			},
			[]string{"routing_key", "status"},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vantage_recurring_batch_duration_seconds",
				Help:    "Duration of due-processing batches.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Firing outcomes.
const (
	OutcomeFired       = "fired"
	OutcomeDeactivated = "deactivated"
	OutcomeConflict    = "conflict"
	OutcomeFailed      = "failed"
)

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRecurring counts one firing attempt by outcome.
func (m *Metrics) IncrRecurring(outcome string) {
	m.recurringFired.WithLabelValues(outcome).Inc()
}

// IncrAlert counts one persisted budget alert.
func (m *Metrics) IncrAlert(alertType, severity string) {
	m.alertsRaised.WithLabelValues(alertType, severity).Inc()
}

// IncrEvent counts one publish attempt.
func (m *Metrics) IncrEvent(routingKey string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.eventsPublished.WithLabelValues(routingKey, status).Inc()
}

// ObserveBatch records the duration of a due-processing batch.
func (m *Metrics) ObserveBatch(d time.Duration) {
	m.batchDuration.Observe(d.Seconds())
}

// RecurringSnapshot returns cumulative firing counts by outcome.
func (m *Metrics) RecurringSnapshot() map[string]float64 {
	out := make(map[string]float64, 4)
	for _, o := range []string{OutcomeFired, OutcomeDeactivated, OutcomeConflict, OutcomeFailed} {
		out[o] = getCounterValue(m.recurringFired, o)
	}
	return out
}

// CounterValue reads the current value of one labelled series; unknown
// metric names read as zero.
func (m *Metrics) CounterValue(name string, labels ...string) float64 {
	var cv *prometheus.CounterVec
	switch name {
	case "external_errors":
		cv = m.externalErrors
	case "cache_hits":
		cv = m.cacheHits
	case "cache_misses":
		cv = m.cacheMisses
	case "recurring_firings":
		cv = m.recurringFired
	case "budget_alerts":
		cv = m.alertsRaised
	case "events_published":
		cv = m.eventsPublished
	default:
		return 0
	}
	return getCounterValue(cv, labels...)
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
