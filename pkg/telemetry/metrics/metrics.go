// Package metrics provides Prometheus collectors for the costwise pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus collectors shared across the pipeline.
//
// Collectors are registered against an explicit registry so tests can
// construct independent Metrics instances without collisions.
type Metrics struct {
	// Enforcement
	checksTotal   *prometheus.CounterVec
	denialsTotal  *prometheus.CounterVec
	failOpenTotal prometheus.Counter
	checkDuration prometheus.Histogram

	// Cost recording
	costTotal      *prometheus.CounterVec
	costPerRequest *prometheus.HistogramVec
	spendUsage     *prometheus.GaugeVec

	// Alerting
	alertsTotal *prometheus.CounterVec

	// Event bus
	busDepth       *prometheus.GaugeVec
	busRetries     prometheus.Counter
	busDeadLetters prometheus.Counter
}

// New creates and registers the pipeline collectors with the given registry.
// Namespace is the metric name prefix (default "costwise").
func New(namespace string, registry *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "costwise"
	}

	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enforcement_checks_total",
				Help:      "Total number of admission checks performed",
			},
			[]string{"result"},
		),
		denialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enforcement_denials_total",
				Help:      "Total number of denied requests by scope kind and window",
			},
			[]string{"scope_kind", "window"},
		),
		failOpenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enforcement_failopen_total",
				Help:      "Total number of checks admitted under the fail-open policy",
			},
		),
		checkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "enforcement_check_duration_seconds",
				Help:      "Duration of admission checks in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_total",
				Help:      "Total recorded cost by provider and model",
			},
			[]string{"provider", "model"},
		),
		costPerRequest: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cost_per_request",
				Help:      "Cost distribution per request",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"provider", "model"},
		),
		spendUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_usage_percentage",
				Help:      "Current spend as a percentage of the limit (0-100+)",
			},
			[]string{"scope", "window"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_alerts_total",
				Help:      "Total budget threshold alerts emitted by severity",
			},
			[]string{"severity"},
		),
		busDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "events_queue_depth",
				Help:      "Current queued events per bus shard",
			},
			[]string{"shard"},
		),
		busRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_retries_total",
				Help:      "Total event delivery retries",
			},
		),
		busDeadLetters: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dead_letters_total",
				Help:      "Total events routed to the dead-letter sink",
			},
		),
	}

	registry.MustRegister(
		m.checksTotal,
		m.denialsTotal,
		m.failOpenTotal,
		m.checkDuration,
		m.costTotal,
		m.costPerRequest,
		m.spendUsage,
		m.alertsTotal,
		m.busDepth,
		m.busRetries,
		m.busDeadLetters,
	)

	return m
}

// RecordCheck records an admission check outcome and duration.
func (m *Metrics) RecordCheck(allowed bool, seconds float64) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.checksTotal.WithLabelValues(result).Inc()
	m.checkDuration.Observe(seconds)
}

// RecordDenial records a denied request.
func (m *Metrics) RecordDenial(scopeKind, window string) {
	m.denialsTotal.WithLabelValues(scopeKind, window).Inc()
}

// RecordFailOpen records a check admitted because spend data was unreachable.
func (m *Metrics) RecordFailOpen() {
	m.failOpenTotal.Inc()
}

// RecordCost records the cost of a completed request.
func (m *Metrics) RecordCost(provider, model string, cost float64) {
	m.costTotal.WithLabelValues(provider, model).Add(cost)
	m.costPerRequest.WithLabelValues(provider, model).Observe(cost)
}

// UpdateSpendUsage updates the spend-vs-limit gauge for a scope and
// window, as a percentage of the configured limit.
func (m *Metrics) UpdateSpendUsage(scopeKey, window string, percent float64) {
	m.spendUsage.WithLabelValues(scopeKey, window).Set(percent)
}

// RecordAlert records an emitted threshold alert.
func (m *Metrics) RecordAlert(severity string) {
	m.alertsTotal.WithLabelValues(severity).Inc()
}

// UpdateBusDepth updates the queued-event gauge for a shard.
func (m *Metrics) UpdateBusDepth(shard string, depth int) {
	m.busDepth.WithLabelValues(shard).Set(float64(depth))
}

// RecordBusRetry records an event delivery retry.
func (m *Metrics) RecordBusRetry() {
	m.busRetries.Inc()
}

// RecordDeadLetter records an event routed to the dead-letter sink.
func (m *Metrics) RecordDeadLetter() {
	m.busDeadLetters.Inc()
}
