// Package middleware provides cross-cutting adapters for the
// decision engine: Prometheus metrics and OpenTelemetry round
// tracing.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-conclave/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It exposes round throughput, submission rejection
// reasons, verdict distribution, and the information-sufficiency
// profile of closed decisions.
//
// Metrics register in the default registry, so construct at most one
// instance per process.
type PrometheusMetrics struct {
	roundsOpened      prometheus.Counter
	judgmentsReceived prometheus.Counter
	judgmentsRejected *prometheus.CounterVec
	decisions         *prometheus.CounterVec
	outcomesRecorded  *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	systemGauges      *prometheus.GaugeVec
	operationLatency  *prometheus.HistogramVec
	sufficiency       prometheus.Histogram
	valueDistribution *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and
// registers all required metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		roundsOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "conclave_rounds_opened_total",
				Help: "Total number of decision rounds opened.",
			},
		),
		judgmentsReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "conclave_judgments_received_total",
				Help: "Total number of accepted expert submissions.",
			},
		),
		judgmentsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conclave_judgments_rejected_total",
				Help: "Total number of rejected expert submissions by reason.",
			},
			[]string{"reason"},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conclave_decisions_total",
				Help: "Total number of closed decisions by verdict.",
			},
			[]string{"verdict"},
		),
		outcomesRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conclave_outcomes_recorded_total",
				Help: "Total number of real-world outcomes recorded by result.",
			},
			[]string{"outcome"},
		),
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conclave_events_total",
				Help: "Total count of engine events not covered by a dedicated metric.",
			},
			[]string{"event"},
		),
		systemGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conclave_system_state",
				Help: "Current system state values for the decision engine.",
			},
			[]string{"metric"},
		),
		operationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conclave_operation_duration_seconds",
				Help:    "Execution time of decision engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sufficiency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conclave_information_sufficiency",
				Help:    "Information sufficiency of closed decisions, 0 to 1.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		valueDistribution: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conclave_value_distribution",
				Help:    "Distribution of engine values not covered by a dedicated histogram.",
				Buckets: prometheus.LinearBuckets(0, 0.5, 11),
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by
// recording execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	_ map[string]string,
) {
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by
// incrementing Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "rounds_opened_total":
		pm.roundsOpened.Add(value)
	case "judgments_received_total":
		pm.judgmentsReceived.Add(value)
	case "judgments_rejected_total":
		pm.judgmentsRejected.WithLabelValues(labelOr(labels, "reason", "other")).Add(value)
	case "decisions_total":
		pm.decisions.WithLabelValues(labelOr(labels, "verdict", "unknown")).Add(value)
	case "outcomes_recorded_total":
		pm.outcomesRecorded.WithLabelValues(labelOr(labels, "outcome", "unknown")).Add(value)
	default:
		pm.eventsTotal.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by
// recording values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, _ map[string]string,
) {
	switch metric {
	case "information_sufficiency":
		pm.sufficiency.Observe(value)
	default:
		pm.valueDistribution.WithLabelValues(metric).Observe(value)
	}
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
