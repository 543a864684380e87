// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Check metrics
	ChecksTotal     *prometheus.CounterVec // labels: outcome
	AlertsTriggered prometheus.Counter
	CheckDuration   prometheus.Histogram

	// Payment metrics
	PaymentsTotal     prometheus.Counter
	PaymentAmount     prometheus.Histogram
	SettlementLatency prometheus.Histogram
	PaymentFailures   *prometheus.CounterVec // labels: reason
	Confirmations     *prometheus.CounterVec // labels: result

	// Scheduler metrics
	ActiveMonitors prometheus.Gauge
	TicksSkipped   prometheus.Counter // in-flight guard suppressed a tick

	// Store metrics
	ActivityStoreSize prometheus.Gauge
	InsightStoreSize  prometheus.Gauge

	// Collaborator metrics
	InsightsGenerated    prometheus.Counter
	NotificationFailures prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sentineld"
	}

	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "total",
			Help:      "Total number of check attempts by outcome",
		}, []string{"outcome"}),
		AlertsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "alerts_triggered_total",
			Help:      "Total number of threshold conditions fired",
		}),
		CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "duration_seconds",
			Help:      "Duration of one check attempt end to end",
			Buckets:   prometheus.DefBuckets,
		}),
		PaymentsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "total",
			Help:      "Total number of ledger transfers executed",
		}),
		PaymentAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "amount_tokens",
			Help:      "Per-check fee amounts in payment-token units",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005},
		}),
		SettlementLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "settlement_seconds",
			Help:      "Settlement latency of ledger transfers",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		PaymentFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "failures_total",
			Help:      "Total payment failures by reason",
		}, []string{"reason"}),
		Confirmations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "confirmations_total",
			Help:      "Settlement confirmations observed on the receipt stream by result",
		}, []string{"result"}),
		ActiveMonitors: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "active_monitors",
			Help:      "Number of sentinels currently scheduled",
		}),
		TicksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because a check was already in flight",
		}),
		ActivityStoreSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "activities",
			Help:      "Number of activities currently retained",
		}),
		InsightStoreSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "insights",
			Help:      "Number of insights currently retained",
		}),
		InsightsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "insights",
			Name:      "generated_total",
			Help:      "Total number of insight generations",
		}),
		NotificationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "failures_total",
			Help:      "Total notification delivery failures (non-fatal)",
		}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCheck records one completed check attempt.
func RecordCheck(outcome string, durationSeconds float64) {
	DefaultMetrics.ChecksTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.CheckDuration.Observe(durationSeconds)
}

// RecordAlert increments the alerts-triggered counter.
func RecordAlert() {
	DefaultMetrics.AlertsTriggered.Inc()
}

// RecordPayment records one executed fee transfer.
func RecordPayment(amount float64, settlementMs int64) {
	DefaultMetrics.PaymentsTotal.Inc()
	DefaultMetrics.PaymentAmount.Observe(amount)
	DefaultMetrics.SettlementLatency.Observe(float64(settlementMs) / 1000)
}

// RecordPaymentFailure records a payment failure by reason.
func RecordPaymentFailure(reason string) {
	DefaultMetrics.PaymentFailures.WithLabelValues(reason).Inc()
}

// RecordConfirmation records a settlement confirmation result.
func RecordConfirmation(result string) {
	DefaultMetrics.Confirmations.WithLabelValues(result).Inc()
}

// UpdateActiveMonitors sets the scheduled-sentinel gauge.
func UpdateActiveMonitors(n int) {
	DefaultMetrics.ActiveMonitors.Set(float64(n))
}

// RecordTickSkipped increments the in-flight-skip counter.
func RecordTickSkipped() {
	DefaultMetrics.TicksSkipped.Inc()
}

// RecordInsightGenerated increments the insight generation counter.
func RecordInsightGenerated() {
	DefaultMetrics.InsightsGenerated.Inc()
}

// RecordNotificationFailure increments the notification failure counter.
func RecordNotificationFailure() {
	DefaultMetrics.NotificationFailures.Inc()
}
