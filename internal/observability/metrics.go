// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesTotal       *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	LiquidationsTotal *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	CurrentCycleID    prometheus.Gauge

	// Transaction metrics
	TransactionsSubmitted *prometheus.CounterVec
	TransactionSize       prometheus.Histogram
	ConfirmationLatency   *prometheus.HistogramVec

	// Monitor metrics
	EventsClassified *prometheus.CounterVec
	StaleEvents      prometheus.Counter
	DuplicateEvents  prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Profit metrics
	LastProfitLamports       prometheus.Gauge
	CumulativeProfitLamports prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastCycleCompleted prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "pump_cycle_bot"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "completed_total",
			Help:      "Total number of finished cycles by outcome",
		}, []string{"outcome"}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "state_transitions_total",
			Help:      "Total number of entries into each cycle state",
		}, []string{"state"}),
		LiquidationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "liquidations_total",
			Help:      "Total number of liquidations by trigger reason",
		}, []string{"reason"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall time of a full cycle",
			Buckets:   []float64{5, 10, 15, 30, 60, 120, 300, 600},
		}),
		CurrentCycleID: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "current_id",
			Help:      "Id of the cycle in progress",
		}),

		TransactionsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submitted_total",
			Help:      "Total number of transaction submissions by label and result",
		}, []string{"label", "result"}),
		TransactionSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "size_bytes",
			Help:      "Serialized transaction size",
			Buckets:   []float64{256, 512, 768, 1024, 1108, 1232},
		}),
		ConfirmationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "confirmation_seconds",
			Help:      "Time from send to observed confirmation",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"label"}),

		EventsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_classified_total",
			Help:      "Total number of activity records classified, by outcome",
		}, []string{"classification"}),
		StaleEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "stale_events_total",
			Help:      "Purchases classified but not delivered because they were too old",
		}),
		DuplicateEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "duplicate_events_total",
			Help:      "Activity records skipped because the signature was already seen",
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Total number of failed RPC calls",
		}, []string{"method"}),

		LastProfitLamports: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_profit_lamports",
			Help:      "Profit of the most recently recorded cycle",
		}),
		CumulativeProfitLamports: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "total_profit_lamports",
			Help:      "Running total profit across all recorded cycles",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastCycleCompleted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_cycle_completed_timestamp",
			Help:      "Unix timestamp of the last cycle that reached cleanup",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordStateTransition counts an entry into state.
func RecordStateTransition(state string) {
	DefaultMetrics.StateTransitions.WithLabelValues(state).Inc()
}

// SetCurrentCycle updates the cycle in progress.
func SetCurrentCycle(id uint64) {
	DefaultMetrics.CurrentCycleID.Set(float64(id))
}

// RecordCycle records a finished cycle.
func RecordCycle(outcome string, d time.Duration) {
	DefaultMetrics.CyclesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.CycleDuration.Observe(d.Seconds())
	DefaultMetrics.LastCycleCompleted.SetToCurrentTime()
}

// RecordLiquidation counts a liquidation by its trigger.
func RecordLiquidation(reason string) {
	DefaultMetrics.LiquidationsTotal.WithLabelValues(reason).Inc()
}

// RecordSubmission records one submit attempt outcome.
func RecordSubmission(label, result string) {
	DefaultMetrics.TransactionsSubmitted.WithLabelValues(label, result).Inc()
}

// RecordTransactionSize observes a serialized transaction size.
func RecordTransactionSize(bytes int) {
	DefaultMetrics.TransactionSize.Observe(float64(bytes))
}

// RecordConfirmation observes the send-to-confirmation latency.
func RecordConfirmation(label string, d time.Duration) {
	DefaultMetrics.ConfirmationLatency.WithLabelValues(label).Observe(d.Seconds())
}

// RecordClassification counts a classified activity record.
func RecordClassification(classification string) {
	DefaultMetrics.EventsClassified.WithLabelValues(classification).Inc()
}

// RecordStaleEvent counts a purchase dropped for age.
func RecordStaleEvent() {
	DefaultMetrics.StaleEvents.Inc()
}

// RecordDuplicateEvent counts a signature skipped by deduplication.
func RecordDuplicateEvent() {
	DefaultMetrics.DuplicateEvents.Inc()
}

// RecordRPCLatency records RPC call latency. It matches solana.LatencyObserver.
func RecordRPCLatency(method string, d time.Duration, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// SetProfit updates the ledger gauges.
func SetProfit(last, total int64) {
	DefaultMetrics.LastProfitLamports.Set(float64(last))
	DefaultMetrics.CumulativeProfitLamports.Set(float64(total))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
