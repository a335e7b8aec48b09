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
	// Escrow metrics
	SwapsInitiated    prometheus.Counter
	SwapsCompleted    prometheus.Counter
	SwapsExpired      prometheus.Counter
	DeadlineExtended  prometheus.Counter
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	WSSubscribers   prometheus.Gauge
	EventsBroadcast prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Ledger metrics
	LedgerMoves      *prometheus.CounterVec
	LedgerMoveErrors *prometheus.CounterVec

	// Health metrics
	PendingSwaps prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_swap_escrow"
	}

	return &Metrics{
		// Escrow metrics
		SwapsInitiated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "swaps_initiated_total",
			Help:      "Total number of swaps initiated",
		}),
		SwapsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "swaps_completed_total",
			Help:      "Total number of swaps settled by approval",
		}),
		SwapsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "swaps_expired_total",
			Help:      "Total number of swaps refunded by expiry",
		}),
		DeadlineExtended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "deadline_extensions_total",
			Help:      "Total number of deadline extensions applied",
		}),
		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "operation_errors_total",
			Help:      "Total number of rejected operations by reason",
		}, []string{"operation", "reason"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "operation_duration_seconds",
			Help:      "Escrow operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_subscribers",
			Help:      "Current number of websocket event feed subscribers",
		}),
		EventsBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "events_broadcast_total",
			Help:      "Total number of swap events broadcast to subscribers",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Ledger metrics
		LedgerMoves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "moves_total",
			Help:      "Total number of ledger transfers by mint",
		}, []string{"mint"}),
		LedgerMoveErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "move_errors_total",
			Help:      "Total number of failed ledger transfers by reason",
		}, []string{"reason"}),

		// Health metrics
		PendingSwaps: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "pending_swaps",
			Help:      "Current number of swaps in pending state",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSwapInitiated increments the swaps initiated counter.
func RecordSwapInitiated() {
	DefaultMetrics.SwapsInitiated.Inc()
	DefaultMetrics.PendingSwaps.Inc()
}

// RecordSwapCompleted increments the swaps completed counter.
func RecordSwapCompleted() {
	DefaultMetrics.SwapsCompleted.Inc()
	DefaultMetrics.PendingSwaps.Dec()
}

// RecordSwapExpired increments the swaps expired counter.
func RecordSwapExpired() {
	DefaultMetrics.SwapsExpired.Inc()
	DefaultMetrics.PendingSwaps.Dec()
}

// RecordDeadlineExtended increments the deadline extensions counter.
func RecordDeadlineExtended() {
	DefaultMetrics.DeadlineExtended.Inc()
}

// RecordOperationError records a rejected escrow operation.
func RecordOperationError(operation, reason string) {
	DefaultMetrics.OperationErrors.WithLabelValues(operation, reason).Inc()
}

// RecordOperationDuration records how long an escrow operation took.
func RecordOperationDuration(operation string, seconds float64) {
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, status string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// RecordEventBroadcast increments the events broadcast counter.
func RecordEventBroadcast() {
	DefaultMetrics.EventsBroadcast.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordLedgerMove records a ledger transfer.
func RecordLedgerMove(mint string, err error, reason string) {
	if err != nil {
		DefaultMetrics.LedgerMoveErrors.WithLabelValues(reason).Inc()
		return
	}
	DefaultMetrics.LedgerMoves.WithLabelValues(mint).Inc()
}
