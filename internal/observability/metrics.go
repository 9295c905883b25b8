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
	// Detection metrics
	SignalsDetected *prometheus.CounterVec
	EntriesSkipped  *prometheus.CounterVec

	// Execution metrics
	OrdersPlaced   *prometheus.CounterVec
	OrdersFilled   *prometheus.CounterVec
	OrdersCanceled *prometheus.CounterVec
	LateFills      prometheus.Counter
	FillSlippage   prometheus.Histogram
	RestingOrders  prometheus.Gauge

	// Position metrics
	OpenPositions  *prometheus.GaugeVec
	PositionsClose *prometheus.CounterVec
	RealizedPnL    *prometheus.CounterVec
	DailyPnL       prometheus.Gauge
	Balance        prometheus.Gauge

	// Gateway metrics
	APICallLatency *prometheus.HistogramVec
	APIErrors      *prometheus.CounterVec
	RateLimited    prometheus.Counter

	// Storage metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	LastCycle     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kalshi_trader"
	}

	return &Metrics{
		// Detection metrics
		SignalsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "signals_total",
			Help:      "Total number of signals detected by kind",
		}, []string{"kind"}),
		EntriesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "entries_skipped_total",
			Help:      "Total number of signals not entered by kind and reason",
		}, []string{"kind", "reason"}),

		// Execution metrics
		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_placed_total",
			Help:      "Total number of orders placed by action",
		}, []string{"action"}),
		OrdersFilled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_filled_total",
			Help:      "Total number of orders with an accepted fill by action",
		}, []string{"action"}),
		OrdersCanceled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_canceled_total",
			Help:      "Total number of cancel requests by outcome",
		}, []string{"outcome"}),
		LateFills: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "late_fills_total",
			Help:      "Total number of fills observed after a cancel request",
		}),
		FillSlippage: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "fill_slippage_pct",
			Help:      "Slippage of accepted fills against the signal target, in percent",
			Buckets:   []float64{0, 1, 2.5, 5, 7.5, 10, 15, 25},
		}),
		RestingOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "resting_orders",
			Help:      "Current number of resting entry orders",
		}),

		// Position metrics
		OpenPositions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Current number of open positions by kind",
		}, []string{"kind"}),
		PositionsClose: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total number of closed positions by kind and status",
		}, []string{"kind", "status"}),
		RealizedPnL: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "realized_pnl_cents_total",
			Help:      "Realized P&L in cents by kind and sign",
		}, []string{"kind", "sign"}),
		DailyPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "daily_pnl_cents",
			Help:      "Realized P&L for the current UTC day in cents",
		}),
		Balance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "balance_cents",
			Help:      "Last observed cash balance in cents",
		}),

		// Gateway metrics
		APICallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_latency_seconds",
			Help:      "Exchange API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		APIErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Total number of exchange API errors by method",
		}, []string{"method"}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rate_limited_total",
			Help:      "Total number of rate limited responses",
		}),

		// Storage metrics
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

		// Cycle metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycles_total",
			Help:      "Total number of scan cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycle_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful scan cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSignal increments the signal counter.
func RecordSignal(kind string) {
	DefaultMetrics.SignalsDetected.WithLabelValues(kind).Inc()
}

// RecordSkip records a signal that was not entered.
func RecordSkip(kind, reason string) {
	DefaultMetrics.EntriesSkipped.WithLabelValues(kind, reason).Inc()
}

// RecordOrderPlaced increments the placed orders counter.
func RecordOrderPlaced(action string) {
	DefaultMetrics.OrdersPlaced.WithLabelValues(action).Inc()
}

// RecordFill records an accepted fill and its slippage.
func RecordFill(action string, slippagePct float64) {
	DefaultMetrics.OrdersFilled.WithLabelValues(action).Inc()
	DefaultMetrics.FillSlippage.Observe(slippagePct)
}

// RecordCancel records a cancel outcome: confirmed, unconfirmed or failed.
func RecordCancel(outcome string) {
	DefaultMetrics.OrdersCanceled.WithLabelValues(outcome).Inc()
}

// RecordLateFill increments the late fill counter.
func RecordLateFill() {
	DefaultMetrics.LateFills.Inc()
}

// SetRestingOrders updates the resting orders gauge.
func SetRestingOrders(n int) {
	DefaultMetrics.RestingOrders.Set(float64(n))
}

// SetOpenPositions updates the open positions gauge for a kind.
func SetOpenPositions(kind string, n int) {
	DefaultMetrics.OpenPositions.WithLabelValues(kind).Set(float64(n))
}

// RecordClose records a closed position and its realized P&L in cents.
func RecordClose(kind, status string, pnlCents int64) {
	DefaultMetrics.PositionsClose.WithLabelValues(kind, status).Inc()
	switch {
	case pnlCents > 0:
		DefaultMetrics.RealizedPnL.WithLabelValues(kind, "profit").Add(float64(pnlCents))
	case pnlCents < 0:
		DefaultMetrics.RealizedPnL.WithLabelValues(kind, "loss").Add(float64(-pnlCents))
	}
}

// SetDailyPnL updates the daily P&L gauge.
func SetDailyPnL(cents int64) {
	DefaultMetrics.DailyPnL.Set(float64(cents))
}

// SetBalance updates the balance gauge.
func SetBalance(cents int64) {
	DefaultMetrics.Balance.Set(float64(cents))
}

// RecordAPICall records exchange API call latency and errors.
func RecordAPICall(method string, seconds float64, err error) {
	DefaultMetrics.APICallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.APIErrors.WithLabelValues(method).Inc()
	}
}

// RecordRateLimited increments the rate limited counter.
func RecordRateLimited() {
	DefaultMetrics.RateLimited.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordCycle records a scan cycle.
func RecordCycle(status string, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
	if status == "ok" {
		DefaultMetrics.LastCycle.Set(float64(finishedUnix))
	}
}
