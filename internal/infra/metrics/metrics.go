// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		orderTransitionsTotal,
		statusWriteLatency,
		checkoutsTotal,
		balanceTopUpsTotal,
	)
}

var (
	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Status writes issued for orders, by target status and outcome.",
		},
		[]string{"status", "outcome"}, // outcome: 'ok', 'terminal', 'failed', 'locked'
	)

	statusWriteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_status_write_seconds",
			Help:    "Latency of order status writes.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout attempts by result.",
		},
		[]string{"result"}, // 'ok', 'insufficient_balance', 'failed'
	)

	balanceTopUpsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balance_top_ups_total",
			Help: "Balance top-ups applied by staff.",
		},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Order helpers --------

func IncOrderTransition(status, outcome string) {
	orderTransitionsTotal.WithLabelValues(norm(status), norm(outcome)).Inc()
}

func ObserveStatusWrite(status string, d time.Duration) {
	statusWriteLatency.WithLabelValues(norm(status)).Observe(d.Seconds())
}

func IncCheckout(result string) {
	checkoutsTotal.WithLabelValues(norm(result)).Inc()
}

func IncTopUp() { balanceTopUpsTotal.Inc() }
