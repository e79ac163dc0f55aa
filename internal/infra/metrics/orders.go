package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"streamboost-dashboard/internal/domain/model"
)

func init() { register(ordersTotal) }

var ordersTotal = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "orders_total",
		Help: "Current number of orders by status.",
	},
	[]string{"status"}, // 'pending', 'active', 'completed', 'cancelled'
)

func SetOrdersTotal(counts map[model.OrderStatus]int) {
	statuses := []model.OrderStatus{
		model.OrderStatusPending,
		model.OrderStatusActive,
		model.OrderStatusCompleted,
		model.OrderStatusCancelled,
	}
	for _, s := range statuses {
		ordersTotal.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
