package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(viewsOpen, viewTicksTotal, viewLoadsTotal, ordersDueTotal, workerTasksDropped)
}

var (
	viewsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "views_open",
			Help: "Dashboard views with a running countdown loop.",
		},
	)

	viewTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "view_ticks_total",
			Help: "Countdown ticks processed across all views.",
		},
	)

	viewLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_loads_total",
			Help: "Active order loads by result.",
		},
		[]string{"result"}, // 'ok', 'failed'
	)

	ordersDueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_due_total",
			Help: "Orders observed as expired by a view and scheduled for completion.",
		},
	)

	workerTasksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_tasks_dropped_total",
			Help: "Tasks rejected because the worker queue was full.",
		},
	)
)

func ViewOpened() { viewsOpen.Inc() }
func ViewClosed() { viewsOpen.Dec() }

func IncViewTick() { viewTicksTotal.Inc() }

func IncViewLoad(result string) { viewLoadsTotal.WithLabelValues(norm(result)).Inc() }

func AddOrdersDue(n int) { ordersDueTotal.Add(float64(n)) }

func IncWorkerDropped() { workerTasksDropped.Inc() }
