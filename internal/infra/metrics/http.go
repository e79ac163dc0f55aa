package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, httpRequestDuration, streamChecksTotal) }

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	streamChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_checks_total",
			Help: "Stream liveness checks by result.",
		},
		[]string{"result"}, // 'live', 'offline', 'invalid', 'error'
	)
)

func ObserveHTTP(route, method string, code int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func IncStreamCheck(result string) { streamChecksTotal.WithLabelValues(norm(result)).Inc() }
