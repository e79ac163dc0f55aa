package metrics

import (
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolConns, redisPoolConns, cacheRequestsTotal) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_conns",
			Help: "Postgres connection pool state.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use', 'max'
	)

	redisPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "redis_pool_conns",
			Help: "Redis connection pool state.",
		},
		[]string{"state"}, // 'total', 'idle', 'stale'
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Cache hits and misses per cache.",
		},
		[]string{"cache", "result"}, // e.g. cache="stream_status", result="hit"
	)
)

func ObserveDBPool(s *pgxpool.Stat) {
	if s == nil {
		return
	}
	dbPoolConns.WithLabelValues("total").Set(float64(s.TotalConns()))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.IdleConns()))
	dbPoolConns.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	dbPoolConns.WithLabelValues("max").Set(float64(s.MaxConns()))
}

func ObserveRedisPool(s *redis.PoolStats) {
	if s == nil {
		return
	}
	redisPoolConns.WithLabelValues("total").Set(float64(s.TotalConns))
	redisPoolConns.WithLabelValues("idle").Set(float64(s.IdleConns))
	redisPoolConns.WithLabelValues("stale").Set(float64(s.StaleConns))
}

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}
