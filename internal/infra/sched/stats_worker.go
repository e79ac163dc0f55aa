package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/domain/ports/repository"
	"streamboost-dashboard/internal/infra/metrics"
)

// StatsWorker periodically publishes order counts and connection pool gauges.
// It only observes: it never changes an order.
type StatsWorker struct {
	interval time.Duration
	orders   repository.OrderRepository
	probes   []func()
	log      *zerolog.Logger
}

// NewStatsWorker takes optional probes that push pool statistics into metrics.
func NewStatsWorker(interval time.Duration, orders repository.OrderRepository, logger *zerolog.Logger, probes ...func()) *StatsWorker {
	statsLog := logger.With().Str("component", "StatsWorker").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsWorker{
		interval: interval,
		orders:   orders,
		probes:   probes,
		log:      &statsLog,
	}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting stats worker")
	w.collect(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.collect(ctx)
		}
	}
}

func (w *StatsWorker) collect(ctx context.Context) {
	counts, err := w.orders.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		w.log.Error().Err(err).Msg("order count failed")
	} else {
		metrics.SetOrdersTotal(counts)
	}
	for _, p := range w.probes {
		p()
	}
}
