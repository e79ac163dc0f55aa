// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"streamboost-dashboard/internal/config"
	"streamboost-dashboard/internal/domain/ports/adapter"
	tele "streamboost-dashboard/internal/infra/adapters/telegram"
	"streamboost-dashboard/internal/infra/adapters/twitch"
	"streamboost-dashboard/internal/infra/api"
	pg "streamboost-dashboard/internal/infra/db/postgres"
	"streamboost-dashboard/internal/infra/logging"
	"streamboost-dashboard/internal/infra/metrics"
	red "streamboost-dashboard/internal/infra/redis"
	"streamboost-dashboard/internal/infra/sched"
	"streamboost-dashboard/internal/infra/worker"
	"streamboost-dashboard/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	orderRepo := pg.NewOrderRepo(pool)
	profileRepo := pg.NewProfileRepo(pool)
	balanceRepo := pg.NewBalanceRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Notifications ----
	var notifier adapter.Notifier = tele.NewLogNotifier(logger)
	if cfg.Telegram.Enabled {
		bot, err := tele.NewBotNotifier(&cfg.Telegram, profileRepo, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		notifier = bot
	}

	// ---- Stream checks ----
	checker := red.NewStreamStatusCache(twitch.NewHelixChecker(&cfg.Twitch, logger), redisClient, cfg.Twitch.CacheTTL, logger)

	// ---- Use cases ----
	orderUC := usecase.NewOrderUseCase(orderRepo, profileRepo, balanceRepo, txManager, logger)
	streamUC := usecase.NewStreamUseCase(checker, logger)

	// ---- Views ----
	workers := worker.NewPool(cfg.Views.Workers, logger)
	workers.Start(ctx)
	registry := sched.NewViewRegistry(orderRepo, workers, locker, notifier, cfg.Views, logger)
	go func() {
		if err := registry.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("view janitor stopped")
		}
	}()

	stats := sched.NewStatsWorker(cfg.Views.JanitorEvery, orderRepo, logger,
		func() { metrics.ObserveDBPool(pool.Stat()) },
		func() { metrics.ObserveRedisPool(redisClient.PoolStats()) },
	)
	go func() { _ = stats.Run(ctx) }()

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Views:   registry,
		Orders:  orderUC,
		Streams: streamUC,
		Limiter: rateLimiter,
		Auth:    api.NewAuthManager(cfg.Auth),
		Health: map[string]api.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisClient.Ping,
		},
	}, cfg, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTP.Port), Handler: srv.Routes()}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	// views first so in-flight completions still have workers to run on
	registry.Shutdown()
	cancel()
	workers.Stop()
	logger.Info().Msg("bye")
}
