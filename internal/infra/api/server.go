package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/config"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
	"streamboost-dashboard/internal/infra/metrics"
	"streamboost-dashboard/internal/infra/sched"
	"streamboost-dashboard/internal/usecase"
)

// Views is the part of sched.ViewRegistry the handlers use.
type Views interface {
	Open(ctx context.Context, viewer model.Viewer) (*sched.ViewSession, error)
	Get(viewID string, viewer model.Viewer) (*sched.ViewSession, error)
	Close(viewID string, viewer model.Viewer) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	views   Views
	orders  usecase.OrderUseCase
	streams usecase.StreamUseCase
	limiter adapter.Limiter
	auth    *AuthManager
	rate    config.RateLimitConfig
	timeout time.Duration
	health  map[string]HealthCheck
	log     *zerolog.Logger
}

type Deps struct {
	Views   Views
	Orders  usecase.OrderUseCase
	Streams usecase.StreamUseCase
	Limiter adapter.Limiter // optional
	Auth    *AuthManager
	Health  map[string]HealthCheck
}

func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "APIServer").Logger()
	timeout := cfg.HTTP.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{
		views:   deps.Views,
		orders:  deps.Orders,
		streams: deps.Streams,
		limiter: deps.Limiter,
		auth:    deps.Auth,
		rate:    cfg.RateLimit,
		timeout: timeout,
		health:  deps.Health,
		log:     &l,
	}
}

// Routes builds the router with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Authenticate)

		r.Post("/views", s.handleOpenView)
		r.Route("/views/{viewID}", func(r chi.Router) {
			r.Get("/", s.handleGetView)
			r.Delete("/", s.handleCloseView)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/notifications/dismiss", s.handleDismiss)
			r.Post("/orders/{orderID}/{action}", s.handleOrderAction)
		})

		r.Get("/orders", s.handleHistory)
		r.Post("/orders/checkout", s.handleCheckout)
		r.Post("/orders/{orderID}/activate", s.handleActivate)

		r.Post("/profiles/{userID}/top-up", s.handleTopUp)
		r.Get("/profiles/{userID}/transactions", s.handleTransactions)

		r.Post("/streams/check", s.handleStreamCheck)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]string{}
	code := http.StatusOK
	for name, check := range s.health {
		if err := check(r.Context()); err != nil {
			out[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		out[name] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": http.StatusText(code), "checks": out})
}

func viewer(r *http.Request) model.Viewer {
	v, _ := ViewerFrom(r.Context())
	return v
}
