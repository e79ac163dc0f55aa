package sched

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/config"
	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
	"streamboost-dashboard/internal/domain/ports/repository"
	"streamboost-dashboard/internal/usecase"
)

// ViewRegistry owns every open view of the process and closes views nobody
// has polled for a while.
type ViewRegistry struct {
	mu    sync.RWMutex
	views map[string]*ViewSession

	orders   repository.OrderRepository
	pool     TaskSubmitter
	locker   adapter.Locker
	notifier adapter.Notifier
	cfg      config.ViewsConfig
	base     *zerolog.Logger
	log      *zerolog.Logger

	// ticks is handed to every session when set (tests).
	ticks <-chan time.Time
	ctx   context.Context
	stop  context.CancelFunc
}

func NewViewRegistry(orders repository.OrderRepository, pool TaskSubmitter, locker adapter.Locker, notifier adapter.Notifier, cfg config.ViewsConfig, logger *zerolog.Logger) *ViewRegistry {
	l := logger.With().Str("component", "ViewRegistry").Logger()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.JanitorEvery <= 0 {
		cfg.JanitorEvery = 30 * time.Second
	}
	ctx, stop := context.WithCancel(context.Background())
	return &ViewRegistry{
		views:    map[string]*ViewSession{},
		orders:   orders,
		pool:     pool,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
		base:     logger,
		log:      &l,
		ctx:      ctx,
		stop:     stop,
	}
}

// Open creates a view for viewer, loads its active orders and starts the
// countdown loop. A failed initial load still opens the view, with the error
// posted as a notice, so the viewer can refresh.
func (r *ViewRegistry) Open(ctx context.Context, viewer model.Viewer) (*ViewSession, error) {
	if viewer.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if r.ctx.Err() != nil {
		return nil, domain.ErrViewClosed
	}
	id := ulid.MustNew(ulid.Now(), rand.Reader).String()

	tracker := usecase.NewTracker(r.orders, viewer, r.base,
		usecase.WithMaxNotices(r.cfg.MaxNotices),
		usecase.WithNoticeHook(r.forward),
	)
	lctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	if err := tracker.Load(lctx); err != nil {
		r.log.Warn().Err(err).Str("view_id", id).Msg("initial load failed")
	}
	cancel()

	s := NewViewSession(id, tracker, r.pool, r.locker, SessionOptions{
		TickInterval:   r.cfg.TickInterval,
		WriteTimeout:   r.cfg.WriteTimeout,
		CompletionLock: r.cfg.CompletionLock,
		Ticks:          r.ticks,
	}, r.base)

	// a published session is always started
	s.Start(r.ctx)
	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		s.Close()
		return nil, domain.ErrViewClosed
	}
	r.views[id] = s
	r.mu.Unlock()

	r.log.Info().Str("view_id", id).Str("user_id", viewer.UserID).Int("orders", len(s.Snapshot().Orders)).Msg("view opened")
	return s, nil
}

// Get returns the view only to the viewer that opened it.
func (r *ViewRegistry) Get(viewID string, viewer model.Viewer) (*ViewSession, error) {
	r.mu.RLock()
	s, ok := r.views[viewID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.Viewer().UserID != viewer.UserID {
		return nil, domain.ErrForbidden
	}
	return s, nil
}

// Close stops the view's loop and forgets it.
func (r *ViewRegistry) Close(viewID string, viewer model.Viewer) error {
	s, err := r.Get(viewID, viewer)
	if err != nil {
		return err
	}
	r.remove(viewID)
	s.Close()
	r.log.Info().Str("view_id", viewID).Msg("view closed")
	return nil
}

func (r *ViewRegistry) remove(viewID string) {
	r.mu.Lock()
	delete(r.views, viewID)
	r.mu.Unlock()
}

// Len is the number of open views.
func (r *ViewRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Run closes idle views every janitor period until ctx is done.
func (r *ViewRegistry) Run(ctx context.Context) error {
	r.log.Info().Msg("Starting view janitor")
	ticker := time.NewTicker(r.cfg.JanitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Stopping view janitor")
			return ctx.Err()
		case <-ticker.C:
			if n := r.CloseIdle(time.Now()); n > 0 {
				r.log.Info().Int("count", n).Msg("idle views closed")
			}
		}
	}
}

// CloseIdle closes views whose last activity is older than the idle timeout.
func (r *ViewRegistry) CloseIdle(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTimeout)
	var idle []*ViewSession
	r.mu.Lock()
	for id, s := range r.views {
		if s.IdleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()
	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

// Shutdown closes every view and refuses new ones.
func (r *ViewRegistry) Shutdown() {
	r.stop()
	r.mu.Lock()
	views := make([]*ViewSession, 0, len(r.views))
	for id, s := range r.views {
		views = append(views, s)
		delete(r.views, id)
	}
	r.mu.Unlock()
	for _, s := range views {
		s.Close()
	}
	r.log.Info().Int("count", len(views)).Msg("views shut down")
}

// forward relays tracker notices to the out-of-band notifier. It runs on a view
// loop, so delivery goes through the pool.
func (r *ViewRegistry) forward(userID string, n model.Notification) {
	if r.notifier == nil {
		return
	}
	err := r.pool.Submit(func(ctx context.Context) error {
		nctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
		defer cancel()
		return r.notifier.Notify(nctx, userID, n)
	})
	if err != nil {
		r.log.Debug().Err(err).Str("user_id", userID).Msg("notice not forwarded")
	}
}
