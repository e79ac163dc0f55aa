package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
	"streamboost-dashboard/internal/infra/metrics"
	"streamboost-dashboard/internal/infra/redis"
	"streamboost-dashboard/internal/infra/worker"
	"streamboost-dashboard/internal/usecase"
)

// TaskSubmitter runs store calls off the view loop.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdCancel
	cmdComplete
	cmdRefresh
	cmdDismiss
)

type command struct {
	kind    commandKind
	orderID string
	reply   chan error
}

// writeResult is a finished status write posted back to the loop. order holds
// the stored row: the written one, or the one read back after a lost race.
type writeResult struct {
	orderID string
	target  model.OrderStatus
	order   *model.Order
	err     error
	skipped bool // lost the completion lock, nothing was written
}

type writeKey struct {
	orderID string
	target  model.OrderStatus
}

type loadResult struct {
	orders []*model.Order
	err    error
}

// SessionOptions tunes one view loop.
type SessionOptions struct {
	TickInterval   time.Duration
	WriteTimeout   time.Duration
	CompletionLock time.Duration
	// Ticks replaces the interval ticker when set.
	Ticks <-chan time.Time
}

// ViewSession is the single cooperative loop behind one open dashboard view.
// Ticks and user actions are applied to the tracker on the loop goroutine only;
// store reads and writes run on the worker pool and report back to the loop.
type ViewSession struct {
	id      string
	viewer  model.Viewer
	tracker *usecase.Tracker
	pool    TaskSubmitter
	locker  adapter.Locker
	opts    SessionOptions
	log     *zerolog.Logger

	cmds    chan command
	writes  chan writeResult
	loads   chan loadResult
	waiting map[writeKey][]chan error // loop-owned: replies for in-flight writes
	refresh []chan error              // loop-owned: replies for the in-flight load

	lastSeen atomic.Int64

	mu      sync.Mutex // guards started, closed and cancel
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewViewSession(id string, tracker *usecase.Tracker, pool TaskSubmitter, locker adapter.Locker, opts SessionOptions, logger *zerolog.Logger) *ViewSession {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.CompletionLock <= 0 {
		opts.CompletionLock = 10 * time.Second
	}
	l := logger.With().Str("component", "ViewSession").Str("view_id", id).Logger()
	s := &ViewSession{
		id:      id,
		viewer:  tracker.Viewer(),
		tracker: tracker,
		pool:    pool,
		locker:  locker,
		opts:    opts,
		log:     &l,
		cmds:    make(chan command, 16),
		writes:  make(chan writeResult, 64),
		loads:   make(chan loadResult, 1),
		waiting: map[writeKey][]chan error{},
		done:    make(chan struct{}),
	}
	s.Touch()
	return s
}

func (s *ViewSession) ID() string           { return s.id }
func (s *ViewSession) Viewer() model.Viewer { return s.viewer }

// Snapshot is safe from any goroutine.
func (s *ViewSession) Snapshot() *model.Snapshot {
	s.Touch()
	return s.tracker.Snapshot()
}

// Touch records activity so the janitor keeps the view open.
func (s *ViewSession) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *ViewSession) IdleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Start runs the loop in the background. Calling it again, or after Close, has
// no effect.
func (s *ViewSession) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	metrics.ViewOpened()
	go s.loop(ctx)
}

// Close stops the loop and waits for it to exit. No tick fires after Close
// returns. Writes already handed to the pool still complete in the store.
// Close is safe to call concurrently with Start and more than once.
func (s *ViewSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		// never started: nothing will close done
		close(s.done)
		return
	}
	cancel()
	<-s.done
}

// Done is closed once the loop has exited.
func (s *ViewSession) Done() <-chan struct{} { return s.done }

func (s *ViewSession) loop(ctx context.Context) {
	ticks := s.opts.Ticks
	if ticks == nil {
		t := time.NewTicker(s.opts.TickInterval)
		defer t.Stop()
		ticks = t.C
	}
	defer func() {
		s.failWaiting(domain.ErrViewClosed)
		metrics.ViewClosed()
		close(s.done)
		s.log.Debug().Msg("view loop stopped")
	}()
	s.log.Debug().Msg("view loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.cmds:
			s.handle(ctx, c)
		case r := <-s.writes:
			s.settle(r)
		case r := <-s.loads:
			s.applyLoad(r)
		case <-ticks:
			// actions issued within the same second take precedence over expiry
			s.drain(ctx)
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx)
		}
	}
}

func (s *ViewSession) drain(ctx context.Context) {
	for {
		select {
		case c := <-s.cmds:
			s.handle(ctx, c)
		case r := <-s.writes:
			s.settle(r)
		case r := <-s.loads:
			s.applyLoad(r)
		default:
			return
		}
	}
}

func (s *ViewSession) tick(ctx context.Context) {
	metrics.IncViewTick()
	due := s.tracker.Tick()
	if len(due) == 0 {
		return
	}
	metrics.AddOrdersDue(len(due))
	for _, id := range due {
		s.log.Info().Str("order_id", id).Msg("order expired, completing")
		s.dispatchWrite(ctx, id, model.OrderStatusCompleted, true)
	}
}

func (s *ViewSession) handle(ctx context.Context, c command) {
	switch c.kind {
	case cmdPause:
		c.reply <- s.tracker.Pause(c.orderID)
	case cmdResume:
		c.reply <- s.tracker.Resume(c.orderID)
	case cmdDismiss:
		s.tracker.DismissNotices(c.orderID)
		c.reply <- nil
	case cmdCancel, cmdComplete:
		target := model.OrderStatusCancelled
		if c.kind == cmdComplete {
			target = model.OrderStatusCompleted
		}
		if !s.tracker.Snapshot().Tracked(c.orderID) {
			c.reply <- domain.ErrNotTracked
			return
		}
		key := writeKey{c.orderID, target}
		if !s.tracker.Begin(c.orderID, target) {
			if e, _ := s.tracker.Snapshot().Timer(c.orderID); e.Pending != target {
				// a cancellation is already on its way
				c.reply <- domain.ErrInvalidStatus
				return
			}
			// same write already in flight: answer with its outcome
			s.waiting[key] = append(s.waiting[key], c.reply)
			return
		}
		s.waiting[key] = append(s.waiting[key], c.reply)
		s.dispatchWrite(ctx, c.orderID, target, false)
	case cmdRefresh:
		s.refresh = append(s.refresh, c.reply)
		if len(s.refresh) > 1 {
			return
		}
		s.dispatchLoad(ctx)
	}
}

// dispatchWrite hands a begun transition to the pool. Automatic completions
// take a shared lock first so two open views of the same order do not both
// write it.
func (s *ViewSession) dispatchWrite(ctx context.Context, orderID string, target model.OrderStatus, automatic bool) {
	task := func(poolCtx context.Context) error {
		wctx, cancel := context.WithTimeout(poolCtx, s.opts.WriteTimeout)
		defer cancel()

		res := writeResult{orderID: orderID, target: target}
		if automatic && s.locker != nil {
			key := redis.OrderCompletionKey(orderID)
			token, err := s.locker.TryLock(wctx, key, s.opts.CompletionLock)
			switch {
			case errors.Is(err, domain.ErrLockNotAcquired):
				metrics.IncOrderTransition(string(target), "locked")
				res.skipped = true
				s.post(ctx, res)
				return nil
			case err != nil:
				// the store write is conditional, so proceed without the lock
				s.log.Warn().Err(err).Str("order_id", orderID).Msg("completion lock unavailable")
			default:
				defer func() {
					if uerr := s.locker.Unlock(context.Background(), key, token); uerr != nil {
						s.log.Warn().Err(uerr).Str("order_id", orderID).Msg("completion unlock failed")
					}
				}()
			}
		}

		start := time.Now()
		res.order, res.err = s.tracker.Write(wctx, orderID, target)
		metrics.ObserveStatusWrite(string(target), time.Since(start))
		metrics.IncOrderTransition(string(target), writeOutcome(res.err))
		s.post(ctx, res)
		return res.err
	}

	if err := s.pool.Submit(task); err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID).Msg("status write not scheduled")
		s.settle(writeResult{orderID: orderID, target: target, err: errors.Join(domain.ErrWrite, err)})
	}
}

func writeOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrNotFound):
		return "terminal"
	default:
		return "failed"
	}
}

func (s *ViewSession) post(ctx context.Context, r writeResult) {
	select {
	case s.writes <- r:
	case <-ctx.Done():
	}
}

func (s *ViewSession) settle(r writeResult) {
	var err error
	if r.skipped {
		s.tracker.Abandon(r.orderID, r.target)
	} else {
		err = s.tracker.Settle(r.orderID, r.target, r.order, r.err)
		if err == nil && errors.Is(r.err, domain.ErrTerminalState) {
			// the caller asked for a transition the store had already closed
			err = domain.ErrTerminalState
		}
	}
	key := writeKey{r.orderID, r.target}
	for _, reply := range s.waiting[key] {
		reply <- err
	}
	delete(s.waiting, key)
}

func (s *ViewSession) dispatchLoad(ctx context.Context) {
	task := func(poolCtx context.Context) error {
		fctx, cancel := context.WithTimeout(poolCtx, s.opts.WriteTimeout)
		defer cancel()
		list, err := s.tracker.Fetch(fctx)
		select {
		case s.loads <- loadResult{orders: list, err: err}:
		case <-ctx.Done():
		}
		return err
	}
	if err := s.pool.Submit(task); err != nil {
		s.applyLoad(loadResult{err: errors.Join(domain.ErrFetch, err)})
	}
}

func (s *ViewSession) applyLoad(r loadResult) {
	err := s.tracker.Apply(r.orders, r.err)
	if err != nil {
		metrics.IncViewLoad("failed")
	} else {
		metrics.IncViewLoad("ok")
	}
	for _, reply := range s.refresh {
		reply <- err
	}
	s.refresh = nil
}

func (s *ViewSession) failWaiting(err error) {
	for key, replies := range s.waiting {
		for _, reply := range replies {
			reply <- err
		}
		delete(s.waiting, key)
	}
	for _, reply := range s.refresh {
		reply <- err
	}
	s.refresh = nil
}

// send queues c on the loop and waits for its answer.
func (s *ViewSession) send(ctx context.Context, kind commandKind, orderID string) error {
	s.Touch()
	c := command{kind: kind, orderID: orderID, reply: make(chan error, 1)}
	select {
	case s.cmds <- c:
	case <-s.done:
		return domain.ErrViewClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		// the loop answers everything it accepted before exiting
		select {
		case err := <-c.reply:
			return err
		default:
			return domain.ErrViewClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ViewSession) Pause(ctx context.Context, orderID string) error {
	return s.send(ctx, cmdPause, orderID)
}

func (s *ViewSession) Resume(ctx context.Context, orderID string) error {
	return s.send(ctx, cmdResume, orderID)
}

// Cancel returns once the store has confirmed or rejected the cancellation.
func (s *ViewSession) Cancel(ctx context.Context, orderID string) error {
	return s.send(ctx, cmdCancel, orderID)
}

// Complete returns once the store has confirmed or rejected the completion.
func (s *ViewSession) Complete(ctx context.Context, orderID string) error {
	return s.send(ctx, cmdComplete, orderID)
}

// Refresh reloads the active orders. Concurrent refreshes share one fetch.
func (s *ViewSession) Refresh(ctx context.Context) error {
	return s.send(ctx, cmdRefresh, "")
}

// DismissNotices drops notices up to and including noticeID.
func (s *ViewSession) DismissNotices(ctx context.Context, noticeID string) error {
	return s.send(ctx, cmdDismiss, noticeID)
}
