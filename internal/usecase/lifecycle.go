// File: internal/usecase/lifecycle.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
)

const defaultMaxNotices = 20

// Tracker keeps the live countdown of the active orders one viewer can see and
// fires the completion transition when an order's time runs out.
//
// Mutating methods must be called from a single goroutine (the view loop).
// Snapshot may be called from anywhere: every mutation publishes a fresh
// snapshot and never touches a published one.
type Tracker struct {
	orders     repository.OrderRepository
	viewer     model.Viewer
	log        *zerolog.Logger
	now        func() time.Time
	maxNotices int
	onNotice   func(userID string, n model.Notification)

	snap atomic.Pointer[model.Snapshot]
}

type TrackerOption func(*Tracker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func WithMaxNotices(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxNotices = n
		}
	}
}

// WithNoticeHook receives a copy of every lifecycle notice together with the
// owner of the order it is about. The hook runs on the caller's goroutine and
// must not block.
func WithNoticeHook(fn func(userID string, n model.Notification)) TrackerOption {
	return func(t *Tracker) { t.onNotice = fn }
}

func NewTracker(orders repository.OrderRepository, viewer model.Viewer, logger *zerolog.Logger, opts ...TrackerOption) *Tracker {
	l := logger.With().Str("component", "Tracker").Str("viewer", viewer.UserID).Logger()
	t := &Tracker{
		orders:     orders,
		viewer:     viewer,
		log:        &l,
		now:        time.Now,
		maxNotices: defaultMaxNotices,
	}
	for _, o := range opts {
		o(t)
	}
	t.snap.Store(model.EmptySnapshot())
	return t
}

func (t *Tracker) Viewer() model.Viewer { return t.viewer }

// Snapshot returns the current published state. Callers must not modify it.
func (t *Tracker) Snapshot() *model.Snapshot { return t.snap.Load() }

func (t *Tracker) publish(s *model.Snapshot) { t.snap.Store(s) }

// Load fetches the active orders in the viewer's scope and seeds the countdown
// map from each order's expiry. On failure the previous orders and timers stay
// as they were and an error notice is posted.
func (t *Tracker) Load(ctx context.Context) error {
	list, err := t.Fetch(ctx)
	return t.Apply(list, err)
}

// Fetch reads the active orders visible to the viewer. It does not touch the
// snapshot and is safe to call from any goroutine.
func (t *Tracker) Fetch(ctx context.Context) ([]*model.Order, error) {
	active := model.OrderStatusActive
	filter := model.OrderFilter{Scope: t.viewer.Scope(), Status: &active}
	list, err := t.orders.Fetch(ctx, repository.NoTX, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	return list, nil
}

// Apply replaces the tracked set with the result of a Fetch. A failed fetch
// leaves the tracked set untouched.
func (t *Tracker) Apply(list []*model.Order, err error) error {
	if err != nil {
		t.log.Error().Err(err).Msg("load active orders failed")
		next := t.Snapshot().Clone()
		t.appendNotice(next, "", model.NoticeError, "Load failed", "Could not load active orders")
		t.publish(next)
		if errors.Is(err, domain.ErrFetch) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	now := t.now()
	prev := t.Snapshot()
	next := prev.Clone()
	next.Orders = next.Orders[:0]
	next.Timers = make(map[string]model.TimerEntry, len(list))
	next.LoadedAt = now

	for _, o := range list {
		if o == nil || !o.IsActive() || !t.viewer.Scope().Allows(o.UserID) {
			continue
		}
		if o.ExpiresAt == nil {
			t.log.Warn().Str("order_id", o.ID).Msg("active order without expiry skipped")
			continue
		}
		remaining := o.RemainingSeconds(now)
		entry := model.TimerEntry{
			OrderID:          o.ID,
			RemainingSeconds: remaining,
			TotalSeconds:     o.PurchasedDurationSeconds(),
			IsRunning:        remaining > 0,
		}
		// a write dispatched before the reload may still be outstanding
		if old, ok := prev.Timer(o.ID); ok {
			entry.Pending = old.Pending
			entry.Attempts = old.Attempts
		}
		next.Orders = append(next.Orders, *o)
		next.Timers[o.ID] = entry
	}
	t.publish(next)
	t.log.Debug().Int("orders", len(next.Orders)).Msg("active orders loaded")
	return nil
}

// Tick advances every running countdown by one second, never leaving it above
// the time the stored expiry actually allows, so missed ticks do not delay
// completion. It returns the ids of orders that reached zero and now need
// their completion written; those are marked in flight so they are returned at
// most once until settled.
func (t *Tracker) Tick() []string {
	cur := t.Snapshot()
	if len(cur.Timers) == 0 {
		return nil
	}
	now := t.now()
	next := cur.Clone()
	var due []string
	changed := false
	for id, e := range next.Timers {
		if e.IsRunning && e.RemainingSeconds > 0 {
			left := e.RemainingSeconds - 1
			if o, ok := next.Order(id); ok {
				if real := o.RemainingSeconds(now); real < left {
					left = real
				}
			}
			e.RemainingSeconds = left
			changed = true
		}
		if e.RemainingSeconds <= 0 {
			e.RemainingSeconds = 0
			if !e.InFlight() {
				e.Pending = model.OrderStatusCompleted
				due = append(due, id)
				changed = true
			}
		}
		next.Timers[id] = e
	}
	if changed {
		t.publish(next)
	}
	sort.Strings(due)
	return due
}

// Begin marks a status write for the order as outstanding. It reports false
// when the order is not tracked or the same write is already in flight.
// A cancellation may start while a completion is in flight; the store keeps
// whichever terminal status lands first.
func (t *Tracker) Begin(orderID string, target model.OrderStatus) bool {
	cur := t.Snapshot()
	e, ok := cur.Timer(orderID)
	if !ok {
		return false
	}
	switch target {
	case model.OrderStatusCompleted:
		if e.InFlight() {
			return false
		}
	case model.OrderStatusCancelled:
		if e.Pending == model.OrderStatusCancelled {
			return false
		}
	default:
		return false
	}
	next := cur.Clone()
	e.Pending = target
	next.Timers[orderID] = e
	t.publish(next)
	return true
}

// Abandon clears an outstanding write without recording an outcome, used when
// the write was never attempted. A completion abandoned this way is due again
// on the next tick.
func (t *Tracker) Abandon(orderID string, target model.OrderStatus) {
	cur := t.Snapshot()
	e, ok := cur.Timer(orderID)
	if !ok || e.Pending != target {
		return
	}
	next := cur.Clone()
	e.Pending = ""
	next.Timers[orderID] = e
	t.publish(next)
}

// Write performs the store write for a begun transition. When the store has
// already closed the order it also reads back the status that won, returned
// alongside the error. It does not touch the snapshot and is safe to call from
// any goroutine.
func (t *Tracker) Write(ctx context.Context, orderID string, target model.OrderStatus) (*model.Order, error) {
	o, err := t.orders.UpdateStatus(ctx, repository.NoTX, orderID, target)
	if err != nil {
		if errors.Is(err, domain.ErrTerminalState) || errors.Is(err, domain.ErrNotFound) {
			return t.readBack(ctx, orderID), err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrWrite, err)
	}
	return o, nil
}

// readBack fetches the order a write lost against. Nil means it is gone or
// could not be read.
func (t *Tracker) readBack(ctx context.Context, orderID string) *model.Order {
	o, err := t.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			t.log.Warn().Err(err).Str("order_id", orderID).Msg("read back after lost write failed")
		}
		return nil
	}
	return o
}

// Settle applies the outcome of a Write started with Begin. It does no I/O and
// is meant to run on the view loop.
//
// On success the order leaves the view. If the store reports the order already
// terminal, the view takes the status Write read back and drops it as well. Any
// other failure keeps the order tracked: a failed completion stays at zero and
// is due again on the next tick; a failed cancellation stays actionable.
func (t *Tracker) Settle(orderID string, target model.OrderStatus, stored *model.Order, err error) error {
	cur := t.Snapshot()
	e, ok := cur.Timer(orderID)
	if !ok {
		// already dropped by an earlier write or a reload
		return nil
	}
	order, _ := cur.Order(orderID)
	next := cur.Clone()

	switch {
	case err == nil:
		final := target
		if stored != nil {
			final = stored.Status
		}
		next.Drop(orderID)
		t.noticeFinal(next, order, final, target)
		t.publish(next)
		t.log.Info().Str("order_id", orderID).Str("status", string(final)).Msg("order finished")
		return nil

	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrNotFound):
		var final model.OrderStatus
		if stored != nil && stored.Status.Terminal() {
			final = stored.Status
		}
		next.Drop(orderID)
		if final != "" {
			t.noticeFinal(next, order, final, target)
		}
		t.publish(next)
		t.log.Info().Str("order_id", orderID).Str("status", string(final)).Msg("order reconciled with store")
		return nil
	}

	if e.Pending == target {
		e.Pending = ""
	}
	if target == model.OrderStatusCompleted {
		e.Attempts++
		if e.Attempts == 1 {
			t.appendNotice(next, orderID, model.NoticeError, "Completion failed",
				fmt.Sprintf("Order #%s could not be completed; retrying", order.OrderNumber))
		}
	} else {
		t.appendNotice(next, orderID, model.NoticeError, "Cancellation failed",
			fmt.Sprintf("Order #%s could not be cancelled", order.OrderNumber))
	}
	next.Timers[orderID] = e
	t.publish(next)
	t.log.Warn().Err(err).Str("order_id", orderID).Str("target", string(target)).Int("attempts", e.Attempts).Msg("status write failed")
	if errors.Is(err, domain.ErrWrite) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrWrite, err)
}

// Complete writes the completed status synchronously. Calling it for an order
// that is no longer tracked, or whose completion is in flight, is a no-op.
func (t *Tracker) Complete(ctx context.Context, orderID string) error {
	if !t.Begin(orderID, model.OrderStatusCompleted) {
		return nil
	}
	o, err := t.Write(ctx, orderID, model.OrderStatusCompleted)
	return t.Settle(orderID, model.OrderStatusCompleted, o, err)
}

// Cancel writes the cancelled status synchronously.
func (t *Tracker) Cancel(ctx context.Context, orderID string) error {
	if !t.Snapshot().Tracked(orderID) {
		return domain.ErrNotTracked
	}
	if !t.Begin(orderID, model.OrderStatusCancelled) {
		return nil
	}
	o, err := t.Write(ctx, orderID, model.OrderStatusCancelled)
	return t.Settle(orderID, model.OrderStatusCancelled, o, err)
}

// Pause freezes the displayed countdown. The stored expiry is not moved, so the
// order still expires on time in the store.
func (t *Tracker) Pause(orderID string) error {
	return t.setRunning(orderID, false, "Order paused", "Fulfilment paused")
}

func (t *Tracker) Resume(orderID string) error {
	return t.setRunning(orderID, true, "Order resumed", "Fulfilment resumed")
}

func (t *Tracker) setRunning(orderID string, running bool, title, msg string) error {
	cur := t.Snapshot()
	e, ok := cur.Timer(orderID)
	if !ok {
		return domain.ErrNotTracked
	}
	if e.IsRunning == running {
		return nil
	}
	next := cur.Clone()
	e.IsRunning = running
	next.Timers[orderID] = e
	t.appendNotice(next, orderID, model.NoticeInfo, title, msg)
	t.publish(next)
	return nil
}

// DismissNotices drops every notice up to and including id.
func (t *Tracker) DismissNotices(id string) {
	cur := t.Snapshot()
	for i, n := range cur.Notifications {
		if n.ID == id {
			next := cur.Clone()
			next.Notifications = append([]model.Notification(nil), next.Notifications[i+1:]...)
			t.publish(next)
			return
		}
	}
}

func (t *Tracker) noticeFinal(s *model.Snapshot, o model.Order, final, requested model.OrderStatus) {
	var title, msg string
	switch {
	case final == model.OrderStatusCompleted && requested == model.OrderStatusCompleted:
		title, msg = "Order completed", fmt.Sprintf("Order #%s finished when its time ran out", o.OrderNumber)
	case final == model.OrderStatusCancelled && requested == model.OrderStatusCancelled:
		title, msg = "Order cancelled", fmt.Sprintf("Order #%s was cancelled", o.OrderNumber)
	default:
		title, msg = "Order already finished", fmt.Sprintf("Order #%s is %s", o.OrderNumber, final)
	}
	n := t.appendNotice(s, o.ID, model.NoticeSuccess, title, msg)
	if t.onNotice != nil && o.UserID != "" {
		t.onNotice(o.UserID, n)
	}
}

func (t *Tracker) appendNotice(s *model.Snapshot, orderID string, level model.NoticeLevel, title, msg string) model.Notification {
	n := model.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   msg,
		OrderID:   orderID,
		CreatedAt: t.now(),
	}
	s.Notifications = append(s.Notifications, n)
	if over := len(s.Notifications) - t.maxNotices; over > 0 {
		s.Notifications = append([]model.Notification(nil), s.Notifications[over:]...)
	}
	return n
}
