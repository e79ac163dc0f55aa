//go:build !integration

package api

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
	"streamboost-dashboard/internal/usecase"
)

// memOrderRepo is a minimal in-memory order store for the view routes.
type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]*model.Order
	fetchErr error
}

var _ repository.OrderRepository = (*memOrderRepo)(nil)

func newMemOrderRepo() *memOrderRepo { return &memOrderRepo{orders: map[string]*model.Order{}} }

func (m *memOrderRepo) seedActive(id, userID string, in time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := time.Now().Add(in)
	m.orders[id] = &model.Order{
		ID: id, OrderNumber: "TWITCH-" + id, UserID: userID, Platform: "twitch", ServiceName: "Viewers",
		Price: decimal.NewFromInt(5), DurationHours: 2, Status: model.OrderStatusActive, ExpiresAt: &exp, CreatedAt: time.Now(),
	}
}

func (m *memOrderRepo) setFetchErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

func (m *memOrderRepo) status(id string) model.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

func (m *memOrderRepo) Fetch(ctx context.Context, tx repository.Tx, f model.OrderFilter) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*model.Order
	for _, o := range m.orders {
		if (f.Status == nil || o.Status == *f.Status) && f.Scope.Allows(o.UserID) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	return domain.ErrOperationFailed
}

func (m *memOrderRepo) Activate(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) (*model.Order, error) {
	return nil, domain.ErrOperationFailed
}

func (m *memOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status.Terminal() {
		return nil, domain.ErrTerminalState
	}
	o.Status = status
	o.ExpiresAt = nil
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.OrderStatus]int, error) {
	return map[model.OrderStatus]int{}, nil
}

// mockOrderUC lets each test script the order use case.
type mockOrderUC struct {
	CheckoutFunc     func(ctx context.Context, v model.Viewer, items []usecase.CartItem) (*usecase.CheckoutResult, error)
	ActivateFunc     func(ctx context.Context, v model.Viewer, orderID string) (*model.Order, error)
	HistoryFunc      func(ctx context.Context, v model.Viewer, status *model.OrderStatus, limit int) ([]*model.Order, error)
	TopUpFunc        func(ctx context.Context, v model.Viewer, userID string, amount decimal.Decimal, desc string) (decimal.Decimal, error)
	TransactionsFunc func(ctx context.Context, v model.Viewer, userID string, limit int) ([]*model.BalanceTransaction, error)
}

func (m *mockOrderUC) Checkout(ctx context.Context, v model.Viewer, items []usecase.CartItem) (*usecase.CheckoutResult, error) {
	return m.CheckoutFunc(ctx, v, items)
}
func (m *mockOrderUC) Activate(ctx context.Context, v model.Viewer, orderID string) (*model.Order, error) {
	return m.ActivateFunc(ctx, v, orderID)
}
func (m *mockOrderUC) History(ctx context.Context, v model.Viewer, status *model.OrderStatus, limit int) ([]*model.Order, error) {
	return m.HistoryFunc(ctx, v, status, limit)
}
func (m *mockOrderUC) TopUp(ctx context.Context, v model.Viewer, userID string, amount decimal.Decimal, desc string) (decimal.Decimal, error) {
	return m.TopUpFunc(ctx, v, userID, amount, desc)
}
func (m *mockOrderUC) Transactions(ctx context.Context, v model.Viewer, userID string, limit int) ([]*model.BalanceTransaction, error) {
	return m.TransactionsFunc(ctx, v, userID, limit)
}

type mockStreamUC struct {
	CheckFunc func(ctx context.Context, streamURL string) (*model.StreamStatus, error)
}

func (m *mockStreamUC) Check(ctx context.Context, streamURL string) (*model.StreamStatus, error) {
	return m.CheckFunc(ctx, streamURL)
}

// denyLimiter refuses everything after the first n calls.
type denyLimiter struct {
	mu    sync.Mutex
	n     int
	calls int
}

func (l *denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.calls <= l.n, nil
}
