//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================
// Order store
// =============================

// memOrderRepo is an in-memory order store with the same conditional status
// write the Postgres repository performs.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	writes map[string][]model.OrderStatus // accepted status writes per order

	FetchErr  error
	UpdateErr error                          // returned by every UpdateStatus while set
	FetchFunc func(filter model.OrderFilter) // observes filters
}

var _ repository.OrderRepository = (*memOrderRepo)(nil)

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]*model.Order{}, writes: map[string][]model.OrderStatus{}}
}

func (m *memOrderRepo) put(o *model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
}

// activeOrder seeds an active order expiring in the given duration from now.
func (m *memOrderRepo) activeOrder(id, userID string, now time.Time, in time.Duration, hours int) *model.Order {
	exp := now.Add(in)
	o := &model.Order{
		ID:            id,
		OrderNumber:   "TWITCH-" + id,
		UserID:        userID,
		Platform:      "twitch",
		ServiceName:   "Viewers",
		Price:         decimal.NewFromInt(10),
		DurationHours: hours,
		Status:        model.OrderStatusActive,
		ExpiresAt:     &exp,
		CreatedAt:     now.Add(-time.Hour),
	}
	m.put(o)
	return o
}

func (m *memOrderRepo) setFetchErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchErr = err
}

func (m *memOrderRepo) setUpdateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateErr = err
}

func (m *memOrderRepo) status(id string) model.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o.Status
	}
	return ""
}

func (m *memOrderRepo) writeCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes[id])
}

func (m *memOrderRepo) Fetch(ctx context.Context, tx repository.Tx, filter model.OrderFilter) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchFunc != nil {
		m.FetchFunc(filter)
	}
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	var out []*model.Order
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if !filter.Scope.Allows(o.UserID) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
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
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderRepo) Activate(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		if o.Status.Terminal() {
			return nil, domain.ErrTerminalState
		}
		return nil, domain.ErrInvalidStatus
	}
	o.Status = model.OrderStatusActive
	exp := expiresAt
	o.ExpiresAt = &exp
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status.Terminal() {
		return nil, domain.ErrTerminalState
	}
	o.Status = status
	o.ExpiresAt = nil
	m.writes[id] = append(m.writes[id], status)
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.OrderStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.OrderStatus]int{}
	for _, o := range m.orders {
		out[o.Status]++
	}
	return out, nil
}

// =============================
// Profiles and balance
// =============================

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	locked   []string // ids passed to FindByIDForUpdate
}

var _ repository.ProfileRepository = (*memProfileRepo)(nil)

func newMemProfileRepo(ps ...*model.Profile) *memProfileRepo {
	m := &memProfileRepo{profiles: map[string]*model.Profile{}}
	for _, p := range ps {
		cp := *p
		m.profiles[p.ID] = &cp
	}
	return m
}

func (m *memProfileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfileRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Profile, error) {
	m.mu.Lock()
	m.locked = append(m.locked, id)
	m.mu.Unlock()
	return m.FindByID(ctx, tx, id)
}

func (m *memProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *memProfileRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	p.Balance = p.Balance.Add(delta)
	return p.Balance, nil
}

func (m *memProfileRepo) balance(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[id].Balance
}

type memBalanceRepo struct {
	mu  sync.Mutex
	txs []*model.BalanceTransaction
}

var _ repository.BalanceRepository = (*memBalanceRepo)(nil)

func (m *memBalanceRepo) Record(ctx context.Context, tx repository.Tx, t *model.BalanceTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *memBalanceRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.BalanceTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BalanceTransaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].UserID == userID {
			cp := *m.txs[i]
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================
// Transactions
// =============================

// MockTxManager runs fn directly. It records whether a call rolled back.
type MockTxManager struct {
	mu         sync.Mutex
	Calls      int
	RolledBack int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if err := fn(ctx, "mock-tx"); err != nil {
		m.mu.Lock()
		m.RolledBack++
		m.mu.Unlock()
		return err
	}
	return nil
}
