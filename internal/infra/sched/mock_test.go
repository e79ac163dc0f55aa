//go:build !integration

package sched

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
	"streamboost-dashboard/internal/infra/worker"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// inlinePool runs every task on the submitting goroutine.
type inlinePool struct {
	mu  sync.Mutex
	err error
	ran int
}

func (p *inlinePool) Submit(task worker.Task) error {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return err
	}
	p.ran++
	p.mu.Unlock()
	_ = task(context.Background())
	return nil
}

// fakeLocker grants or refuses locks on demand.
type fakeLocker struct {
	mu      sync.Mutex
	refuse  bool
	held    map[string]string
	granted int
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) setRefuse(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refuse = v
}

func (l *fakeLocker) grants() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.granted
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refuse {
		return "", domain.ErrLockNotAcquired
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	l.granted++
	l.held[key] = "t"
	return "t", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// recordingNotifier collects forwarded notices.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string, note model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, userID+":"+note.Title)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// memOrderRepo is an in-memory order store with a conditional status write.
type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]*model.Order
	writes   map[string][]model.OrderStatus
	fetchErr error

	findGate  chan struct{} // when set, FindByID waits for it to close
	findCalls atomic.Int32
}

var _ repository.OrderRepository = (*memOrderRepo)(nil)

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]*model.Order{}, writes: map[string][]model.OrderStatus{}}
}

func (m *memOrderRepo) seedActive(id, userID string, in time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := time.Now().Add(in)
	m.orders[id] = &model.Order{
		ID:            id,
		OrderNumber:   "TWITCH-" + id,
		UserID:        userID,
		Platform:      "twitch",
		ServiceName:   "Viewers",
		Price:         decimal.NewFromInt(5),
		DurationHours: 1,
		Status:        model.OrderStatusActive,
		ExpiresAt:     &exp,
		CreatedAt:     time.Now(),
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

func (m *memOrderRepo) writesFor(id string) []model.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.OrderStatus(nil), m.writes[id]...)
}

func (m *memOrderRepo) Fetch(ctx context.Context, tx repository.Tx, filter model.OrderFilter) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
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
	return out, nil
}

// holdFindByID makes FindByID block until the returned func is called.
func (m *memOrderRepo) holdFindByID() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.findGate = gate
	m.mu.Unlock()
	return func() { close(gate) }
}

func (m *memOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.findCalls.Add(1)
	m.mu.Lock()
	gate := m.findGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
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
	return nil
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
