package repository

import (
	"context"
	"time"

	"streamboost-dashboard/internal/domain/model"
)

// OrderRepository is the authoritative order store.
//
// UpdateStatus writes a terminal status only when the stored order is not
// terminal yet and returns the row as stored after the write. It fails with
// domain.ErrTerminalState when the order was already completed or cancelled,
// which lets callers reconcile against whatever status won.
type OrderRepository interface {
	Fetch(ctx context.Context, tx Tx, filter model.OrderFilter) ([]*model.Order, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	Create(ctx context.Context, tx Tx, o *model.Order) error
	Activate(ctx context.Context, tx Tx, id string, expiresAt time.Time) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.OrderStatus) (*model.Order, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.OrderStatus]int, error)
}
