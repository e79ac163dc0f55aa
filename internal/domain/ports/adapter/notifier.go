package adapter

import (
	"context"

	"streamboost-dashboard/internal/domain/model"
)

// Notifier presents a message to a viewer. Delivery is best effort; callers
// do not act on the returned error beyond logging it.
type Notifier interface {
	Notify(ctx context.Context, userID string, n model.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, userID string, n model.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, userID string, n model.Notification) error {
	return f(ctx, userID, n)
}
