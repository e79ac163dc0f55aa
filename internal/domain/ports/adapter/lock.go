package adapter

import (
	"context"
	"time"
)

// Locker is a short-lived mutual exclusion shared by every instance of the service.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Limiter is a fixed-window counter keyed by caller.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
