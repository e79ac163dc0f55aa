package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"streamboost-dashboard/internal/domain/ports/adapter"
)

var _ adapter.Limiter = (*RateLimiter)(nil)

// luaWindowHit counts one hit and starts the window on the first one, in a
// single round trip so a counter never outlives its window.
var luaWindowHit = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	cli *redis.Client
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{cli: c.cli}
}

// Allow records a hit on key and reports whether it is within limit for the
// current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window < time.Millisecond {
		window = time.Millisecond
	}
	n, err := luaWindowHit.Run(ctx, r.cli, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(limit), nil
}

// ViewerActionKey buckets manual order actions per viewer.
func ViewerActionKey(userID, action string) string {
	return "rate_limit:" + action + ":" + userID
}
