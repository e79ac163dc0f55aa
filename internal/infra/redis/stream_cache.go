package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
	"streamboost-dashboard/internal/infra/metrics"
)

var _ adapter.StreamStatusChecker = (*StreamStatusCache)(nil)

// StreamStatusCache memoizes liveness answers for a short TTL so a dashboard
// full of order cards does not fan out to the streaming platform.
type StreamStatusCache struct {
	next   adapter.StreamStatusChecker
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewStreamStatusCache(next adapter.StreamStatusChecker, client RedisClient, ttl time.Duration, logger *zerolog.Logger) *StreamStatusCache {
	l := logger.With().Str("component", "StreamStatusCache").Logger()
	return &StreamStatusCache{next: next, client: client, ttl: ttl, log: &l}
}

func streamStatusKey(streamURL string) string {
	return "stream_status:" + strings.ToLower(strings.TrimRight(strings.TrimSpace(streamURL), "/"))
}

func (c *StreamStatusCache) CheckStream(ctx context.Context, streamURL string) (*model.StreamStatus, error) {
	key := streamStatusKey(streamURL)

	raw, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		var st model.StreamStatus
		if jerr := json.Unmarshal([]byte(raw), &st); jerr == nil {
			metrics.IncCacheRequest("stream_status", "hit")
			return &st, nil
		}
		c.log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		_ = c.client.Del(ctx, key)
	case errors.Is(err, ErrNil):
	default:
		// cache outage must not break the check
		c.log.Warn().Err(err).Msg("stream status cache read failed")
	}
	metrics.IncCacheRequest("stream_status", "miss")

	st, err := c.next.CheckStream(ctx, streamURL)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(st); jerr == nil {
		if serr := c.client.Set(ctx, key, b, c.ttl); serr != nil {
			c.log.Warn().Err(serr).Msg("stream status cache write failed")
		}
	}
	return st, nil
}
