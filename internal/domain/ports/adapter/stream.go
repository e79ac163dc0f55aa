package adapter

import (
	"context"

	"streamboost-dashboard/internal/domain/model"
)

// StreamStatusChecker answers whether the channel behind a stream URL is live.
type StreamStatusChecker interface {
	CheckStream(ctx context.Context, streamURL string) (*model.StreamStatus, error)
}
