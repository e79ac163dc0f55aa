// File: internal/usecase/stream_uc.go
package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
)

// Compile-time check
var _ StreamUseCase = (*streamUC)(nil)

const invalidTwitchURL = "Invalid Twitch URL"

type StreamUseCase interface {
	// Check reports whether the channel behind streamURL is live. A URL that
	// is not a twitch.tv channel is answered, not failed.
	Check(ctx context.Context, streamURL string) (*model.StreamStatus, error)
}

type streamUC struct {
	checker adapter.StreamStatusChecker
	log     *zerolog.Logger
}

func NewStreamUseCase(checker adapter.StreamStatusChecker, logger *zerolog.Logger) *streamUC {
	l := logger.With().Str("component", "StreamUseCase").Logger()
	return &streamUC{checker: checker, log: &l}
}

func (u *streamUC) Check(ctx context.Context, streamURL string) (*model.StreamStatus, error) {
	if _, ok := model.TwitchLogin(streamURL); !ok {
		return &model.StreamStatus{IsLive: false, Error: invalidTwitchURL}, nil
	}
	st, err := u.checker.CheckStream(ctx, streamURL)
	if err != nil {
		u.log.Error().Err(err).Str("url", streamURL).Msg("stream check failed")
		return nil, fmt.Errorf("%w: stream check: %v", domain.ErrOperationFailed, err)
	}
	return st, nil
}
