package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notices to the log instead of Telegram. Used when the bot is disabled.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "LogNotifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Notify(ctx context.Context, userID string, note model.Notification) error {
	n.log.Info().
		Str("user_id", userID).
		Str("order_id", note.OrderID).
		Str("level", string(note.Level)).
		Str("title", note.Title).
		Msg(note.Message)
	return nil
}
