package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/config"
	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
	"streamboost-dashboard/internal/domain/ports/repository"
)

var _ adapter.Notifier = (*Notifier)(nil)

// Sender is the slice of tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier relays order notices to the Telegram chat linked to a profile.
// Profiles without a linked chat are skipped silently.
type Notifier struct {
	bot      Sender
	profiles repository.ProfileRepository
	log      *zerolog.Logger
}

// NewBotNotifier connects to the Bot API with the configured token.
func NewBotNotifier(cfg *config.TelegramConfig, profiles repository.ProfileRepository, logger *zerolog.Logger) (*Notifier, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewNotifier(bot, profiles, logger), nil
}

func NewNotifier(bot Sender, profiles repository.ProfileRepository, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &Notifier{bot: bot, profiles: profiles, log: &l}
}

func (n *Notifier) Notify(ctx context.Context, userID string, note model.Notification) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, err := n.profiles.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if p.TelegramChatID == nil {
		return nil
	}

	msg := tgbotapi.NewMessage(*p.TelegramChatID, formatNotice(note))
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Str("user_id", userID).Str("order_id", note.OrderID).Msg("telegram send failed")
		return err
	}
	return nil
}

func formatNotice(note model.Notification) string {
	var icon string
	switch note.Level {
	case model.NoticeSuccess:
		icon = "✅"
	case model.NoticeError:
		icon = "❌"
	case model.NoticeWarning:
		icon = "⚠️"
	default:
		icon = "ℹ️"
	}
	var b strings.Builder
	b.WriteString(icon)
	b.WriteString(" ")
	b.WriteString(note.Title)
	if note.Message != "" {
		b.WriteString("\n")
		b.WriteString(note.Message)
	}
	return b.String()
}
