// Package notifier содержит отправку уведомлений пользователям через
// Telegram Bot API. Сервис потребляет события об окончании подписок
// из RabbitMQ.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// Telegram определяет отправку сообщения пользователю.
type Telegram interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Service реализует отправку уведомлений об окончании подписки.
type Service struct {
	tg  Telegram
	log *slog.Logger
}

// New создает новый экземпляр Service.
func New(tg Telegram, log *slog.Logger) *Service {
	return &Service{
		tg:  tg,
		log: log,
	}
}

// SendExpiringNotification отправляет предупреждение о скором окончании
// подписки. body — JSON-событие из очереди.
func (s *Service) SendExpiringNotification(ctx context.Context, body []byte) error {
	var event models.ExpiryNotification
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	var text string
	switch event.Language {
	case "ru":
		text = fmt.Sprintf("Ваша подписка заканчивается %s. Продлите её заранее, чтобы не потерять доступ.",
			event.ExpiresAt.Format("02.01.2006"))
	default:
		text = fmt.Sprintf("Your subscription expires on %s. Renew it in advance to keep your access.",
			event.ExpiresAt.Format("2006-01-02"))
	}

	if err := s.tg.SendMessage(ctx, event.UserID, text); err != nil {
		s.log.Error("failed to send expiring notification", slog.Int64("user_id", event.UserID), sl.Err(err))
		return err
	}
	s.log.Info("expiring notification sent", slog.Int64("user_id", event.UserID))
	return nil
}

// SendExpiredNotification отправляет сообщение о наступившем окончании
// подписки.
func (s *Service) SendExpiredNotification(ctx context.Context, body []byte) error {
	var event models.ExpiryNotification
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	var text string
	switch event.Language {
	case "ru":
		text = "Ваша подписка закончилась, доступ приостановлен. Оформите новую, чтобы восстановить подключение."
	default:
		text = "Your subscription has expired and access is suspended. Purchase a new one to restore your connection."
	}

	if err := s.tg.SendMessage(ctx, event.UserID, text); err != nil {
		s.log.Error("failed to send expired notification", slog.Int64("user_id", event.UserID), sl.Err(err))
		return err
	}
	s.log.Info("expired notification sent", slog.Int64("user_id", event.UserID))
	return nil
}
