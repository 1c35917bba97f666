// Package sender собирает приложение отправки уведомлений: потребляет
// сообщения об истечении подписок и рассылает их через Telegram Bot API.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-shop-core/internal/config"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/telegram"
	notifierservice "github.com/magabrotheeeer/vpn-shop-core/internal/services/notifier"
)

// App представляет приложение отправки уведомлений.
type App struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	notifier *notifierservice.Service
	logger   *slog.Logger
}

// New создает экземпляр приложения отправки уведомлений.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			logger.Error("failed to close connection", sl.Err(cerr))
		}
		return nil, err
	}

	tgClient := telegram.New(cfg.BotAPIBase, cfg.BotToken)
	notifier := notifierservice.New(tgClient, logger)

	return &App{
		conn:     conn,
		ch:       ch,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Run запускает потребителей очередей уведомлений и блокируется
// до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	expiring, err := rabbitmq.ConsumeMessages(a.ch, "notification.expiring", "notification-sender")
	if err != nil {
		return err
	}
	expired, err := rabbitmq.ConsumeMessages(a.ch, "notification.expired", "notification-sender")
	if err != nil {
		return err
	}

	go a.consume(ctx, expiring, a.notifier.SendExpiringNotification)
	go a.consume(ctx, expired, a.notifier.SendExpiredNotification)

	<-ctx.Done()
	a.logger.Info("notification sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}

// consume обрабатывает доставки из одной очереди. Ошибка обработчика
// возвращает сообщение в очередь без повторной доставки самому себе.
func (a *App) consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(context.Context, []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := handle(ctx, d.Body); err != nil {
				a.logger.Error("failed to handle notification", sl.Err(err))
				if nerr := d.Nack(false, false); nerr != nil {
					a.logger.Error("failed to nack message", sl.Err(nerr))
				}
				continue
			}
			if aerr := d.Ack(false); aerr != nil {
				a.logger.Error("failed to ack message", sl.Err(aerr))
			}
		}
	}
}
