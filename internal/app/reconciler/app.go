// Package reconciler собирает приложение фоновой сверки: хранилище,
// клиент панели Remnawave, публикация уведомлений и цикл обработки
// намерений на провижининг.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-shop-core/internal/config"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/panel"
	reconcilerservice "github.com/magabrotheeeer/vpn-shop-core/internal/services/reconciler"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// App представляет приложение сверки.
type App struct {
	service *reconcilerservice.Service
	conn    *amqp.Connection
	ch      *amqp.Channel
	db      *repository.Storage
	logger  *slog.Logger
	drain   time.Duration
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает экземпляр приложения сверки.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	panelClient := panel.NewClient(cfg.PanelBaseURL, cfg.PanelToken, cfg.PanelTimeout, cfg.PanelRateLimit)
	publisher := rabbitmq.NewChannelPublisher(ch)

	service := reconcilerservice.New(db, panelClient, publisher,
		cfg.Reconciler, cfg.ExpiringSoonWindow, logger)

	return &App{
		service: service,
		conn:    conn,
		ch:      ch,
		db:      db,
		logger:  logger,
		drain:   cfg.DrainTimeout,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает цикл сверки и блокируется до отмены контекста.
// После отмены дожидается завершения текущего тика, но не дольше
// настроенного времени на слив.
func (a *App) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.service.Run(ctx)
		close(done)
	}()

	<-ctx.Done()

	select {
	case <-done:
	case <-time.After(a.drain):
		a.logger.Warn("reconciler drain timeout exceeded")
	}

	a.logger.Info("shutting down reconciler")
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
	return nil
}
