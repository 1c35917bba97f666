// Package shopcore собирает основное приложение магазина: хранилище,
// кеш, брокер сообщений, HTTP API и потребитель подтверждений платежей
// через Telegram Stars.
package shopcore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-shop-core/internal/config"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/migrations"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/paymentprovider"
	lifecycleservice "github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
	paymentservice "github.com/magabrotheeeer/vpn-shop-core/internal/services/payment"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/cache"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// App представляет основное приложение магазина.
type App struct {
	server         *http.Server
	conn           *amqp.Connection
	ch             *amqp.Channel
	paymentService *paymentservice.Service
	logger         *slog.Logger
	db             *repository.Storage
}

// New создает экземпляр приложения и всю его инфраструктуру.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetPaymentQueues())
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			logger.Error("failed to close connection", sl.Err(cerr))
		}
		return nil, err
	}

	maker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	lifecycleService := lifecycleservice.New(db, cfg.Lifecycle, logger)
	paymentService := paymentservice.New(db, lifecycleService, logger)
	providerClient := paymentprovider.NewClient(cfg.ShopID, cfg.YooSecretKey, cfg.YooAPIURL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, lifecycleService, paymentService, providerClient, db, cacheRedis, maker, cfg)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:         srv,
		conn:           conn,
		ch:             ch,
		paymentService: paymentService,
		logger:         logger,
		db:             db,
	}, nil
}

// Run запускает HTTP сервер и потребитель подтверждений платежей,
// блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	deliveries, err := rabbitmq.ConsumeMessages(a.ch, "payment.confirmed", "shop-core")
	if err != nil {
		return err
	}
	go a.consumePayments(ctx, deliveries)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.ch.Close(); cerr != nil {
			a.logger.Error("failed to close channel", sl.Err(cerr))
		}
		if cerr := a.conn.Close(); cerr != nil {
			a.logger.Error("failed to close connection", sl.Err(cerr))
		}
		if cerr := a.db.DB.Close(); cerr != nil {
			a.logger.Error("failed to close database", sl.Err(cerr))
		}
		return err
	}
}

// consumePayments обрабатывает подтверждения платежей, опубликованные
// ботом после успешной оплаты через Telegram Stars. Конечные ошибки
// подтверждаются без повторной доставки, временные уходят в requeue.
func (a *App) consumePayments(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			a.handlePaymentDelivery(ctx, d)
		}
	}
}

func (a *App) handlePaymentDelivery(ctx context.Context, d amqp.Delivery) {
	var event models.PaymentEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		a.logger.Error("failed to decode payment event", sl.Err(err))
		if err := d.Nack(false, false); err != nil {
			a.logger.Error("failed to nack message", sl.Err(err))
		}
		return
	}

	result, err := a.paymentService.Confirm(ctx, event)
	if err != nil {
		if isTerminalPaymentErr(err) {
			a.logger.Warn("payment event rejected",
				slog.String("payment_id", event.PaymentID), sl.Err(err))
			if err := d.Ack(false); err != nil {
				a.logger.Error("failed to ack message", sl.Err(err))
			}
			return
		}
		a.logger.Error("failed to confirm payment, requeueing",
			slog.String("payment_id", event.PaymentID), sl.Err(err))
		if err := d.Nack(false, true); err != nil {
			a.logger.Error("failed to nack message", sl.Err(err))
		}
		return
	}

	a.logger.Info("payment confirmed",
		slog.String("payment_id", event.PaymentID),
		slog.String("subscription_id", result.SubscriptionID))
	if err := d.Ack(false); err != nil {
		a.logger.Error("failed to ack message", sl.Err(err))
	}
}

func isTerminalPaymentErr(err error) bool {
	return errors.Is(err, paymentservice.ErrUnknownPayment) ||
		errors.Is(err, paymentservice.ErrPaymentMismatch) ||
		errors.Is(err, paymentservice.ErrPaymentFailed)
}
