// Package reconciler содержит фоновый цикл сверки: перевод просроченных
// подписок в expired, публикацию уведомлений об окончании и доведение
// состояния удалённой панели до желаемого по записанным намерениям.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/vpn-shop-core/internal/config"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/keylock"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/panel"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// intentBatchSize ограничивает число намерений, обрабатываемых за один тик.
const intentBatchSize = 100

// Repository определяет методы хранилища, нужные реконсайлеру.
type Repository interface {
	ExpireOverdue(ctx context.Context, now time.Time) ([]string, error)
	FindExpiringSoon(ctx context.Context, now time.Time, window time.Duration) ([]repository.ExpiringSubscription, error)
	MarkNotifiedExpiring(ctx context.Context, id string) error
	DueIntents(ctx context.Context, limit int) ([]*models.ProvisioningIntent, error)
	AckIntent(ctx context.Context, subscriptionID string, remoteUUID *string) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FlagNeedsAttention(ctx context.Context, id, reason string) error
}

// PanelClient определяет операции удалённой панели.
type PanelClient interface {
	CreateUser(ctx context.Context, reqParams panel.CreateUserRequest) (*panel.RemoteUser, error)
	UpdateUser(ctx context.Context, reqParams panel.UpdateUserRequest) (*panel.RemoteUser, error)
	RevokeUser(ctx context.Context, uuid string) error
}

// Publisher определяет публикацию событий в брокер сообщений.
type Publisher interface {
	Publish(exchange, routingKey string, message any) error
}

// Service реализует цикл сверки.
type Service struct {
	repo      Repository
	panel     PanelClient
	publisher Publisher
	locks     *keylock.KeyLock
	cfg       config.Reconciler
	window    time.Duration
	log       *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New создает новый экземпляр Service. window — окно предупреждения
// о скором окончании подписки.
func New(repo Repository, panelClient PanelClient, publisher Publisher, cfg config.Reconciler, window time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		panel:     panelClient,
		publisher: publisher,
		locks:     keylock.New(),
		cfg:       cfg,
		window:    window,
		log:       log,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run запускает цикл сверки и блокируется до отмены контекста.
// Первый тик выполняется сразу, без ожидания интервала.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("reconciler started",
		slog.Duration("tick_interval", s.cfg.TickInterval),
		slog.Int("workers", s.cfg.Workers))

	s.RunTick(ctx)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			s.RunTick(ctx)
		}
	}
}

// RunTick выполняет один полный проход сверки.
func (s *Service) RunTick(ctx context.Context) {
	start := s.now()
	s.expireOverdue(ctx)
	s.notifyExpiring(ctx)
	s.processIntents(ctx)
	tickDuration.Observe(time.Since(start).Seconds())
}

// expireOverdue переводит просроченные подписки в expired и публикует
// уведомления об окончании.
func (s *Service) expireOverdue(ctx context.Context) {
	ids, err := s.repo.ExpireOverdue(ctx, s.now())
	if err != nil {
		s.log.Error("failed to expire overdue subscriptions", sl.Err(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	s.log.Info("subscriptions expired", slog.Int("count", len(ids)))
	subscriptionsExpired.Add(float64(len(ids)))

	for _, id := range ids {
		sub, err := s.repo.GetSubscription(ctx, id)
		if err != nil {
			s.log.Error("failed to load expired subscription", slog.String("subscription_id", id), sl.Err(err))
			continue
		}
		user, err := s.repo.GetUser(ctx, sub.UserID)
		if err != nil {
			s.log.Error("failed to load user for expiry notification", slog.Int64("user_id", sub.UserID), sl.Err(err))
			continue
		}
		event := models.ExpiryNotification{
			UserID:    user.ID,
			Language:  user.Language,
			ExpiresAt: sub.ExpiresAt,
			Expired:   true,
		}
		if err := s.publisher.Publish("notifications", "expired", event); err != nil {
			s.log.Error("failed to publish expired notification", slog.Int64("user_id", user.ID), sl.Err(err))
			continue
		}
		notificationsPublished.WithLabelValues("expired").Inc()
	}
}

// notifyExpiring публикует уведомления о подписках, заканчивающихся
// в пределах окна предупреждения. Каждая подписка уведомляется один раз,
// продление сбрасывает отметку.
func (s *Service) notifyExpiring(ctx context.Context) {
	items, err := s.repo.FindExpiringSoon(ctx, s.now(), s.window)
	if err != nil {
		s.log.Error("failed to find expiring subscriptions", sl.Err(err))
		return
	}
	if len(items) == 0 {
		return
	}
	s.log.Info("found expiring subscriptions", slog.Int("count", len(items)))

	for _, item := range items {
		event := models.ExpiryNotification{
			UserID:    item.UserID,
			Language:  item.Language,
			ExpiresAt: item.ExpiresAt,
		}
		if err := s.publisher.Publish("notifications", "expiring", event); err != nil {
			s.log.Error("failed to publish expiring notification", slog.Int64("user_id", item.UserID), sl.Err(err))
			continue
		}
		notificationsPublished.WithLabelValues("expiring").Inc()
		if err := s.repo.MarkNotifiedExpiring(ctx, item.SubscriptionID); err != nil {
			s.log.Error("failed to mark notification sent", slog.String("subscription_id", item.SubscriptionID), sl.Err(err))
		}
	}
}

// processIntents исполняет накопленные намерения на провижининг
// ограниченным числом воркеров.
func (s *Service) processIntents(ctx context.Context) {
	intents, err := s.repo.DueIntents(ctx, intentBatchSize)
	if err != nil {
		s.log.Error("failed to load due intents", sl.Err(err))
		return
	}
	if len(intents) == 0 {
		return
	}
	s.log.Info("processing provisioning intents", slog.Int("count", len(intents)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, intent := range intents {
		g.Go(func() error {
			key := "sub:" + intent.SubscriptionID
			// Намерение уже исполняется другим воркером, пропускаем до
			// следующего тика.
			if !s.locks.TryLock(key) {
				return nil
			}
			defer s.locks.Unlock(key)

			s.executeIntent(gctx, intent)
			return nil
		})
	}
	_ = g.Wait()
}

// executeIntent доводит состояние панели до желаемого для одной подписки.
// Желаемое состояние перечитывается из хранилища на момент исполнения:
// намерение лишь отмечает, что подписке нужна сверка.
func (s *Service) executeIntent(ctx context.Context, intent *models.ProvisioningIntent) {
	sub, err := s.repo.GetSubscription(ctx, intent.SubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if err := s.repo.AckIntent(ctx, intent.SubscriptionID, nil); err != nil {
				s.log.Error("failed to ack orphan intent", slog.String("subscription_id", intent.SubscriptionID), sl.Err(err))
			}
			return
		}
		s.log.Error("failed to load subscription for intent", slog.String("subscription_id", intent.SubscriptionID), sl.Err(err))
		return
	}

	// Вид действия выводится из перечитанного статуса, а не из записи
	// намерения: между сканом и исполнением подписку могли продлить, и
	// тогда устаревший revoke отключил бы действующего пользователя.
	kind := models.IntentGrant
	if sub.Status == models.StatusExpired || sub.Status == models.StatusRevoked {
		kind = models.IntentRevoke
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		var remoteUUID *string
		switch kind {
		case models.IntentRevoke:
			lastErr = s.applyRevoke(ctx, sub)
		default:
			remoteUUID, lastErr = s.applyGrant(ctx, sub)
		}

		if lastErr == nil {
			if err := s.repo.AckIntent(ctx, sub.ID, remoteUUID); err != nil {
				s.log.Error("failed to ack intent", slog.String("subscription_id", sub.ID), sl.Err(err))
				return
			}
			intentsProcessed.WithLabelValues(kind, "ok").Inc()
			s.log.Info("intent applied",
				slog.String("subscription_id", sub.ID),
				slog.String("kind", kind))
			return
		}

		// Отказ панели терминален: повторы бессмысленны, нужен разбор
		// администратором.
		if errors.Is(lastErr, panel.ErrRejected) {
			s.escalate(ctx, sub.ID, kind, lastErr)
			return
		}

		s.log.Warn("panel request failed",
			slog.String("subscription_id", sub.ID),
			slog.String("kind", kind),
			slog.Int("attempt", attempt),
			sl.Err(lastErr))

		if attempt < s.cfg.MaxAttempts {
			backoff := s.cfg.BaseBackoff * (1 << (attempt - 1))
			if err := s.sleep(ctx, backoff); err != nil {
				return
			}
		}
	}

	s.escalate(ctx, sub.ID, kind, lastErr)
}

// escalate снимает намерение и помечает подписку требующей ручного
// вмешательства.
func (s *Service) escalate(ctx context.Context, subscriptionID, kind string, cause error) {
	intentsProcessed.WithLabelValues(kind, "attention").Inc()
	reason := fmt.Sprintf("%s failed: %v", kind, cause)
	if err := s.repo.FlagNeedsAttention(ctx, subscriptionID, reason); err != nil {
		s.log.Error("failed to flag subscription", slog.String("subscription_id", subscriptionID), sl.Err(err))
		return
	}
	s.log.Error("subscription needs attention",
		slog.String("subscription_id", subscriptionID),
		slog.String("reason", reason))
}

// applyGrant создаёт или обновляет пользователя панели. Возвращает UUID,
// если пользователь был создан.
func (s *Service) applyGrant(ctx context.Context, sub *models.Subscription) (*string, error) {
	if sub.RemoteUUID == nil {
		return s.createRemoteUser(ctx, sub)
	}

	req := panel.UpdateUserRequest{
		UUID:     *sub.RemoteUUID,
		ExpireAt: sub.ExpiresAt.UTC().Format(time.RFC3339),
		Status:   "ACTIVE",
	}
	_, err := s.panel.UpdateUser(ctx, req)
	if err == nil {
		return nil, nil
	}
	// Панель потеряла пользователя, создаём заново.
	if errors.Is(err, panel.ErrNotFound) {
		return s.createRemoteUser(ctx, sub)
	}
	return nil, err
}

func (s *Service) createRemoteUser(ctx context.Context, sub *models.Subscription) (*string, error) {
	user, err := s.repo.GetUser(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}

	req := panel.CreateUserRequest{
		Username:             fmt.Sprintf("tg_%d", user.ID),
		ExpireAt:             sub.ExpiresAt.UTC().Format(time.RFC3339),
		TelegramID:           user.ID,
		ActiveInternalSquads: sub.InternalSquads,
	}
	if sub.ExternalSquad != nil {
		req.ExternalSquadUUID = *sub.ExternalSquad
	}
	remote, err := s.panel.CreateUser(ctx, req)
	if err != nil {
		return nil, err
	}
	return &remote.UUID, nil
}

// applyRevoke отключает пользователя панели. Отсутствие пользователя
// считается успехом: желаемое состояние уже достигнуто.
func (s *Service) applyRevoke(ctx context.Context, sub *models.Subscription) error {
	if sub.RemoteUUID == nil {
		return nil
	}
	err := s.panel.RevokeUser(ctx, *sub.RemoteUUID)
	if err != nil && !errors.Is(err, panel.ErrNotFound) {
		return err
	}
	return nil
}
