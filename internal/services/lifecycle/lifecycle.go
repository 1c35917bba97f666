// Package lifecycle содержит движок жизненного цикла подписок: активацию
// пробного периода, применение платежей и промокодов, отзыв и продление.
// Все операции, меняющие подписку одного пользователя, сериализуются
// по ключу пользователя.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/vpn-shop-core/internal/config"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/keylock"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// Repository определяет методы хранилища, нужные движку жизненного цикла.
type Repository interface {
	// GetOrCreateUser возвращает пользователя, создавая запись при первом обращении.
	GetOrCreateUser(ctx context.Context, id int64, username, language string, referrerID *int64) (*models.User, error)
	// GetUser возвращает пользователя по ID.
	GetUser(ctx context.Context, id int64) (*models.User, error)
	// MarkTrialUsed ставит флаг использованного пробного периода, если он ещё не стоит.
	MarkTrialUsed(ctx context.Context, userID int64) (bool, error)
	// CurrentSubscription возвращает последнюю неотозванную подписку пользователя.
	CurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	// GetSubscription возвращает подписку по ID.
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	// CreateSubscriptionWithIntent создаёт подписку вместе с намерением на выдачу доступа.
	CreateSubscriptionWithIntent(ctx context.Context, sub models.Subscription) error
	// ApplyPurchase атомарно применяет платёж к подписке.
	ApplyPurchase(ctx context.Context, p repository.ApplyPurchaseParams) (bool, error)
	// ExtendSubscription устанавливает новую дату окончания подписки.
	ExtendSubscription(ctx context.Context, id string, expiresAt time.Time, status string) error
	// RevokeSubscription отзывает подписку.
	RevokeSubscription(ctx context.Context, id, reason string) error
	// GetPayment возвращает платёж по ID.
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	// CountAppliedPayments возвращает число применённых платежей пользователя.
	CountAppliedPayments(ctx context.Context, userID int64) (int, error)
	// GetPromoCode возвращает промокод.
	GetPromoCode(ctx context.Context, code string) (*models.PromoCode, error)
	// RedeemPromo атомарно активирует промокод для пользователя.
	RedeemPromo(ctx context.Context, p repository.RedeemPromoParams) error
	// GrantReferralBonus начисляет бонусные дни пригласившему, не более одного раза.
	GrantReferralBonus(ctx context.Context, referrerID, referredID int64, bonusDays int, subscriptionID string, newExpiresAt time.Time) (bool, error)
}

// Service реализует операции жизненного цикла подписок.
type Service struct {
	repo  Repository
	locks *keylock.KeyLock
	cfg   config.Lifecycle
	log   *slog.Logger
	now   func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, cfg config.Lifecycle, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		locks: keylock.New(),
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

func userKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// RegisterUser возвращает пользователя, создавая запись при первом обращении.
// Реферальная связь фиксируется только при создании и не меняется позже.
func (s *Service) RegisterUser(ctx context.Context, id int64, username, language string, referrerID *int64) (*models.User, error) {
	return s.repo.GetOrCreateUser(ctx, id, username, language, referrerID)
}

// ActivateTrial выдаёт пользователю пробную подписку. Пробный период
// доступен один раз за всю историю пользователя, независимо от дальнейших
// покупок и истечений.
func (s *Service) ActivateTrial(ctx context.Context, userID int64) (*models.Subscription, error) {
	key := userKey(userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TrialUsed {
		return nil, ErrTrialAlreadyUsed
	}

	ok, err := s.repo.MarkTrialUsed(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTrialAlreadyUsed
	}

	now := s.now()
	externalSquad := s.cfg.DefaultExternalSquad
	sub := models.Subscription{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         models.StatusTrialActive,
		ExpiresAt:      now.AddDate(0, 0, s.cfg.TrialDays),
		ExternalSquad:  &externalSquad,
		InternalSquads: s.cfg.DefaultInternalSquads,
	}
	if err := s.repo.CreateSubscriptionWithIntent(ctx, sub); err != nil {
		return nil, err
	}

	s.log.Info("trial activated",
		slog.Int64("user_id", userID),
		slog.String("subscription_id", sub.ID),
		slog.Time("expires_at", sub.ExpiresAt))
	return &sub, nil
}

// PurchaseResult результат применения платежа к подписке.
type PurchaseResult struct {
	SubscriptionID string
	ExpiresAt      time.Time
	AlreadyApplied bool
}

// ApplyPurchase применяет подтверждённый платёж к подписке пользователя:
// продлевает текущую подписку или создаёт новую, если текущей нет.
// Идемпотентно по ID платежа: повторное применение возвращает результат
// первого без изменений.
func (s *Service) ApplyPurchase(ctx context.Context, payment *models.Payment) (*PurchaseResult, error) {
	key := userKey(payment.UserID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	now := s.now()
	duration := time.Duration(payment.DurationDays) * 24 * time.Hour

	sub, err := s.desiredSubscription(ctx, payment.UserID, now, duration)
	if err != nil {
		return nil, err
	}

	applied, err := s.repo.ApplyPurchase(ctx, repository.ApplyPurchaseParams{
		PaymentID:    payment.ID,
		Subscription: *sub,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.priorResult(ctx, payment.ID)
	}

	s.log.Info("payment applied",
		slog.String("payment_id", payment.ID),
		slog.Int64("user_id", payment.UserID),
		slog.String("subscription_id", sub.ID),
		slog.Time("expires_at", sub.ExpiresAt))

	s.maybeGrantReferralBonus(ctx, payment.UserID)

	return &PurchaseResult{SubscriptionID: sub.ID, ExpiresAt: sub.ExpiresAt}, nil
}

// desiredSubscription строит желаемое состояние подписки после применения
// платежа: продление текущей или новая запись.
func (s *Service) desiredSubscription(ctx context.Context, userID int64, now time.Time, duration time.Duration) (*models.Subscription, error) {
	cur, err := s.repo.CurrentSubscription(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		externalSquad := s.cfg.DefaultExternalSquad
		return &models.Subscription{
			ID:             uuid.NewString(),
			UserID:         userID,
			Status:         models.StatusActive,
			ExpiresAt:      now.Add(duration),
			ExternalSquad:  &externalSquad,
			InternalSquads: s.cfg.DefaultInternalSquads,
		}, nil
	}
	next := *cur
	next.Status = models.StatusActive
	next.ExpiresAt = NextExpiry(cur.ExpiresAt, now, duration)
	return &next, nil
}

// priorResult возвращает результат первого применения платежа.
func (s *Service) priorResult(ctx context.Context, paymentID string) (*PurchaseResult, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.SubscriptionID == nil {
		return nil, fmt.Errorf("payment %s applied without subscription", paymentID)
	}
	sub, err := s.repo.GetSubscription(ctx, *payment.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{
		SubscriptionID: sub.ID,
		ExpiresAt:      sub.ExpiresAt,
		AlreadyApplied: true,
	}, nil
}

// maybeGrantReferralBonus начисляет бонусные дни пригласившему после первого
// применённого платежа приглашённого. Ошибки начисления не откатывают платёж.
func (s *Service) maybeGrantReferralBonus(ctx context.Context, userID int64) {
	if s.cfg.ReferralBonusDays <= 0 {
		return
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.log.Warn("failed to load user for referral bonus", slog.Int64("user_id", userID), slog.Any("err", err))
		return
	}
	if user.ReferrerID == nil {
		return
	}
	count, err := s.repo.CountAppliedPayments(ctx, userID)
	if err != nil {
		s.log.Warn("failed to count payments for referral bonus", slog.Int64("user_id", userID), slog.Any("err", err))
		return
	}
	if count != 1 {
		return
	}

	refSub, err := s.repo.CurrentSubscription(ctx, *user.ReferrerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("failed to load referrer subscription", slog.Int64("referrer_id", *user.ReferrerID), slog.Any("err", err))
		}
		return
	}

	now := s.now()
	bonus := time.Duration(s.cfg.ReferralBonusDays) * 24 * time.Hour
	newExpiresAt := NextExpiry(refSub.ExpiresAt, now, bonus)
	granted, err := s.repo.GrantReferralBonus(ctx, *user.ReferrerID, userID, s.cfg.ReferralBonusDays, refSub.ID, newExpiresAt)
	if err != nil {
		s.log.Warn("failed to grant referral bonus", slog.Int64("referrer_id", *user.ReferrerID), slog.Any("err", err))
		return
	}
	if granted {
		s.log.Info("referral bonus granted",
			slog.Int64("referrer_id", *user.ReferrerID),
			slog.Int64("referred_id", userID),
			slog.Int("bonus_days", s.cfg.ReferralBonusDays))
	}
}

// ApplyPromo активирует промокод для пользователя и продлевает его текущую
// подписку на бонусные дни. Каждый пользователь может активировать код
// не более одного раза, общее число активаций ограничено лимитом кода.
func (s *Service) ApplyPromo(ctx context.Context, userID int64, code string) (*PurchaseResult, error) {
	key := userKey(userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	now := s.now()
	promo, err := s.repo.GetPromoCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPromoInvalid
		}
		return nil, err
	}
	if !promo.Active {
		return nil, ErrPromoInvalid
	}
	if promo.ExpiresAt != nil && !promo.ExpiresAt.After(now) {
		return nil, ErrPromoExpired
	}
	if promo.UsedCount >= promo.MaxUses {
		return nil, ErrPromoExhausted
	}

	cur, err := s.repo.CurrentSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}

	bonus := time.Duration(promo.BonusDays) * 24 * time.Hour
	newExpiresAt := NextExpiry(cur.ExpiresAt, now, bonus)
	newStatus := cur.Status
	if Evaluate(cur, now, 0) == models.StatusExpired {
		newStatus = models.StatusActive
	}

	err = s.repo.RedeemPromo(ctx, repository.RedeemPromoParams{
		UserID:         userID,
		Code:           code,
		SubscriptionID: cur.ID,
		NewExpiresAt:   newExpiresAt,
		NewStatus:      newStatus,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPromoAlreadyRedeemed):
			return nil, ErrPromoAlreadyUsed
		case errors.Is(err, repository.ErrPromoExhausted):
			return nil, ErrPromoExhausted
		default:
			return nil, err
		}
	}

	s.log.Info("promo code applied",
		slog.Int64("user_id", userID),
		slog.String("code", code),
		slog.Time("expires_at", newExpiresAt))
	return &PurchaseResult{SubscriptionID: cur.ID, ExpiresAt: newExpiresAt}, nil
}

// Revoke отзывает подписку. Отзыв терминален: запись больше не участвует
// в продлениях, следующая покупка создаёт новую подписку.
func (s *Service) Revoke(ctx context.Context, subscriptionID, reason string) error {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	key := userKey(sub.UserID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.repo.RevokeSubscription(ctx, subscriptionID, reason); err != nil {
		return err
	}
	s.log.Info("subscription revoked",
		slog.String("subscription_id", subscriptionID),
		slog.String("reason", reason))
	return nil
}

// AdminExtend устанавливает подписке произвольную дату окончания в обход
// оплаты. Единственная операция, которой разрешено сдвигать дату назад.
func (s *Service) AdminExtend(ctx context.Context, subscriptionID string, until time.Time) error {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	key := userKey(sub.UserID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	newStatus := models.StatusActive
	if !until.After(s.now()) {
		newStatus = models.StatusExpired
	}
	if err := s.repo.ExtendSubscription(ctx, subscriptionID, until, newStatus); err != nil {
		return err
	}

	s.log.Info("subscription extended by admin",
		slog.String("subscription_id", subscriptionID),
		slog.Time("expires_at", until))
	return nil
}

// UserStatus результат запроса статуса подписки пользователя.
type UserStatus struct {
	Status         string     `json:"status"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TrialUsed      bool       `json:"trial_used"`
}

// Status возвращает эффективный статус подписки пользователя на текущий
// момент. Операция только читает состояние.
func (s *Service) Status(ctx context.Context, userID int64) (*UserStatus, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.CurrentSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &UserStatus{Status: StatusNone, TrialUsed: user.TrialUsed}, nil
		}
		return nil, err
	}

	return &UserStatus{
		Status:         Evaluate(sub, s.now(), s.cfg.ExpiringSoonWindow),
		SubscriptionID: sub.ID,
		ExpiresAt:      &sub.ExpiresAt,
		TrialUsed:      user.TrialUsed,
	}, nil
}
