package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// CreatePromoCode вставляет новый промокод.
func (s *Storage) CreatePromoCode(ctx context.Context, promo models.PromoCode) error {
	const op = "storage.CreatePromoCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promo_codes (code, bonus_days, max_uses, expires_at, active)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query, promo.Code, promo.BonusDays,
		promo.MaxUses, promo.ExpiresAt, promo.Active); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetPromoCode возвращает промокод по коду.
func (s *Storage) GetPromoCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "storage.GetPromoCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT code, bonus_days, max_uses, used_count, expires_at, active
			  FROM promo_codes WHERE code = $1`
	row := s.DB.QueryRowContext(ctx, query, code)

	var promo models.PromoCode
	var expiresAt sql.NullTime
	if err := row.Scan(&promo.Code, &promo.BonusDays, &promo.MaxUses,
		&promo.UsedCount, &expiresAt, &promo.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if expiresAt.Valid {
		promo.ExpiresAt = &expiresAt.Time
	}
	return &promo, nil
}

// RedeemPromoParams параметры активации промокода.
type RedeemPromoParams struct {
	UserID         int64
	Code           string
	SubscriptionID string
	NewExpiresAt   time.Time
	NewStatus      string
}

// RedeemPromo активирует промокод одной транзакцией: фиксирует активацию,
// увеличивает счётчик использований и продлевает подписку. SQL-условия
// повторяют проверки бизнес-логики и решают гонки: превышение лимита даёт
// ErrPromoExhausted, повторная активация пользователем — ErrPromoAlreadyRedeemed.
func (s *Storage) RedeemPromo(ctx context.Context, p RedeemPromoParams) error {
	const op = "storage.RedeemPromo"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO promo_redemptions (user_id, code)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id, code) DO NOTHING`,
			p.UserID, p.Code)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPromoAlreadyRedeemed
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE promo_codes
			 SET used_count = used_count + 1
			 WHERE code = $1 AND used_count < max_uses`,
			p.Code)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPromoExhausted
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET expires_at = $2, status = $3, notified_expiring = false, updated_at = now()
			 WHERE id = $1`,
			p.SubscriptionID, p.NewExpiresAt, p.NewStatus); err != nil {
			return err
		}
		return upsertIntentTx(ctx, tx, p.SubscriptionID, models.IntentGrant)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GrantReferralBonus фиксирует начисление реферального бонуса и продлевает
// подписку реферера одной транзакцией. Первичный ключ по рефералу
// гарантирует, что бонус за одного приглашённого начисляется один раз:
// повторный вызов ничего не меняет и возвращает false.
func (s *Storage) GrantReferralBonus(ctx context.Context, referrerID, referredID int64, bonusDays int, subscriptionID string, newExpiresAt time.Time) (bool, error) {
	const op = "storage.GrantReferralBonus"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	granted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO referral_bonuses (referrer_id, referred_id, bonus_days)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (referred_id) DO NOTHING`,
			referrerID, referredID, bonusDays)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		granted = true

		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET expires_at = $2, notified_expiring = false, updated_at = now()
			 WHERE id = $1`,
			subscriptionID, newExpiresAt); err != nil {
			return err
		}
		return upsertIntentTx(ctx, tx, subscriptionID, models.IntentGrant)
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return granted, nil
}
