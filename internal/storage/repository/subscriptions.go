package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

const subscriptionColumns = `id, user_id, status, expires_at, remote_uuid,
	external_squad, array_to_string(internal_squads, ','), needs_attention,
	attention_reason, notified_expiring, created_at, updated_at`

func scanSubscription(row interface{ Scan(dest ...any) error }) (*models.Subscription, error) {
	var sub models.Subscription
	var remoteUUID, externalSquad, attentionReason, squads sql.NullString
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Status, &sub.ExpiresAt, &remoteUUID,
		&externalSquad, &squads, &sub.NeedsAttention, &attentionReason,
		&sub.NotifiedExpiring, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	if remoteUUID.Valid {
		sub.RemoteUUID = &remoteUUID.String
	}
	if externalSquad.Valid {
		sub.ExternalSquad = &externalSquad.String
	}
	if attentionReason.Valid {
		sub.AttentionReason = &attentionReason.String
	}
	if squads.Valid && squads.String != "" {
		sub.InternalSquads = strings.Split(squads.String, ",")
	}
	return &sub, nil
}

// CurrentSubscription возвращает последнюю неотозванную подписку пользователя.
func (s *Storage) CurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.CurrentSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1 AND status <> 'revoked'
			  ORDER BY created_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscription возвращает подписку по её ID.
func (s *Storage) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CreateSubscriptionWithIntent вставляет новую подписку и намерение на выдачу
// доступа одной транзакцией.
func (s *Storage) CreateSubscriptionWithIntent(ctx context.Context, sub models.Subscription) error {
	const op = "storage.CreateSubscriptionWithIntent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO subscriptions (id, user_id, status, expires_at,
				      external_squad, internal_squads)
				  VALUES ($1, $2, $3, $4, $5, string_to_array(NULLIF($6, ''), ','))`
		if _, err := tx.ExecContext(ctx, query, sub.ID, sub.UserID, sub.Status,
			sub.ExpiresAt, sub.ExternalSquad, strings.Join(sub.InternalSquads, ",")); err != nil {
			return err
		}
		return upsertIntentTx(ctx, tx, sub.ID, models.IntentGrant)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ApplyPurchaseParams параметры применения платежа к подписке.
type ApplyPurchaseParams struct {
	PaymentID    string
	Subscription models.Subscription // желаемое состояние: новая запись или новая дата окончания
}

// ApplyPurchase применяет платёж к подписке одной транзакцией: платёж
// переводится в applied, подписка создаётся или продлевается, ставится
// намерение на выдачу доступа. Идемпотентно по ID платежа: если платёж уже
// применён, возвращает false без изменений.
func (s *Storage) ApplyPurchase(ctx context.Context, p ApplyPurchaseParams) (bool, error) {
	const op = "storage.ApplyPurchase"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE payments
			 SET status = 'applied', applied_at = now()
			 WHERE id = $1 AND status <> 'applied'`,
			p.PaymentID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// Платёж уже применён конкурентной доставкой.
			return nil
		}
		applied = true

		// Подписка вставляется до простановки ссылки в платеже:
		// внешний ключ payments.subscription_id проверяется на каждом
		// операторе, и для первой покупки строки подписки ещё нет.
		query := `INSERT INTO subscriptions (id, user_id, status, expires_at,
				      external_squad, internal_squads)
				  VALUES ($1, $2, $3, $4, $5, string_to_array(NULLIF($6, ''), ','))
				  ON CONFLICT (id) DO UPDATE
				  SET status = EXCLUDED.status,
				      expires_at = EXCLUDED.expires_at,
				      updated_at = now()`
		sub := p.Subscription
		if _, err := tx.ExecContext(ctx, query, sub.ID, sub.UserID, sub.Status,
			sub.ExpiresAt, sub.ExternalSquad, strings.Join(sub.InternalSquads, ",")); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE payments SET subscription_id = $2 WHERE id = $1`,
			p.PaymentID, sub.ID); err != nil {
			return err
		}
		return upsertIntentTx(ctx, tx, sub.ID, models.IntentGrant)
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return applied, nil
}

// ExtendSubscription устанавливает новую дату окончания и ставит намерение
// на обновление доступа. Используется промокодами, реферальными бонусами и
// административным продлением.
func (s *Storage) ExtendSubscription(ctx context.Context, id string, expiresAt time.Time, status string) error {
	const op = "storage.ExtendSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET expires_at = $2, status = $3, notified_expiring = false, updated_at = now()
			 WHERE id = $1`,
			id, expiresAt, status)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return upsertIntentTx(ctx, tx, id, models.IntentGrant)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeSubscription переводит подписку в revoked и ставит намерение
// на отзыв доступа.
func (s *Storage) RevokeSubscription(ctx context.Context, id, reason string) error {
	const op = "storage.RevokeSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET status = 'revoked', attention_reason = $2, updated_at = now()
			 WHERE id = $1`,
			id, reason)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return upsertIntentTx(ctx, tx, id, models.IntentRevoke)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExpireOverdue переводит в expired все активные подписки с прошедшей датой
// окончания и ставит намерения на отзыв доступа. Возвращает затронутые ID.
func (s *Storage) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	const op = "storage.ExpireOverdue"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var ids []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`UPDATE subscriptions
			 SET status = 'expired', updated_at = now()
			 WHERE status IN ('active', 'trial_active') AND expires_at <= $1
			 RETURNING id`,
			now)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for _, id := range ids {
			if err := upsertIntentTx(ctx, tx, id, models.IntentRevoke); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

// ExpiringSubscription связывает подписку с данными пользователя
// для отправки уведомления.
type ExpiringSubscription struct {
	SubscriptionID string
	UserID         int64
	Language       string
	ExpiresAt      time.Time
}

// FindExpiringSoon возвращает активные подписки, заканчивающиеся в пределах
// окна предупреждения, по которым уведомление ещё не отправлялось.
func (s *Storage) FindExpiringSoon(ctx context.Context, now time.Time, window time.Duration) ([]ExpiringSubscription, error) {
	const op = "storage.FindExpiringSoon"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT s.id, s.user_id, u.language, s.expires_at
			  FROM subscriptions s
			  JOIN users u ON u.id = s.user_id
			  WHERE s.status IN ('active', 'trial_active')
			    AND s.notified_expiring = false
			    AND s.expires_at > $1
			    AND s.expires_at <= $2
			  ORDER BY s.expires_at`
	rows, err := s.DB.QueryContext(ctx, query, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []ExpiringSubscription
	for rows.Next() {
		var item ExpiringSubscription
		if err := rows.Scan(&item.SubscriptionID, &item.UserID, &item.Language, &item.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkNotifiedExpiring отмечает, что уведомление о скором окончании отправлено.
func (s *Storage) MarkNotifiedExpiring(ctx context.Context, id string) error {
	const op = "storage.MarkNotifiedExpiring"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE subscriptions SET notified_expiring = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FlagNeedsAttention помечает подписку требующей ручного вмешательства и
// снимает намерение: автоматические попытки прекращаются до разбора
// администратором.
func (s *Storage) FlagNeedsAttention(ctx context.Context, id, reason string) error {
	const op = "storage.FlagNeedsAttention"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET needs_attention = true, attention_reason = $2, updated_at = now()
			 WHERE id = $1`,
			id, reason); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM provisioning_intents WHERE subscription_id = $1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearNeedsAttention снимает флаг и возвращает подписку в автоматический
// цикл сверки, заново выставляя намерение.
func (s *Storage) ClearNeedsAttention(ctx context.Context, id, intentKind string) error {
	const op = "storage.ClearNeedsAttention"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET needs_attention = false, attention_reason = NULL, updated_at = now()
			 WHERE id = $1`,
			id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return upsertIntentTx(ctx, tx, id, intentKind)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListNeedsAttention возвращает подписки, ожидающие ручного вмешательства.
func (s *Storage) ListNeedsAttention(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	const op = "storage.ListNeedsAttention"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE needs_attention = true
			  ORDER BY updated_at DESC
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
