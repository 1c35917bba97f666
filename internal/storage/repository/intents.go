package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// upsertIntentTx выставляет намерение на провижининг внутри транзакции.
// На подписку существует не более одной записи: новое намерение
// перезаписывает прежнее.
func upsertIntentTx(ctx context.Context, tx *sql.Tx, subscriptionID, kind string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO provisioning_intents (subscription_id, kind)
		 VALUES ($1, $2)
		 ON CONFLICT (subscription_id) DO UPDATE
		 SET kind = EXCLUDED.kind, updated_at = now()`,
		subscriptionID, kind)
	return err
}

// DueIntents возвращает намерения, ожидающие исполнения реконсайлером.
func (s *Storage) DueIntents(ctx context.Context, limit int) ([]*models.ProvisioningIntent, error) {
	const op = "storage.DueIntents"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT subscription_id, kind, updated_at
			  FROM provisioning_intents
			  ORDER BY updated_at
			  LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []*models.ProvisioningIntent
	for rows.Next() {
		var intent models.ProvisioningIntent
		if err := rows.Scan(&intent.SubscriptionID, &intent.Kind, &intent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// AckIntent подтверждает исполнение намерения: удаляет запись и сохраняет
// выданный панелью UUID одной транзакцией.
func (s *Storage) AckIntent(ctx context.Context, subscriptionID string, remoteUUID *string) error {
	const op = "storage.AckIntent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if remoteUUID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE subscriptions SET remote_uuid = $2, updated_at = now() WHERE id = $1`,
				subscriptionID, *remoteUUID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM provisioning_intents WHERE subscription_id = $1`, subscriptionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
