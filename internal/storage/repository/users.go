package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// GetOrCreateUser возвращает пользователя по Telegram ID, создавая запись
// при первом обращении. Реферер фиксируется только в момент создания.
func (s *Storage) GetOrCreateUser(ctx context.Context, id int64, username, language string, referrerID *int64) (*models.User, error) {
	const op = "storage.GetOrCreateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (id, username, language, role, referrer_id)
			  VALUES ($1, $2, $3, 'customer', $4)
			  ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
			  RETURNING id, username, language, role, referrer_id, trial_used, active, created_at`
	row := s.DB.QueryRowContext(ctx, query, id, username, language, referrerID)

	var u models.User
	var referrer sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.Language, &u.Role, &referrer,
		&u.TrialUsed, &u.Active, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if referrer.Valid {
		u.ReferrerID = &referrer.Int64
	}
	return &u, nil
}

// GetUser возвращает пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, username, language, role, referrer_id, trial_used, active, created_at
			  FROM users WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)

	var u models.User
	var referrer sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.Language, &u.Role, &referrer,
		&u.TrialUsed, &u.Active, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if referrer.Valid {
		u.ReferrerID = &referrer.Int64
	}
	return &u, nil
}

// MarkTrialUsed проставляет флаг использованного триала. Условие в запросе
// гарантирует, что из двух конкурентных попыток выигрывает ровно одна:
// вторая получает false.
func (s *Storage) MarkTrialUsed(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.MarkTrialUsed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET trial_used = true WHERE id = $1 AND trial_used = false`
	result, err := s.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected == 1, nil
}

// DeactivateUser помечает пользователя неактивным. Записи не удаляются.
func (s *Storage) DeactivateUser(ctx context.Context, userID int64) error {
	const op = "storage.DeactivateUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE users SET active = false WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
