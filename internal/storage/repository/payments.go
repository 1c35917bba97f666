package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// CreatePayment вставляет новый платёж в статусе pending.
// ID платежа приходит от провайдера и уникален глобально.
func (s *Storage) CreatePayment(ctx context.Context, payment models.Payment) error {
	const op = "storage.CreatePayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (id, user_id, amount, currency, method, duration_days, status)
			  VALUES ($1, $2, $3, $4, $5, $6, 'pending')`
	if _, err := s.DB.ExecContext(ctx, query, payment.ID, payment.UserID, payment.Amount,
		payment.Currency, payment.Method, payment.DurationDays); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetPayment возвращает платёж по ID провайдера.
func (s *Storage) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	const op = "storage.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount, currency, method, duration_days, status,
			      subscription_id, created_at, applied_at
			  FROM payments WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)

	var p models.Payment
	var subscriptionID sql.NullString
	var appliedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Method,
		&p.DurationDays, &p.Status, &subscriptionID, &p.CreatedAt, &appliedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if subscriptionID.Valid {
		p.SubscriptionID = &subscriptionID.String
	}
	if appliedAt.Valid {
		p.AppliedAt = &appliedAt.Time
	}
	return &p, nil
}

// MarkPaymentFailed переводит платёж в статус failed, если он ещё не применён.
func (s *Storage) MarkPaymentFailed(ctx context.Context, id string) error {
	const op = "storage.MarkPaymentFailed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE payments SET status = 'failed' WHERE id = $1 AND status <> 'applied'`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountAppliedPayments возвращает количество применённых платежей пользователя.
// Используется для начисления реферального бонуса за первую оплату.
func (s *Storage) CountAppliedPayments(ctx context.Context, userID int64) (int, error) {
	const op = "storage.CountAppliedPayments"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM payments WHERE user_id = $1 AND status = 'applied'`,
		userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// ListPayments возвращает платежи пользователя с пагинацией.
func (s *Storage) ListPayments(ctx context.Context, userID int64, limit, offset int) ([]*models.Payment, error) {
	const op = "storage.ListPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount, currency, method, duration_days, status,
			      subscription_id, created_at, applied_at
			  FROM payments
			  WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []*models.Payment
	for rows.Next() {
		var p models.Payment
		var subscriptionID sql.NullString
		var appliedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Method,
			&p.DurationDays, &p.Status, &subscriptionID, &p.CreatedAt, &appliedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if subscriptionID.Valid {
			p.SubscriptionID = &subscriptionID.String
		}
		if appliedAt.Valid {
			p.AppliedAt = &appliedAt.Time
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
