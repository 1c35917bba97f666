// Package payment содержит обработку платежей: регистрацию ожидающих
// платежей и подтверждение от внешних источников. Источники доставляют
// события как минимум один раз, поэтому подтверждение идемпотентно
// по ID платежа.
package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// Ошибки обработки платежей.
var (
	// ErrUnknownPayment — событие ссылается на незарегистрированный платёж.
	ErrUnknownPayment = errors.New("unknown payment")
	// ErrPaymentMismatch — сумма или валюта события не совпадают с зарегистрированными.
	ErrPaymentMismatch = errors.New("payment amount or currency mismatch")
	// ErrPaymentFailed — платёж уже помечен неуспешным.
	ErrPaymentFailed = errors.New("payment already failed")
)

// Repository определяет методы хранилища платежей.
type Repository interface {
	// CreatePayment регистрирует новый платёж в статусе pending.
	CreatePayment(ctx context.Context, payment models.Payment) error
	// GetPayment возвращает платёж по ID.
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	// MarkPaymentFailed помечает платёж неуспешным, не трогая применённые.
	MarkPaymentFailed(ctx context.Context, id string) error
	// ListPayments возвращает платежи пользователя с пагинацией.
	ListPayments(ctx context.Context, userID int64, limit, offset int) ([]*models.Payment, error)
}

// Lifecycle определяет операцию применения платежа к подписке.
type Lifecycle interface {
	ApplyPurchase(ctx context.Context, payment *models.Payment) (*lifecycle.PurchaseResult, error)
}

// Service реализует регистрацию и подтверждение платежей.
type Service struct {
	repo      Repository
	lifecycle Lifecycle
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, lc Lifecycle, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		lifecycle: lc,
		log:       log,
	}
}

// RegisterParams параметры регистрации платежа.
type RegisterParams struct {
	PaymentID    string
	UserID       int64
	Amount       string
	Currency     string
	Method       string
	DurationDays int
}

// Register создаёт платёж в статусе pending. Платёж регистрируется до
// выставления счёта пользователю, чтобы подтверждение могло сверить
// сумму и валюту.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*models.Payment, error) {
	payment := models.Payment{
		ID:           p.PaymentID,
		UserID:       p.UserID,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Method:       p.Method,
		DurationDays: p.DurationDays,
		Status:       models.PaymentPending,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	s.log.Info("payment registered",
		slog.String("payment_id", p.PaymentID),
		slog.Int64("user_id", p.UserID),
		slog.String("amount", p.Amount),
		slog.String("currency", p.Currency))
	return &payment, nil
}

// Confirm обрабатывает событие подтверждения платежа. Событие сверяется
// с зарегистрированным платежом, при расхождении суммы, валюты или способа
// оплаты платёж помечается неуспешным. Повторное подтверждение возвращает
// результат первого применения.
func (s *Service) Confirm(ctx context.Context, event models.PaymentEvent) (*lifecycle.PurchaseResult, error) {
	payment, err := s.repo.GetPayment(ctx, event.PaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownPayment
		}
		return nil, err
	}

	if payment.Status == models.PaymentFailed {
		return nil, ErrPaymentFailed
	}

	if payment.Amount != event.Amount || payment.Currency != event.Currency || payment.Method != event.Method {
		s.log.Warn("payment mismatch",
			slog.String("payment_id", event.PaymentID),
			slog.String("want_amount", payment.Amount),
			slog.String("got_amount", event.Amount),
			slog.String("want_currency", payment.Currency),
			slog.String("got_currency", event.Currency),
			slog.String("want_method", payment.Method),
			slog.String("got_method", event.Method))
		if err := s.repo.MarkPaymentFailed(ctx, event.PaymentID); err != nil {
			s.log.Error("failed to mark payment failed", slog.String("payment_id", event.PaymentID), slog.Any("err", err))
		}
		return nil, ErrPaymentMismatch
	}

	result, err := s.lifecycle.ApplyPurchase(ctx, payment)
	if err != nil {
		return nil, err
	}
	if result.AlreadyApplied {
		s.log.Info("duplicate payment confirmation",
			slog.String("payment_id", event.PaymentID),
			slog.String("subscription_id", result.SubscriptionID))
	}
	return result, nil
}

// List возвращает платежи пользователя с пагинацией.
func (s *Service) List(ctx context.Context, userID int64, limit, offset int) ([]*models.Payment, error) {
	return s.repo.ListPayments(ctx, userID, limit, offset)
}
