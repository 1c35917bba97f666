package models

import "time"

// Способы оплаты.
const (
	MethodStars    = "stars"    // Telegram Stars
	MethodYookassa = "yookassa" // ЮKassa (фиат)
)

// Статусы платежа.
const (
	PaymentPending   = "pending"   // создан, ожидает подтверждения
	PaymentConfirmed = "confirmed" // подтверждён источником, ещё не применён
	PaymentApplied   = "applied"   // применён к подписке ровно один раз
	PaymentFailed    = "failed"    // отклонён или не прошёл проверку
)

// Payment представляет одну попытку покупки. ID платежа приходит от источника
// и служит ключом идемпотентности: платёж применяется к подписке не более
// одного раза.
type Payment struct {
	ID             string     // Идентификатор платежа от провайдера
	UserID         int64      // Покупатель
	Amount         string     // Сумма в строковом виде, например "200.00"
	Currency       string     // Валюта: XTR для Stars, RUB для ЮKassa
	Method         string     // Способ оплаты
	DurationDays   int        // Оплаченная длительность подписки в днях
	Status         string     // Статус платежа
	SubscriptionID *string    // Подписка, к которой применён платёж
	CreatedAt      time.Time
	AppliedAt      *time.Time // Момент применения к подписке
}

// PaymentEvent — событие подтверждения платежа от внешнего источника.
// Доставка как минимум однократная: повторные события с тем же ID
// не должны приводить к повторному продлению.
type PaymentEvent struct {
	PaymentID    string `json:"payment_id" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Currency     string `json:"currency" validate:"required"`
	Method       string `json:"method" validate:"required,oneof=stars yookassa"`
	DurationDays int    `json:"duration_days,omitempty"`
}
