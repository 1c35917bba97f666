package models

import "time"

// Виды намерений на провижининг.
const (
	IntentGrant  = "grant"  // выдать или продлить доступ в панели
	IntentRevoke = "revoke" // отозвать доступ в панели
)

// ProvisioningIntent — запись "подписке X нужно удалённое состояние Y".
// Создаётся движком жизненного цикла, исполняется реконсайлером и удаляется
// после подтверждения панели. На подписку существует не более одной записи:
// повторное намерение перезаписывает прежнее.
type ProvisioningIntent struct {
	SubscriptionID string    // Подписка, для которой нужно действие
	Kind           string    // grant или revoke
	UpdatedAt      time.Time // Момент последнего изменения намерения
}

// ExpiryNotification — событие для отправки пользователю уведомления
// о скором или наступившем окончании подписки. Публикуется в RabbitMQ.
type ExpiryNotification struct {
	UserID    int64     `json:"user_id"`
	Language  string    `json:"language"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"` // true — подписка уже закончилась
}
