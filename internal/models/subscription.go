package models

import "time"

// Хранимые статусы подписки.
const (
	StatusTrialActive = "trial_active"
	StatusActive      = "active"
	StatusExpired     = "expired"
	StatusRevoked     = "revoked"
)

// StatusExpiringSoon — производный статус, не хранится в базе.
// Вычисляется из даты окончания и окна предупреждения.
const StatusExpiringSoon = "expiring_soon"

// Subscription представляет подписку пользователя. У пользователя может быть
// несколько записей (история), но текущей считается последняя неотозванная.
// Записи никогда не удаляются физически.
type Subscription struct {
	ID               string    // UUID подписки
	UserID           int64     // Владелец
	Status           string    // Хранимый статус
	ExpiresAt        time.Time // Дата окончания, не уменьшается при продлениях
	RemoteUUID       *string   // UUID пользователя в панели (nil до провижининга)
	ExternalSquad    *string   // Внешний сквад панели
	InternalSquads   []string  // Внутренние сквады панели
	NeedsAttention   bool      // Требуется ручное вмешательство администратора
	AttentionReason  *string   // Причина, по которой выставлен флаг
	NotifiedExpiring bool      // Уведомление о скором окончании уже отправлено
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
