package models

import "time"

// PromoCode представляет промокод, начисляющий бонусные дни подписки.
type PromoCode struct {
	Code      string     // Сам код, первичный ключ
	BonusDays int        // Сколько дней добавляется к подписке
	MaxUses   int        // Лимит активаций
	UsedCount int        // Сколько раз уже активирован
	ExpiresAt *time.Time // Срок действия кода (nil — бессрочный)
	Active    bool       // Код можно деактивировать вручную
}

// PromoRedemption связывает пользователя с активированным промокодом.
// Пара (пользователь, код) уникальна: повторная активация невозможна.
type PromoRedemption struct {
	UserID     int64
	Code       string
	RedeemedAt time.Time
}
