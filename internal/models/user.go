// Package models содержит доменные структуры: пользователи бота, подписки,
// платежи, промокоды и намерения на провижининг в удалённой панели.
package models

import "time"

// Роли пользователей бота.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User представляет пользователя бота. Создаётся при первом обращении
// и никогда не удаляется, только деактивируется.
type User struct {
	ID         int64     // Telegram ID пользователя
	Username   string    // Имя пользователя в Telegram
	Language   string    // Язык интерфейса (ru/en)
	Role       string    // Роль: customer или admin
	ReferrerID *int64    // ID пригласившего пользователя (nil, если пришёл сам)
	TrialUsed  bool      // Флаг использованного пробного периода, ставится один раз
	Active     bool      // false после деактивации
	CreatedAt  time.Time // Дата первого обращения
}
