package panel

import "time"

// CreateUserRequest представляет запрос на создание пользователя в панели.
type CreateUserRequest struct {
	Username             string   `json:"username"`
	ExpireAt             string   `json:"expireAt"` // ISO 8601, например "2024-02-09T00:00:00Z"
	TelegramID           int64    `json:"telegramId,omitempty"`
	Description          string   `json:"description,omitempty"`
	ExternalSquadUUID    string   `json:"externalSquadUuid,omitempty"`
	ActiveInternalSquads []string `json:"activeInternalSquads,omitempty"`
}

// UpdateUserRequest представляет запрос на изменение пользователя панели.
type UpdateUserRequest struct {
	UUID                 string   `json:"uuid"`
	ExpireAt             string   `json:"expireAt,omitempty"`
	Status               string   `json:"status,omitempty"` // ACTIVE или DISABLED
	ExternalSquadUUID    string   `json:"externalSquadUuid,omitempty"`
	ActiveInternalSquads []string `json:"activeInternalSquads,omitempty"`
}

// RemoteUser представляет состояние пользователя в панели.
type RemoteUser struct {
	UUID            string    `json:"uuid"`
	ShortUUID       string    `json:"shortUuid"`
	Username        string    `json:"username"`
	Status          string    `json:"status"`
	ExpireAt        time.Time `json:"expireAt"`
	SubscriptionURL string    `json:"subscriptionUrl"`
}

// userEnvelope — панель оборачивает ответы в поле "response".
type userEnvelope struct {
	Response RemoteUser `json:"response"`
}
