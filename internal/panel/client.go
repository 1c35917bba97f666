// Package panel реализует клиент API панели Remnawave: создание и изменение
// пользователей, чтение их состояния и отзыв доступа.
//
// Ошибки транспорта и ответы 5xx классифицируются как ErrUnreachable
// (можно повторять), явные отказы 4xx — как ErrRejected, отсутствующий
// пользователь — как ErrNotFound. На эту классификацию опирается
// реконсайлер при выборе между повтором и эскалацией.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Классификация ошибок панели.
var (
	// ErrUnreachable — панель недоступна или ответила 5xx, запрос можно повторить.
	ErrUnreachable = errors.New("panel unreachable")
	// ErrRejected — панель явно отклонила запрос, повторять бессмысленно.
	ErrRejected = errors.New("panel rejected request")
	// ErrNotFound — пользователь в панели не найден.
	ErrNotFound = errors.New("panel user not found")
)

// Client клиент API панели.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient создаёт новый клиент панели. rps ограничивает частоту исходящих
// запросов, чтобы фоновая сверка не перегружала панель.
func NewClient(baseURL, token string, timeout time.Duration, rps int) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.baseURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out *RemoteUser) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: unexpected status %s", ErrUnreachable, resp.Status)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %s", ErrRejected, resp.Status)
	}

	if out != nil {
		var envelope userEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnreachable, err)
		}
		*out = envelope.Response
	}
	return nil
}

// CreateUser создаёт пользователя в панели и возвращает его состояние.
func (c *Client) CreateUser(ctx context.Context, reqParams CreateUserRequest) (*RemoteUser, error) {
	var user RemoteUser
	if err := c.do(ctx, http.MethodPost, "/api/users", reqParams, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser изменяет пользователя панели (дату окончания, сквады, статус).
func (c *Client) UpdateUser(ctx context.Context, reqParams UpdateUserRequest) (*RemoteUser, error) {
	var user RemoteUser
	if err := c.do(ctx, http.MethodPatch, "/api/users", reqParams, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser возвращает состояние пользователя панели по UUID.
func (c *Client) GetUser(ctx context.Context, uuid string) (*RemoteUser, error) {
	var user RemoteUser
	if err := c.do(ctx, http.MethodGet, "/api/users/"+uuid, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RevokeUser отключает пользователя панели: доступ к нодам прекращается,
// запись в панели сохраняется.
func (c *Client) RevokeUser(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, "/api/users/"+uuid+"/actions/disable", nil, nil)
}
