package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 2*time.Second, 100)
}

func TestClient_CreateUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req CreateUserRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user_42", req.Username)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"uuid":     "remote-uuid-1",
				"username": req.Username,
				"status":   "ACTIVE",
				"expireAt": "2024-02-09T00:00:00Z",
			},
		})
	})

	user, err := client.CreateUser(context.Background(), CreateUserRequest{
		Username: "user_42",
		ExpireAt: "2024-02-09T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "remote-uuid-1", user.UUID)
	assert.Equal(t, "ACTIVE", user.Status)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{name: "server error is retryable", statusCode: http.StatusBadGateway, wantErr: ErrUnreachable},
		{name: "client error is terminal", statusCode: http.StatusUnprocessableEntity, wantErr: ErrRejected},
		{name: "missing user", statusCode: http.StatusNotFound, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			_, err := client.GetUser(context.Background(), "some-uuid")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_UnreachableHost(t *testing.T) {
	// Закрытый сервер моделирует недоступную панель.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	client := NewClient(srv.URL, "token", time.Second, 100)

	_, err := client.GetUser(context.Background(), "uuid")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_RevokeUser(t *testing.T) {
	var calledPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calledPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	err := client.RevokeUser(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "/api/users/abc/actions/disable", calledPath)
}
