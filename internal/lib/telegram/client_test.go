package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendMessage(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	defer server.Close()

	client := New(server.URL, "test-token")
	err := client.SendMessage(context.Background(), 12345, "hello")

	assert.NoError(t, err)
	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, int64(12345), gotBody.ChatID)
	assert.Equal(t, "hello", gotBody.Text)
}

func TestClient_SendMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"})
	}))
	defer server.Close()

	client := New(server.URL, "test-token")
	err := client.SendMessage(context.Background(), 12345, "hello")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestClient_SendMessage_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := New(server.URL, "test-token")
	err := client.SendMessage(context.Background(), 12345, "hello")

	assert.Error(t, err)
}
