package login

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/jwt"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestHandler(t *testing.T) {
	maker := jwt.NewJWTMaker("jwt-secret", time.Hour)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "success",
			body:       `{"username":"admin","secret_key":"admin-secret"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong secret",
			body:       `{"username":"admin","secret_key":"wrong"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing secret",
			body:       `{"username":"admin"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid json",
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(newNoopLogger(), maker, "admin-secret")

			req := httptest.NewRequest(http.MethodPost, "/admin/login", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, rec.Body.String(), "token")
			}
		})
	}
}
