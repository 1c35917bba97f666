package promo

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) ApplyPromo(ctx context.Context, userID int64, code string) (*lifecycle.PurchaseResult, error) {
	args := m.Called(ctx, userID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lifecycle.PurchaseResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func doRequest(h *Handler, userID, body string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Post("/users/{id}/promo", h.ServeHTTP)

	req := httptest.NewRequest(http.MethodPost, "/users/"+userID+"/promo", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		setupMocks func(s *ServiceMock)
		wantStatus int
	}{
		{
			name:   "success",
			userID: "100",
			body:   `{"code":"BONUS5"}`,
			setupMocks: func(s *ServiceMock) {
				s.On("ApplyPromo", mock.Anything, int64(100), "BONUS5").
					Return(&lifecycle.PurchaseResult{
						SubscriptionID: "sub-1",
						ExpiresAt:      time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
					}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "exhausted code",
			userID: "100",
			body:   `{"code":"BONUS5"}`,
			setupMocks: func(s *ServiceMock) {
				s.On("ApplyPromo", mock.Anything, int64(100), "BONUS5").
					Return(nil, lifecycle.ErrPromoExhausted).Once()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "already used",
			userID: "100",
			body:   `{"code":"BONUS5"}`,
			setupMocks: func(s *ServiceMock) {
				s.On("ApplyPromo", mock.Anything, int64(100), "BONUS5").
					Return(nil, lifecycle.ErrPromoAlreadyUsed).Once()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing code",
			userID:     "100",
			body:       `{}`,
			setupMocks: func(s *ServiceMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid user id",
			userID:     "abc",
			body:       `{"code":"BONUS5"}`,
			setupMocks: func(s *ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)
			h := New(newNoopLogger(), svc)

			rec := doRequest(h, tt.userID, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}
