package extend

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

	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) AdminExtend(ctx context.Context, subscriptionID string, until time.Time) error {
	return m.Called(ctx, subscriptionID, until).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func doRequest(h *Handler, subID, body string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Post("/admin/subscriptions/{id}/extend", h.ServeHTTP)

	req := httptest.NewRequest(http.MethodPost, "/admin/subscriptions/"+subID+"/extend", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	until := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       string
		setupMocks func(s *ServiceMock)
		wantStatus int
	}{
		{
			name: "success",
			body: `{"until":"2024-06-01T00:00:00Z"}`,
			setupMocks: func(s *ServiceMock) {
				s.On("AdminExtend", mock.Anything, "sub-1",
					mock.MatchedBy(func(ts time.Time) bool { return ts.Equal(until) })).
					Return(nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "subscription not found",
			body: `{"until":"2024-06-01T00:00:00Z"}`,
			setupMocks: func(s *ServiceMock) {
				s.On("AdminExtend", mock.Anything, "sub-1", mock.Anything).
					Return(repository.ErrNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing until",
			body:       `{}`,
			setupMocks: func(s *ServiceMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid json",
			body:       `not json`,
			setupMocks: func(s *ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)
			h := New(newNoopLogger(), svc)

			rec := doRequest(h, "sub-1", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}
