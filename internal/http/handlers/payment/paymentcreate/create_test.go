package paymentcreate

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/paymentprovider"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/payment"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) Register(ctx context.Context, p payment.RegisterParams) (*models.Payment, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) CreatePayment(ctx context.Context, idempotenceKey string, reqParams paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error) {
	args := m.Called(ctx, idempotenceKey, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.CreatePaymentResponse), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(p *ProviderMock, s *ServiceMock)
		wantStatus int
		wantInBody string
	}{
		{
			name: "stars success",
			body: `{"payment_id":"stars-1","user_id":100,"amount":"150.00","currency":"XTR","method":"stars","duration_days":30}`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {
				s.On("Register", mock.Anything, payment.RegisterParams{
					PaymentID:    "stars-1",
					UserID:       100,
					Amount:       "150.00",
					Currency:     "XTR",
					Method:       models.MethodStars,
					DurationDays: 30,
				}).Return(&models.Payment{ID: "stars-1", Status: models.PaymentPending}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "yookassa creates payment at provider",
			body: `{"user_id":100,"amount":"200.00","currency":"RUB","method":"yookassa","duration_days":30}`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {
				p.On("CreatePayment", mock.Anything, mock.Anything, paymentprovider.CreatePaymentRequest{
					Amount:       paymentprovider.Amount{Value: "200.00", Currency: "RUB"},
					Capture:      true,
					Confirmation: paymentprovider.Confirmation{Type: "redirect", ReturnURL: "https://t.me/shopbot"},
					Description:  "VPN subscription for 30 days",
					Metadata:     map[string]string{"user_id": "100"},
				}).Return(&paymentprovider.CreatePaymentResponse{
					ID:           "yk-1",
					Status:       "pending",
					Confirmation: paymentprovider.Confirmation{ConfirmationURL: "https://yookassa.ru/confirm/yk-1"},
				}, nil).Once()
				s.On("Register", mock.Anything, payment.RegisterParams{
					PaymentID:    "yk-1",
					UserID:       100,
					Amount:       "200.00",
					Currency:     "RUB",
					Method:       models.MethodYookassa,
					DurationDays: 30,
				}).Return(&models.Payment{ID: "yk-1", Status: models.PaymentPending}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantInBody: "https://yookassa.ru/confirm/yk-1",
		},
		{
			name: "provider error",
			body: `{"user_id":100,"amount":"200.00","currency":"RUB","method":"yookassa","duration_days":30}`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {
				p.On("CreatePayment", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, assert.AnError).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "stars without payment_id",
			body:       `{"user_id":100,"amount":"150.00","currency":"XTR","method":"stars","duration_days":30}`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid json",
			body:       `not json`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown method",
			body:       `{"payment_id":"pay-1","user_id":100,"amount":"200.00","currency":"RUB","method":"cash","duration_days":30}`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing duration",
			body:       `{"payment_id":"pay-1","user_id":100,"amount":"200.00","currency":"RUB","method":"stars"}`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "storage error",
			body: `{"payment_id":"pay-1","user_id":100,"amount":"150.00","currency":"XTR","method":"stars","duration_days":30}`,
			setupMocks: func(p *ProviderMock, s *ServiceMock) {
				s.On("Register", mock.Anything, mock.Anything).
					Return(nil, assert.AnError).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(ProviderMock)
			svc := new(ServiceMock)
			tt.setupMocks(provider, svc)
			h := New(newNoopLogger(), provider, svc, "https://t.me/shopbot")

			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantInBody != "" {
				assert.True(t, strings.Contains(rec.Body.String(), tt.wantInBody))
			}
			provider.AssertExpectations(t)
			svc.AssertExpectations(t)
		})
	}
}
