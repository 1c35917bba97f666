// Package paymentwebhook реализует HTTP-обработчик вебхука от ЮKassa.
//
// Обработчик проверяет HMAC-подпись тела запроса, преобразует событие
// провайдера в доменное событие подтверждения платежа и передаёт его
// сервису платежей. Повторные доставки безопасны: применение платежа
// идемпотентно по его ID.
package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/payment"
)

// Service описывает интерфейс подтверждения платежа.
type Service interface {
	Confirm(ctx context.Context, event models.PaymentEvent) (*lifecycle.PurchaseResult, error)
}

// Handler обрабатывает вебхуки платёжного провайдера.
type Handler struct {
	log           *slog.Logger // Логгер для записи информации и ошибок
	service       Service
	webhookSecret string // Секрет для проверки подписи
}

// New создает новый Handler с переданными логгером, сервисом и секретом.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// Payload — тело вебхука ЮKassa.
type Payload struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`     // ID платежа
		Status string `json:"status"` // статус платежа
		Amount struct {
			Value    string `json:"value"`    // сумма в строке, например "100.00"
			Currency string `json:"currency"` // валюта
		} `json:"amount"`
	} `json:"object"`
}

// verifySignature проверяет подпись вебхука из заголовка X-Api-Signature.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Вебхук подтверждения платежа
// @Description Принимает события от ЮKassa. Требует HMAC-подпись в заголовке X-Api-Signature.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Payload true "Событие платёжного провайдера"
// @Success 200 {object} response.Response "Событие обработано"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело запроса"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки события"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if payload.Event != "payment.succeeded" {
		log.Info("ignored webhook event", slog.String("event", payload.Event))
		w.WriteHeader(http.StatusOK)
		render.JSON(w, r, response.OKWithData(map[string]any{"ignored": true}))
		return
	}

	event := models.PaymentEvent{
		PaymentID: payload.Object.ID,
		Amount:    payload.Object.Amount.Value,
		Currency:  payload.Object.Amount.Currency,
		Method:    models.MethodYookassa,
	}

	result, err := h.service.Confirm(r.Context(), event)
	if err != nil {
		// Терминальные ошибки не лечатся повторной доставкой, отвечаем 200,
		// чтобы провайдер прекратил повторы.
		if errors.Is(err, payment.ErrUnknownPayment) ||
			errors.Is(err, payment.ErrPaymentMismatch) ||
			errors.Is(err, payment.ErrPaymentFailed) {
			log.Warn("webhook event rejected", slog.String("payment_id", payload.Object.ID), sl.Err(err))
			w.WriteHeader(http.StatusOK)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to process event"))
		return
	}

	log.Info("webhook processed",
		slog.String("payment_id", payload.Object.ID),
		slog.String("subscription_id", result.SubscriptionID))
	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": result.SubscriptionID,
		"expires_at":      result.ExpiresAt,
	}))
}
