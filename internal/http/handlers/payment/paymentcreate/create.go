// Package paymentcreate реализует HTTP-обработчик регистрации платежа.
//
// Для оплаты через ЮKassa платёж сначала создаётся у провайдера, и его
// идентификатор становится локальным ключом идемпотентности. Для оплаты
// через Telegram Stars идентификатор счёта передаёт бот. В обоих случаях
// платёж регистрируется в статусе pending: так подтверждение от провайдера
// может сверить сумму и валюту с ожидаемыми.
package paymentcreate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/paymentprovider"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/payment"
)

// Request — структура входных данных для регистрации платежа.
// PaymentID обязателен только для stars: для yookassa идентификатор
// выдаёт провайдер.
type Request struct {
	PaymentID    string `json:"payment_id" validate:"omitempty"`
	UserID       int64  `json:"user_id" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Currency     string `json:"currency" validate:"required"`
	Method       string `json:"method" validate:"required,oneof=stars yookassa"`
	DurationDays int    `json:"duration_days" validate:"required,gt=0"`
}

// Service описывает интерфейс регистрации платежа.
type Service interface {
	Register(ctx context.Context, p payment.RegisterParams) (*models.Payment, error)
}

// Provider описывает создание платежа у ЮKassa.
type Provider interface {
	CreatePayment(ctx context.Context, idempotenceKey string, reqParams paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error)
}

// Handler обрабатывает HTTP-запросы регистрации платежей.
type Handler struct {
	log       *slog.Logger        // Логгер для записи информации и ошибок
	provider  Provider            // Клиент ЮKassa
	service   Service             // Сервис бизнес-логики платежей
	returnURL string              // Куда вернуть пользователя после оплаты
	validate  *validator.Validate // Валидатор структуры входящих данных
}

// New создает новый Handler с переданными логгером, провайдером и сервисом.
func New(log *slog.Logger, provider Provider, service Service, returnURL string) *Handler {
	return &Handler{
		log:       log,
		provider:  provider,
		service:   service,
		returnURL: returnURL,
		validate:  validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Зарегистрировать платёж
// @Description Для yookassa создаёт платёж у провайдера и возвращает ссылку на оплату. Для stars регистрирует счёт, выставленный ботом.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные платежа"
// @Success 200 {object} response.Response "Платёж зарегистрирован"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /payments [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	paymentID := req.PaymentID
	var confirmationURL string

	switch req.Method {
	case models.MethodStars:
		if paymentID == "" {
			log.Error("missing payment_id for stars payment")
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("field PaymentID is a required field"))
			return
		}
	case models.MethodYookassa:
		created, err := h.provider.CreatePayment(r.Context(), uuid.NewString(),
			paymentprovider.CreatePaymentRequest{
				Amount:       paymentprovider.Amount{Value: req.Amount, Currency: req.Currency},
				Capture:      true,
				Confirmation: paymentprovider.Confirmation{Type: "redirect", ReturnURL: h.returnURL},
				Description:  fmt.Sprintf("VPN subscription for %d days", req.DurationDays),
				Metadata:     map[string]string{"user_id": fmt.Sprintf("%d", req.UserID)},
			})
		if err != nil {
			log.Error("failed to create payment at provider", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to create payment"))
			return
		}
		paymentID = created.ID
		confirmationURL = created.Confirmation.ConfirmationURL
	}

	created, err := h.service.Register(r.Context(), payment.RegisterParams{
		PaymentID:    paymentID,
		UserID:       req.UserID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Method:       req.Method,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		log.Error("failed to register payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to register payment"))
		return
	}

	log.Info("payment registered", slog.String("payment_id", created.ID))
	data := map[string]any{
		"payment_id": created.ID,
		"status":     created.Status,
	}
	if confirmationURL != "" {
		data["confirmation_url"] = confirmationURL
	}
	render.JSON(w, r, response.OKWithData(data))
}
