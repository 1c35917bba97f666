// Package promo реализует HTTP-обработчик активации промокода.
package promo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
)

// Request — структура входных данных для активации промокода.
type Request struct {
	Code string `json:"code" validate:"required,min=3,max=64"`
}

// Service описывает интерфейс активации промокода.
type Service interface {
	ApplyPromo(ctx context.Context, userID int64, code string) (*lifecycle.PurchaseResult, error)
}

// Handler обрабатывает HTTP-запросы активации промокодов.
type Handler struct {
	log      *slog.Logger // Логгер для записи информации и ошибок
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Активировать промокод
// @Description Продлевает текущую подписку пользователя на бонусные дни промокода.
// @Tags Users
// @Accept  json
// @Produce  json
// @Param id path int true "Telegram ID пользователя"
// @Param request body Request true "Промокод"
// @Success 200 {object} response.Response "Новая дата окончания"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 409 {object} response.ErrorResponse "Промокод недоступен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /users/{id}/promo [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.promo"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		log.Error("invalid user id", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid user id"))
		return
	}

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

	result, err := h.service.ApplyPromo(r.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrPromoInvalid),
			errors.Is(err, lifecycle.ErrPromoExpired),
			errors.Is(err, lifecycle.ErrPromoExhausted),
			errors.Is(err, lifecycle.ErrPromoAlreadyUsed),
			errors.Is(err, lifecycle.ErrNoActiveSubscription):
			log.Info("promo rejected", slog.Int64("user_id", userID), sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			log.Error("failed to apply promo", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to apply promo code"))
		}
		return
	}

	log.Info("promo applied", slog.Int64("user_id", userID), slog.String("code", req.Code))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": result.SubscriptionID,
		"expires_at":      result.ExpiresAt,
	}))
}
