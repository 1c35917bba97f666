// Package extend реализует HTTP-обработчик административного изменения
// даты окончания подписки.
package extend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// Request — структура входных данных для изменения даты окончания.
type Request struct {
	Until time.Time `json:"until" validate:"required"`
}

// Service описывает интерфейс административного продления.
type Service interface {
	AdminExtend(ctx context.Context, subscriptionID string, until time.Time) error
}

// Handler обрабатывает HTTP-запросы изменения даты окончания.
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
// @Summary Изменить дату окончания подписки
// @Description Устанавливает произвольную дату окончания в обход оплаты. Единственная операция, сдвигающая дату назад.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param id path string true "UUID подписки"
// @Param request body Request true "Новая дата окончания"
// @Success 200 {object} response.Response "Дата обновлена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /admin/subscriptions/{id}/extend [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.extend"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriptionID := chi.URLParam(r, "id")

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

	if err := h.service.AdminExtend(r.Context(), subscriptionID, req.Until); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("subscription not found", slog.String("subscription_id", subscriptionID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("subscription not found"))
			return
		}
		log.Error("failed to extend subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to extend subscription"))
		return
	}

	log.Info("subscription extended",
		slog.String("subscription_id", subscriptionID),
		slog.Time("until", req.Until))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": subscriptionID,
		"expires_at":      req.Until,
	}))
}
