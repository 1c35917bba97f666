// Package trial реализует HTTP-обработчик активации пробного периода.
package trial

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// Service описывает интерфейс активации пробного периода.
type Service interface {
	ActivateTrial(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Handler обрабатывает HTTP-запросы активации пробного периода.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Активировать пробный период
// @Description Выдает пользователю пробную подписку. Доступно один раз за всю историю пользователя.
// @Tags Users
// @Produce  json
// @Param id path int true "Telegram ID пользователя"
// @Success 200 {object} response.Response "Созданная подписка"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 409 {object} response.ErrorResponse "Пробный период уже использован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /users/{id}/trial [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.trial"
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

	sub, err := h.service.ActivateTrial(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrTrialAlreadyUsed):
			log.Info("trial already used", slog.Int64("user_id", userID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("trial already used"))
		case errors.Is(err, repository.ErrNotFound):
			log.Info("user not found", slog.Int64("user_id", userID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to activate trial", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to activate trial"))
		}
		return
	}

	log.Info("trial activated", slog.Int64("user_id", userID), slog.String("subscription_id", sub.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": sub.ID,
		"status":          sub.Status,
		"expires_at":      sub.ExpiresAt,
	}))
}
