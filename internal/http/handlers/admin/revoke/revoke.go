// Package revoke реализует HTTP-обработчик административного отзыва подписки.
package revoke

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// Request — структура входных данных для отзыва подписки.
type Request struct {
	Reason string `json:"reason"`
}

// Service описывает интерфейс отзыва подписки.
type Service interface {
	Revoke(ctx context.Context, subscriptionID, reason string) error
}

// Handler обрабатывает HTTP-запросы отзыва подписок.
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
// @Summary Отозвать подписку
// @Description Переводит подписку в revoked и ставит намерение на отзыв доступа в панели.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param id path string true "UUID подписки"
// @Param request body Request false "Причина отзыва"
// @Success 200 {object} response.Response "Подписка отозвана"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /admin/subscriptions/{id}/revoke [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.revoke"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriptionID := chi.URLParam(r, "id")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Reason = ""
	}
	if req.Reason == "" {
		req.Reason = "revoked by admin"
	}

	if err := h.service.Revoke(r.Context(), subscriptionID, req.Reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("subscription not found", slog.String("subscription_id", subscriptionID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("subscription not found"))
			return
		}
		log.Error("failed to revoke subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to revoke subscription"))
		return
	}

	log.Info("subscription revoked", slog.String("subscription_id", subscriptionID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": subscriptionID,
	}))
}
