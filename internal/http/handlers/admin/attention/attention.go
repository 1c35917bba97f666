// Package attention реализует HTTP-обработчик списка подписок, требующих
// ручного вмешательства администратора.
package attention

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// Repository описывает чтение подписок с флагом needs_attention.
type Repository interface {
	ListNeedsAttention(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
}

// Handler обрабатывает HTTP-запросы списка проблемных подписок.
type Handler struct {
	log  *slog.Logger // Логгер для записи информации и ошибок
	repo Repository
}

// New создает новый Handler с переданными логгером и хранилищем.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{
		log:  log,
		repo: repo,
	}
}

type item struct {
	SubscriptionID string `json:"subscription_id"`
	UserID         int64  `json:"user_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

// ServeHTTP godoc
// @Summary Подписки, требующие внимания
// @Description Возвращает подписки с флагом ручного вмешательства, с пагинацией.
// @Tags Admin
// @Produce  json
// @Param limit query int false "Максимум записей (по умолчанию 50)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response "Список подписок"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /admin/attention [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.attention"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	subs, err := h.repo.ListNeedsAttention(r.Context(), limit, offset)
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list subscriptions"))
		return
	}

	items := make([]item, 0, len(subs))
	for _, sub := range subs {
		it := item{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			Status:         sub.Status,
		}
		if sub.AttentionReason != nil {
			it.Reason = *sub.AttentionReason
		}
		items = append(items, it)
	}

	log.Info("attention list requested", slog.Int("count", len(items)))
	render.JSON(w, r, response.OKWithData(items))
}
