// Package retry реализует HTTP-обработчик повторной постановки подписки
// на сверку после разбора администратором.
//
// Снимает флаг ручного вмешательства и заново ставит намерение, чтобы
// реконсайлер повторил провижининг на следующем тике.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// Request — структура входных данных для повторной постановки.
type Request struct {
	Kind string `json:"kind" validate:"required,oneof=grant revoke"`
}

// Repository описывает снятие флага внимания с повторной постановкой намерения.
type Repository interface {
	ClearNeedsAttention(ctx context.Context, id, intentKind string) error
}

// Handler обрабатывает HTTP-запросы повторной постановки на сверку.
type Handler struct {
	log      *slog.Logger // Логгер для записи информации и ошибок
	repo     Repository
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и хранилищем.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{
		log:      log,
		repo:     repo,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Повторить провижининг подписки
// @Description Снимает флаг ручного вмешательства и ставит намерение на сверку заново.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param id path string true "UUID подписки"
// @Param request body Request true "Вид намерения: grant или revoke"
// @Success 200 {object} response.Response "Намерение поставлено"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /admin/subscriptions/{id}/retry [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.retry"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriptionID := chi.URLParam(r, "id")

	req := Request{Kind: models.IntentGrant}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error("failed to decode request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid request body"))
			return
		}
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.repo.ClearNeedsAttention(r.Context(), subscriptionID, req.Kind); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("subscription not found", slog.String("subscription_id", subscriptionID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("subscription not found"))
			return
		}
		log.Error("failed to requeue subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to requeue subscription"))
		return
	}

	log.Info("subscription requeued",
		slog.String("subscription_id", subscriptionID),
		slog.String("kind", req.Kind))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": subscriptionID,
		"kind":            req.Kind,
	}))
}
