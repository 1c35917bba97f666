// Package status реализует HTTP-обработчик запроса статуса подписки
// пользователя.
//
// Статус вычисляется из текущей подписки на момент запроса и кешируется
// в Redis с коротким временем жизни.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// cacheTTL время жизни кешированного статуса.
const cacheTTL = 30 * time.Second

// Service описывает интерфейс запроса статуса.
type Service interface {
	Status(ctx context.Context, userID int64) (*lifecycle.UserStatus, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// Handler обрабатывает HTTP-запросы статуса подписки.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service
	cache   Cache
}

// New создает новый Handler с переданными логгером, сервисом и кешем.
func New(log *slog.Logger, service Service, cache Cache) *Handler {
	return &Handler{
		log:     log,
		service: service,
		cache:   cache,
	}
}

// ServeHTTP godoc
// @Summary Статус подписки пользователя
// @Description Возвращает эффективный статус подписки на текущий момент.
// @Tags Users
// @Produce  json
// @Param id path int true "Telegram ID пользователя"
// @Success 200 {object} response.Response "Статус подписки"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /users/{id}/status [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.status"
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

	cacheKey := fmt.Sprintf("status:%d", userID)
	var cached lifecycle.UserStatus
	found, err := h.cache.Get(cacheKey, &cached)
	if err != nil {
		log.Warn("failed to read status cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		render.JSON(w, r, response.OKWithData(cached))
		return
	}

	result, err := h.service.Status(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("user not found", slog.Int64("user_id", userID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to get user status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get user status"))
		return
	}

	if err := h.cache.Set(cacheKey, result, cacheTTL); err != nil {
		log.Warn("failed to cache status", slog.String("key", cacheKey), sl.Err(err))
	}
	render.JSON(w, r, response.OKWithData(result))
}
