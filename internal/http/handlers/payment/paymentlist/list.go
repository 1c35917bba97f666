// Package paymentlist реализует HTTP-обработчик истории платежей пользователя.
package paymentlist

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// Service описывает чтение истории платежей.
type Service interface {
	List(ctx context.Context, userID int64, limit, offset int) ([]*models.Payment, error)
}

// Handler обрабатывает HTTP-запросы истории платежей.
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

type item struct {
	PaymentID    string     `json:"payment_id"`
	Amount       string     `json:"amount"`
	Currency     string     `json:"currency"`
	Method       string     `json:"method"`
	DurationDays int        `json:"duration_days"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	AppliedAt    *time.Time `json:"applied_at,omitempty"`
}

// ServeHTTP godoc
// @Summary История платежей пользователя
// @Description Возвращает платежи пользователя, с пагинацией.
// @Tags Payment
// @Produce  json
// @Param id path int true "ID пользователя Telegram"
// @Param limit query int false "Максимум записей (по умолчанию 50)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response "Список платежей"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /users/{id}/payments [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.list"
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

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	payments, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list payments"))
		return
	}

	items := make([]item, 0, len(payments))
	for _, p := range payments {
		items = append(items, item{
			PaymentID:    p.ID,
			Amount:       p.Amount,
			Currency:     p.Currency,
			Method:       p.Method,
			DurationDays: p.DurationDays,
			Status:       p.Status,
			CreatedAt:    p.CreatedAt,
			AppliedAt:    p.AppliedAt,
		})
	}

	log.Info("payments listed", slog.Int64("user_id", userID), slog.Int("count", len(items)))
	render.JSON(w, r, response.OKWithData(items))
}
