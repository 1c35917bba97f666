// Package promocreate реализует HTTP-обработчик создания промокода.
package promocreate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// Request — структура входных данных для создания промокода.
type Request struct {
	Code      string     `json:"code" validate:"required,min=3,max=64"`
	BonusDays int        `json:"bonus_days" validate:"required,gt=0"`
	MaxUses   int        `json:"max_uses" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Repository описывает создание промокода в хранилище.
type Repository interface {
	CreatePromoCode(ctx context.Context, promo models.PromoCode) error
}

// Handler обрабатывает HTTP-запросы создания промокодов.
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
// @Summary Создать промокод
// @Description Создает промокод с лимитом активаций и бонусными днями.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body Request true "Параметры промокода"
// @Success 200 {object} response.Response "Промокод создан"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /admin/promocodes [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promocreate"
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

	promo := models.PromoCode{
		Code:      req.Code,
		BonusDays: req.BonusDays,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Active:    true,
	}
	if err := h.repo.CreatePromoCode(r.Context(), promo); err != nil {
		log.Error("failed to create promo code", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to create promo code"))
		return
	}

	log.Info("promo code created",
		slog.String("code", req.Code),
		slog.Int("bonus_days", req.BonusDays),
		slog.Int("max_uses", req.MaxUses))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"code": req.Code,
	}))
}
