// Package login реализует HTTP-обработчик входа администратора.
//
// Администратор обменивает настроенный секрет на JWT с ролью admin,
// который используется для доступа к административной группе маршрутов.
package login

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-shop-core/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// Request — структура входных данных для входа администратора.
type Request struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	SecretKey string `json:"secret_key" validate:"required"`
}

// Handler обрабатывает HTTP-запросы входа администратора.
type Handler struct {
	log            *slog.Logger // Логгер для записи операций и ошибок
	maker          jwt.Maker
	adminSecretKey string
	validate       *validator.Validate
}

// New создает новый Handler с переданными логгером, генератором токенов
// и админским секретом.
func New(log *slog.Logger, maker jwt.Maker, adminSecretKey string) *Handler {
	return &Handler{
		log:            log,
		maker:          maker,
		adminSecretKey: adminSecretKey,
		validate:       validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход администратора
// @Description Обменивает админский секрет на JWT с ролью admin.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body Request true "Учетные данные администратора"
// @Success 200 {object} response.Response "JWT токен"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверный секрет"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.login"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
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

	if subtle.ConstantTimeCompare([]byte(req.SecretKey), []byte(h.adminSecretKey)) != 1 {
		log.Error("invalid admin secret", slog.String("username", req.Username))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid credentials"))
		return
	}

	token, err := h.maker.GenerateToken(req.Username, models.RoleAdmin)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to generate token"))
		return
	}

	log.Info("admin login success", slog.String("username", req.Username))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"token":    token,
		"role":     models.RoleAdmin,
		"username": req.Username,
	}))
}
