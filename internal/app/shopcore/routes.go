// Package shopcore предоставляет маршруты основного приложения.
package shopcore

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/vpn-shop-core/internal/config"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/admin/attention"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/admin/extend"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/admin/login"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/admin/promocreate"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/admin/retry"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/admin/revoke"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/health"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/payment/paymentlist"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/user/promo"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/user/register"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/user/status"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/handlers/user/trial"
	"github.com/magabrotheeeer/vpn-shop-core/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-shop-core/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-shop-core/internal/paymentprovider"
	lifecycleservice "github.com/magabrotheeeer/vpn-shop-core/internal/services/lifecycle"
	paymentservice "github.com/magabrotheeeer/vpn-shop-core/internal/services/payment"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/cache"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

// Лимиты защищают админские ручки от перебора токена.
const (
	adminRateLimitRPS   = 10
	adminRateLimitBurst = 20
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	lifecycleService *lifecycleservice.Service,
	paymentService *paymentservice.Service,
	providerClient *paymentprovider.Client,
	db *repository.Storage,
	cacheRedis *cache.Cache,
	maker jwt.Maker,
	cfg *config.Config,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Конечные точки для бота: доверенный внутренний клиент.
		r.Post("/users", register.New(logger, lifecycleService).ServeHTTP)
		r.Get("/users/{id}/status", status.New(logger, lifecycleService, cacheRedis).ServeHTTP)
		r.Post("/users/{id}/trial", trial.New(logger, lifecycleService).ServeHTTP)
		r.Post("/users/{id}/promo", promo.New(logger, lifecycleService).ServeHTTP)
		r.Get("/users/{id}/payments", paymentlist.New(logger, paymentService).ServeHTTP)
		r.Post("/payments", paymentcreate.New(logger, providerClient, paymentService, cfg.ReturnURL).ServeHTTP)

		// Webhook от ЮKassa: подпись проверяется в обработчике.
		r.Post("/payments/webhook", paymentwebhook.New(logger, paymentService, cfg.WebhookSecret).ServeHTTP)

		r.Post("/admin/login", login.New(logger, maker, cfg.AdminSecretKey).ServeHTTP)

		// Группа с JWT аутентификацией администратора
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(adminRateLimitRPS, adminRateLimitBurst, logger))
			r.Get("/admin/attention", attention.New(logger, db).ServeHTTP)
			r.Post("/admin/subscriptions/{id}/revoke", revoke.New(logger, lifecycleService).ServeHTTP)
			r.Post("/admin/subscriptions/{id}/extend", extend.New(logger, lifecycleService).ServeHTTP)
			r.Post("/admin/subscriptions/{id}/retry", retry.New(logger, db).ServeHTTP)
			r.Post("/admin/promocodes", promocreate.New(logger, db).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
	r.Get("/health", health.New(logger).ServeHTTP)
}
