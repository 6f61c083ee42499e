package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/api/handler"
	"github.com/hooinvest/deposit-engine/internal/api/middleware"
	"github.com/hooinvest/deposit-engine/internal/api/spec"
	"github.com/hooinvest/deposit-engine/internal/config"
	"github.com/hooinvest/deposit-engine/internal/gateway"
	"github.com/hooinvest/deposit-engine/internal/idempotency"
	"github.com/hooinvest/deposit-engine/internal/repository"
	"github.com/hooinvest/deposit-engine/internal/service"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	store     *repository.Store
	crypto    gateway.Gateway
	pix       gateway.Gateway
	idemStore *idempotency.Store
	redis     redis.Cmdable
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, store *repository.Store, crypto, pix gateway.Gateway, idemStore *idempotency.Store, redisClient redis.Cmdable) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     store,
		crypto:    crypto,
		pix:       pix,
		idemStore: idemStore,
		redis:     redisClient,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Services
	depositSvc := service.NewDepositService(api.store, api.crypto, api.pix, api.cfg.CallbackBaseURL)
	webhookSvc := service.NewWebhookService(api.store, service.WebhookConfig{
		CoinPaymentsIPNSecret:   api.cfg.CoinPaymentsIPNSecret,
		CoinPaymentsMerchantID:  api.cfg.CoinPaymentsMerchantID,
		ConnectPayWebhookSecret: api.cfg.ConnectPayWebhookSecret,
	})

	// Handlers
	depositHandler := handler.NewDepositHandler(depositSvc)
	planHandler := handler.NewPlanHandler(api.store.Queries())
	webhookHandler := handler.NewWebhookHandler(webhookSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())

	// Gateway notifications: authenticated by signature, not JWT.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/webhooks/coinpayments", webhookHandler.HandleCoinPaymentsIPN)
		r.Post("/v1/webhooks/connectpay", webhookHandler.HandleConnectPayWebhook)
	})

	// Account-facing routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/plans", planHandler.ListPlans)
		r.Get("/v1/deposits", depositHandler.ListDeposits)
		r.Get("/v1/deposits/{id}", depositHandler.GetDeposit)
		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/deposits", depositHandler.CreateDeposit)
	})

	return r
}
