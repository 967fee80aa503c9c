package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-erp/internal/audit"
	"github.com/noah-isme/backend-erp/internal/common"
	"github.com/noah-isme/backend-erp/internal/config"
	"github.com/noah-isme/backend-erp/internal/db"
	"github.com/noah-isme/backend-erp/internal/health"
	"github.com/noah-isme/backend-erp/internal/obs"
	"github.com/noah-isme/backend-erp/internal/order"
	"github.com/noah-isme/backend-erp/internal/pricing"
	"github.com/noah-isme/backend-erp/internal/quote"
	"github.com/noah-isme/backend-erp/internal/ratelimit"
	"github.com/noah-isme/backend-erp/internal/repo"
	"github.com/noah-isme/backend-erp/internal/security"
	"github.com/noah-isme/backend-erp/internal/sequence"
	"github.com/noah-isme/backend-erp/internal/shipment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	metrics := obs.NewDomainMetrics("erp", nil)

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "erp-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	orderRepo := &repo.Orders{Pool: pool}
	shipmentRepo := &repo.Shipments{Pool: pool}
	productRepo := &repo.Products{Pool: pool}
	quoteRepo := &repo.Quotes{Pool: pool}

	recorder := &audit.Recorder{
		Store:   &repo.AuditLogs{Pool: pool},
		Enabled: true,
		Logger:  logger,
	}
	numbers := sequence.New(&repo.Sequences{Pool: pool}, metrics)

	orderSvc := &order.Service{
		Store:   orderRepo,
		Catalog: productRepo,
		Audit:   recorder,
		Metrics: metrics,
		Logger:  logger,
	}
	shipmentSvc := &shipment.Service{
		Store:   shipmentRepo,
		Orders:  orderRepo,
		Audit:   recorder,
		Metrics: metrics,
		Logger:  logger,
	}
	quoteSvc := &quote.Service{
		Store:   quoteRepo,
		Catalog: productRepo,
		Numbers: numbers,
		Policy: pricing.DeliveryPolicy{
			Fee:       cfg.DeliveryFee,
			FreeAbove: cfg.FreeDeliveryAbove,
		},
		TaxRateBps: cfg.TaxRateBps,
		Audit:      recorder,
		Logger:     logger,
	}

	dev := cfg.Development()
	orderHandler := &order.Handler{Svc: orderSvc, Development: dev}
	shipmentHandler := &shipment.Handler{Svc: shipmentSvc, Development: dev}
	quoteHandler := &quote.Handler{Svc: quoteSvc, Development: dev}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter unavailable")
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{Checker: readinessChecker{db: pool, redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)

		v.Route("/orders/{orderId}", func(o chi.Router) {
			o.Get("/", orderHandler.Get)
			o.With(idem.Middleware).Put("/", orderHandler.Update)

			o.Route("/shipments", func(s chi.Router) {
				s.With(idem.Middleware).Post("/", shipmentHandler.Create)
				s.Get("/available", shipmentHandler.Available)
				s.Patch("/{shipmentId}", shipmentHandler.Update)
				s.Delete("/{shipmentId}", shipmentHandler.Delete)
			})
		})

		v.Get("/shipments/schedule", shipmentHandler.Schedule)

		v.Route("/quotes", func(q chi.Router) {
			q.With(idem.Middleware).Post("/", quoteHandler.Create)
			q.Get("/{quoteId}", quoteHandler.Get)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
