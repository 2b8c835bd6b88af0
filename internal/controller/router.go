package controller

import (
	"time"

	"github.com/skybridge/bookingd/internal/application/rotation"
	settlementApp "github.com/skybridge/bookingd/internal/application/settlement"
	"github.com/skybridge/bookingd/internal/domain/settlement"
	"github.com/skybridge/bookingd/internal/infrastructure/config"
	"github.com/skybridge/bookingd/internal/infrastructure/observability"
	customMW "github.com/skybridge/bookingd/internal/middleware"
	"github.com/skybridge/bookingd/internal/repository/postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool              *pgxpool.Pool
	RedisClient       *redis.Client
	SettlementRepo    settlement.Repository
	CreateUseCase     *settlementApp.CreateUseCase
	RotationExecutor  *rotation.Executor
	RotationScheduler *rotation.Scheduler
	IdempotencyRepo   *postgres.IdempotencyRepository
	Metrics           *observability.Metrics
	Server            config.ServerConfig
	Auth              config.AuthConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.RateLimit(deps.Server.RateLimitPerMin))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	settlementH := NewSettlementController(deps.CreateUseCase, deps.SettlementRepo)
	rotationH := NewRotationController(deps.RotationExecutor, deps.RotationScheduler)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating endpoints.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		// Settlements
		r.With(idempotencyMW).Post("/settlements", settlementH.Create)
		r.Get("/settlements/{id}", settlementH.Get)
		r.Get("/settlements", settlementH.List)
		r.Get("/settlements/{id}/events", settlementH.Events)

		// Credential rotation. Forcing a rotation is an operator action.
		r.Get("/rotations/status", rotationH.Status)
		r.With(
			customMW.RequireAuth(deps.Auth.JWTSecret),
			customMW.RequireRole(customMW.RoleOperator),
			idempotencyMW,
		).Post("/rotations/{service}", rotationH.Rotate)
	})

	return r
}
