package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/skybridge/bookingd/internal/application/rotation"
	settlementApp "github.com/skybridge/bookingd/internal/application/settlement"
	"github.com/skybridge/bookingd/internal/bootstrap"
	"github.com/skybridge/bookingd/internal/clock"
	"github.com/skybridge/bookingd/internal/controller"
	"github.com/skybridge/bookingd/internal/domain/credential"
	infraRedis "github.com/skybridge/bookingd/internal/infrastructure/redis"
	"github.com/skybridge/bookingd/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "bookingd-api", "bookingd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	settlementRepo := postgres.NewSettlementRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	outboxAdapter := postgres.NewOutboxAdapter(outboxRepo)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	credentialRepo := postgres.NewCredentialRepository(app.Pool)
	scheduleRepo := postgres.NewScheduleRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Infrastructure ---
	clk := clock.NewSystem()
	lockManager := infraRedis.NewLockManager(app.Redis)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)
	alerter := infraRedis.NewStreamAlerter(streamProducer, app.Logger)

	// --- Application services ---
	createSettlementUC := settlementApp.NewCreateUseCase(settlementRepo, outboxAdapter, txManager)
	issuer := rotation.NewMockIssuer()
	rotationExecutor := rotation.NewExecutor(
		credentialRepo, issuer, issuer, lockManager, alerter, clk, app.Logger,
	)
	rotationScheduler := rotation.NewScheduler(
		scheduleRepo, credentialRepo, rotationExecutor, alerter, clk,
		app.Metrics, app.Config.Rotation.SchedulerInterval, app.Logger,
	)
	if err := rotationScheduler.EnsureSchedules(ctx, credential.DefaultPolicies()); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to ensure rotation schedules")
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:              app.Pool,
		RedisClient:       app.Redis,
		SettlementRepo:    settlementRepo,
		CreateUseCase:     createSettlementUC,
		RotationExecutor:  rotationExecutor,
		RotationScheduler: rotationScheduler,
		IdempotencyRepo:   idempotencyRepo,
		Metrics:           app.Metrics,
		Server:            app.Config.Server,
		Auth:              app.Config.Auth,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
