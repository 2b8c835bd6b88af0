package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skybridge/bookingd/internal/application/rotation"
	settlementApp "github.com/skybridge/bookingd/internal/application/settlement"
	"github.com/skybridge/bookingd/internal/authorities"
	"github.com/skybridge/bookingd/internal/bootstrap"
	"github.com/skybridge/bookingd/internal/clock"
	"github.com/skybridge/bookingd/internal/domain/credential"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
	"github.com/skybridge/bookingd/internal/domain/outbox"
	"github.com/skybridge/bookingd/internal/infrastructure/observability"
	infraRedis "github.com/skybridge/bookingd/internal/infrastructure/redis"
	"github.com/skybridge/bookingd/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "bookingd-worker", "bookingd_worker")
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

	// External authority clients authenticate per request through the
	// resolver, so a rotation mid-settlement picks up the right credential.
	resolver := rotation.NewStoreResolver(credentialRepo, clk)
	paymentAuth := authorities.NewMockPaymentAuthority("stripe", authorities.WithPaymentResolver(resolver))
	inventoryAuth := authorities.NewMockInventoryAuthority("duffel", authorities.WithInventoryResolver(resolver))
	factory := authorities.NewFactory(paymentAuth, inventoryAuth)

	// --- Application services ---
	orchestrator := settlementApp.NewOrchestrator(
		settlementRepo, txManager, factory, outboxAdapter, alerter, lockManager, app.Logger,
		settlementApp.WithMetrics(app.Metrics),
	)
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

	// --- Settlement stream consumer ---
	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.SettlementStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}

	app.Logger.Info().
		Str("stream", infraRedis.SettlementStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Settlement driver (reads from Redis Streams).
	g.Go(func() error {
		return runSettlementDriver(gCtx, app, consumer, orchestrator, streamProducer)
	})

	// 2. Outbox publisher (polls outbox table and publishes to Redis Streams).
	g.Go(func() error {
		return runOutboxPublisher(gCtx, app.Logger, txManager, outboxRepo, streamProducer, workerCfg.OutboxPollInterval)
	})

	// 3. Rotation scheduler.
	if app.Config.Rotation.Enabled {
		g.Go(func() error {
			return rotationScheduler.Run(gCtx)
		})
	}

	// 4. Idempotency key cleanup.
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, idempotencyRepo, workerCfg.IdempotencyTTL)
	})

	// 5. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runSettlementDriver(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	orchestrator *settlementApp.Orchestrator,
	producer *infraRedis.StreamProducer,
) error {
	logger := observability.WithContext(app.Logger, map[string]any{
		"component": "settlement-driver",
		"instance":  app.Config.InstanceID,
	})
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				settlementIDStr, _ := msg.Values["settlement_id"].(string)
				settlementID, err := uuid.Parse(settlementIDStr)
				if err != nil {
					logger.Error().Str("raw", settlementIDStr).Msg("Invalid settlement ID in stream message")
					producer.PublishToDLQ(ctx, settlementIDStr, "invalid settlement id", msg.Values)
					consumer.Ack(ctx, msg.ID)
					continue
				}

				logger.Info().Str("settlement_id", settlementID.String()).Msg("Driving settlement")

				start := time.Now()
				err = orchestrator.Execute(ctx, settlementID)
				switch {
				case err == nil:
					app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.SettlementStream, "success").Inc()
				case errors.Is(err, domainErrors.ErrSettlementInProgress):
					// Another driver holds the lock and will finish it.
					logger.Debug().Str("settlement_id", settlementID.String()).Msg("Settlement already being driven")
				default:
					logger.Error().Err(err).Str("settlement_id", settlementID.String()).Msg("Settlement failed")
					app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.SettlementStream, "failure").Inc()
				}
				app.Metrics.SettlementDuration.WithLabelValues(outcomeLabel(err)).Observe(time.Since(start).Seconds())

				consumer.Ack(ctx, msg.ID)
			}
		}
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "settled"
	}
	return "failed"
}

func runOutboxPublisher(
	ctx context.Context,
	logger zerolog.Logger,
	txManager *postgres.TxManager,
	outboxRepo *postgres.OutboxRepository,
	producer *infraRedis.StreamProducer,
	pollInterval time.Duration,
) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			entries, err := outboxRepo.GetPending(txCtx, 10)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if err := publishEntry(ctx, producer, entry); err != nil {
					logger.Error().Err(err).Str("outbox_id", entry.ID.String()).Msg("Failed to publish outbox event")
					outboxRepo.MarkFailed(txCtx, entry.ID)
					continue
				}
				outboxRepo.MarkPublished(txCtx, entry.ID)
			}
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Outbox publisher error")
		}
	}
}

// publishEntry routes an outbox entry to its stream. New settlements wake the
// driver; terminal outcomes feed notifications; reconciliation requests go to
// the operator alert stream.
func publishEntry(ctx context.Context, producer *infraRedis.StreamProducer, entry *outbox.Entry) error {
	switch entry.EventType {
	case outbox.EventSettlementCreated:
		return producer.PublishSettlementEvent(ctx, entry.AggregateID.String(), entry.EventType, entry.Payload)
	case outbox.EventSettlementReconcile:
		return producer.PublishAlert(ctx, entry.EventType, "high",
			"settlement requires manual reconciliation", entry.Payload)
	default:
		return producer.PublishNotification(ctx, entry.EventType, entry.Payload)
	}
}

func runIdempotencyCleanup(
	ctx context.Context,
	logger zerolog.Logger,
	repo *postgres.IdempotencyRepository,
	interval time.Duration,
) error {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		deleted, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Msg("Expired idempotency keys removed")
		}
	}
}
