package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skybridge/bookingd/internal/alerting"
	"github.com/skybridge/bookingd/internal/authorities"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
	"github.com/skybridge/bookingd/internal/domain/outbox"
	"github.com/skybridge/bookingd/internal/domain/settlement"
	"github.com/skybridge/bookingd/internal/infrastructure/observability"
	"github.com/skybridge/bookingd/pkg/retry"
	"github.com/skybridge/bookingd/pkg/saga"
)

// driverLockTTL bounds how long a crashed worker can block a settlement
// before another driver may pick it up.
const driverLockTTL = 2 * time.Minute

// Orchestrator drives a settlement through authorize, commit and capture
// against the external authorities, compensating on failure. It is the only
// component that mutates a settlement after creation.
type Orchestrator struct {
	repo       settlement.Repository
	txManager  TransactionManager
	factory    *authorities.Factory
	outboxRepo OutboxWriter
	alerter    alerting.Alerter
	guard      DriverGuard

	transientRetry retry.Config
	compRetry      retry.Config
	metrics        *observability.Metrics
	logger         zerolog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicies overrides the transient and compensation retry policies.
func WithRetryPolicies(transient, compensation retry.Config) Option {
	return func(o *Orchestrator) {
		o.transientRetry = transient
		o.compRetry = compensation
	}
}

// WithMetrics attaches settlement metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an Orchestrator with the default retry policies.
func NewOrchestrator(
	repo settlement.Repository,
	txManager TransactionManager,
	factory *authorities.Factory,
	outboxRepo OutboxWriter,
	alerter alerting.Alerter,
	guard DriverGuard,
	logger zerolog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		repo:           repo,
		txManager:      txManager,
		factory:        factory,
		outboxRepo:     outboxRepo,
		alerter:        alerter,
		guard:          guard,
		transientRetry: retry.DefaultConfig(),
		compRetry:      retry.CompensationConfig(),
		logger:         logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute drives a single settlement to a terminal state. Redelivered or
// concurrent invocations are safe: terminal settlements are a no-op, a
// settlement already being driven returns ErrSettlementInProgress, and a
// settlement interrupted mid-flight resumes from its recorded state.
func (o *Orchestrator) Execute(ctx context.Context, settlementID uuid.UUID) error {
	lockKey := "settlement:" + settlementID.String()
	acquired, err := o.guard.TryLock(ctx, lockKey, driverLockTTL)
	if err != nil {
		return fmt.Errorf("acquire settlement lock: %w", err)
	}
	if !acquired {
		return domainErrors.ErrSettlementInProgress
	}
	defer func() {
		if err := o.guard.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			o.logger.Warn().Err(err).Str("settlement_id", settlementID.String()).Msg("failed to release settlement lock")
		}
	}()

	if o.metrics != nil {
		o.metrics.ActiveSettlements.Inc()
		defer o.metrics.ActiveSettlements.Dec()
	}

	s, err := o.repo.GetByID(ctx, settlementID)
	if err != nil {
		return fmt.Errorf("load settlement: %w", err)
	}

	if s.IsTerminal() {
		return nil // redelivery of a finished settlement
	}

	// A crash between persisting a Compensating* state and finishing the
	// undo leaves the settlement mid-compensation; the forward steps can
	// never apply again, so only the undo is resumed.
	if s.State == settlement.StateCompensatingPayment || s.State == settlement.StateCompensatingInventory {
		return o.resumeCompensation(ctx, s)
	}

	return o.executeSaga(ctx, s)
}

func (o *Orchestrator) executeSaga(ctx context.Context, s *settlement.Settlement) error {
	paymentAuth, paymentBreaker := o.factory.Payment()
	inventoryAuth, inventoryBreaker := o.factory.Inventory()

	run := saga.New("booking-settlement").
		// Step 1: place the payment hold. A failed authorization leaves
		// nothing behind, so there is no compensation.
		AddStep(saga.Step{
			Name: "authorize",
			Execute: func(ctx context.Context) error {
				if s.State != settlement.StateCreated {
					return nil // resumed past this phase
				}
				holdID, err := o.callAuthority(ctx, s, func() (string, error) {
					return paymentBreaker.Execute(func() (string, error) {
						return paymentAuth.Authorize(ctx, authorities.AuthorizeRequest{
							AmountCents:    s.Amount.ValueCents,
							Currency:       s.Amount.Currency,
							IdempotencyKey: s.OperationKey(settlement.OpAuthorize),
						})
					})
				})
				if err != nil {
					return err
				}
				if err := s.MarkAuthorized(holdID); err != nil {
					return err
				}
				return o.persistPhase(ctx, s, "settlement.authorized", map[string]interface{}{
					"payment_hold_id": holdID,
				})
			},
		}).
		// Step 2: commit inventory. If the commit fails the hold is the
		// dangling resource, so its designated compensation releases it.
		AddStep(saga.Step{
			Name: "commit",
			Execute: func(ctx context.Context) error {
				if s.State != settlement.StateAuthorized {
					return nil
				}
				reservationID, err := o.callAuthority(ctx, s, func() (string, error) {
					return inventoryBreaker.Execute(func() (string, error) {
						return inventoryAuth.Commit(ctx, authorities.CommitRequest{
							Spec:           s.ReservationSpec,
							IdempotencyKey: s.OperationKey(settlement.OpCommit),
						})
					})
				})
				if err != nil {
					return err
				}
				if err := s.MarkInventoryCommitted(reservationID); err != nil {
					return err
				}
				return o.persistPhase(ctx, s, "settlement.inventory_committed", map[string]interface{}{
					"reservation_id": reservationID,
				})
			},
			Compensate: func(ctx context.Context) error {
				return o.compensate(ctx, s, settlement.StateCompensatingPayment, func(ctx context.Context) error {
					if s.PaymentHoldID == nil {
						return nil
					}
					return paymentAuth.Release(ctx, *s.PaymentHoldID)
				})
			},
		}).
		// Step 3: capture the held funds. If capture fails the reservation is
		// the dangling resource: cancel it. The uncaptured hold expires on the
		// payment authority's side.
		AddStep(saga.Step{
			Name: "capture",
			Execute: func(ctx context.Context) error {
				if s.State != settlement.StateInventoryCommitted {
					return nil
				}
				_, err := o.callAuthority(ctx, s, func() (string, error) {
					return paymentBreaker.Execute(func() (string, error) {
						return "", paymentAuth.Capture(ctx, *s.PaymentHoldID, s.OperationKey(settlement.OpCapture))
					})
				})
				if err != nil {
					return err
				}
				if err := s.MarkCaptured(); err != nil {
					return err
				}
				return o.persistPhase(ctx, s, "settlement.captured", nil)
			},
			Compensate: func(ctx context.Context) error {
				return o.compensate(ctx, s, settlement.StateCompensatingInventory, func(ctx context.Context) error {
					if s.ReservationID == nil {
						return nil
					}
					return inventoryAuth.Cancel(ctx, *s.ReservationID)
				})
			},
		})

	result := run.Execute(ctx)
	if result.Err != nil {
		return o.failSettlement(ctx, s, result)
	}

	return o.settle(ctx, s)
}

// callAuthority invokes an external authority with bounded retries for
// transient failures. Business declines abort immediately; a retried call
// reuses the same idempotency key so the authority deduplicates it.
func (o *Orchestrator) callAuthority(ctx context.Context, s *settlement.Settlement, fn func() (string, error)) (string, error) {
	var result string
	cfg := o.transientRetry
	cfg.OnRetry = func(attempt uint, err error) {
		s.IncrementAttempts()
		if o.metrics != nil {
			o.metrics.SettlementRetries.WithLabelValues(string(s.State)).Inc()
		}
		o.logger.Warn().
			Str("settlement_id", s.ID.String()).
			Str("state", string(s.State)).
			Uint("attempt", attempt).
			Err(err).
			Msg("transient authority failure, retrying")
	}
	err := retry.DoIf(ctx, cfg, domainErrors.Transient, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// persistPhase records a completed phase and its audit event.
func (o *Orchestrator) persistPhase(ctx context.Context, s *settlement.Settlement, eventType string, data map[string]interface{}) error {
	return o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := o.repo.Update(txCtx, s); err != nil {
			return err
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		data["state"] = string(s.State)
		return o.repo.AddEvent(txCtx, &settlement.Event{
			ID: uuid.New(), SettlementID: s.ID, EventType: eventType, EventData: data,
		})
	})
}

// compensate moves the settlement into the compensation state for the failed
// phase and runs the undo action with bounded retries. An error after
// exhausting the retries leaves the saga asymmetric; the caller flags the
// settlement for reconciliation.
func (o *Orchestrator) compensate(ctx context.Context, s *settlement.Settlement, comp settlement.State, undo func(ctx context.Context) error) error {
	// The compensation must run even when the triggering failure was a
	// context timeout on the forward call.
	ctx = context.WithoutCancel(ctx)

	if err := s.BeginCompensation(comp); err != nil {
		return err
	}
	if err := o.persistPhase(ctx, s, "settlement.compensating", nil); err != nil {
		return err
	}

	cfg := o.compRetry
	cfg.OnRetry = func(attempt uint, err error) {
		o.logger.Warn().
			Str("settlement_id", s.ID.String()).
			Str("state", string(s.State)).
			Uint("attempt", attempt).
			Err(err).
			Msg("compensation attempt failed, retrying")
	}
	err := retry.Do(ctx, cfg, func() error {
		return undo(ctx)
	})
	if o.metrics != nil {
		result := "success"
		if err != nil {
			result = "failure"
		}
		o.metrics.CompensationsTotal.WithLabelValues(string(comp), result).Inc()
	}
	return err
}

// resumeCompensation finishes an interrupted compensation for a settlement
// reloaded in a Compensating* state. The undo runs with the same bounded
// retry as a first-pass compensation; either way the settlement ends Failed,
// with the reconciliation flag when the undo could not be confirmed.
func (o *Orchestrator) resumeCompensation(ctx context.Context, s *settlement.Settlement) error {
	paymentAuth, _ := o.factory.Payment()
	inventoryAuth, _ := o.factory.Inventory()

	var failedStep string
	var undo func(ctx context.Context) error
	switch s.State {
	case settlement.StateCompensatingPayment:
		failedStep = "commit"
		undo = func(ctx context.Context) error {
			if s.PaymentHoldID == nil {
				return nil
			}
			return paymentAuth.Release(ctx, *s.PaymentHoldID)
		}
	case settlement.StateCompensatingInventory:
		failedStep = "capture"
		undo = func(ctx context.Context) error {
			if s.ReservationID == nil {
				return nil
			}
			return inventoryAuth.Cancel(ctx, *s.ReservationID)
		}
	default:
		return fmt.Errorf("resume compensation: unexpected state %s", s.State)
	}

	ctx = context.WithoutCancel(ctx)
	o.logger.Warn().
		Str("settlement_id", s.ID.String()).
		Str("state", string(s.State)).
		Msg("resuming interrupted compensation")

	cfg := o.compRetry
	cfg.OnRetry = func(attempt uint, err error) {
		o.logger.Warn().
			Str("settlement_id", s.ID.String()).
			Str("state", string(s.State)).
			Uint("attempt", attempt).
			Err(err).
			Msg("compensation attempt failed, retrying")
	}
	comp := s.State
	undoErr := retry.Do(ctx, cfg, func() error {
		return undo(ctx)
	})
	if o.metrics != nil {
		result := "success"
		if undoErr != nil {
			result = "failure"
		}
		o.metrics.CompensationsTotal.WithLabelValues(string(comp), result).Inc()
	}

	result := saga.Result{
		FailedStepName: failedStep,
		Err:            fmt.Errorf("saga booking-settlement: step %q failed: drive interrupted during compensation", failedStep),
	}
	if undoErr != nil {
		result.CompensationErr = fmt.Errorf("saga booking-settlement: compensate step %q: %w", failedStep, undoErr)
	}
	return o.failSettlement(ctx, s, result)
}

// settle finishes a fully captured settlement: the terminal transition, the
// audit event and the booking.confirmed outbox entry commit atomically.
func (o *Orchestrator) settle(ctx context.Context, s *settlement.Settlement) error {
	if err := s.MarkSettled(); err != nil {
		return err
	}

	err := o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := o.repo.Update(txCtx, s); err != nil {
			return err
		}
		if err := o.outboxRepo.Insert(txCtx, &OutboxEntry{
			ID:            uuid.New(),
			AggregateType: "settlement",
			AggregateID:   s.ID,
			EventType:     outbox.EventBookingConfirmed,
			Payload: map[string]interface{}{
				"settlement_id":   s.ID.String(),
				"payment_hold_id": derefString(s.PaymentHoldID),
				"reservation_id":  derefString(s.ReservationID),
				"amount_cents":    s.Amount.ValueCents,
				"currency":        s.Amount.Currency,
			},
			Status:     "pending",
			RetryCount: 0,
			MaxRetries: 5,
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}
		return o.repo.AddEvent(txCtx, &settlement.Event{
			ID: uuid.New(), SettlementID: s.ID, EventType: "settlement.settled",
			EventData: map[string]interface{}{
				"amount_cents": s.Amount.ValueCents,
				"currency":     s.Amount.Currency,
			},
		})
	})
	if err != nil {
		return err
	}

	if o.metrics != nil {
		o.metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	}
	o.logger.Info().
		Str("settlement_id", s.ID.String()).
		Str("amount", s.Amount.String()).
		Msg("settlement completed")
	return nil
}

// failSettlement finalizes a failed saga. When the compensation itself could
// not be confirmed the settlement is flagged for manual reconciliation and an
// operator alert goes out, because one side may still hold a resource.
func (o *Orchestrator) failSettlement(ctx context.Context, s *settlement.Settlement, result saga.Result) error {
	ctx = context.WithoutCancel(ctx)
	reconcile := result.CompensationErr != nil
	reason := result.Err.Error()

	if err := s.MarkFailed(reason, reconcile); err != nil {
		return err
	}

	err := o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := o.repo.Update(txCtx, s); err != nil {
			return err
		}
		eventType := outbox.EventSettlementFailed
		if reconcile {
			eventType = outbox.EventSettlementReconcile
		}
		if err := o.outboxRepo.Insert(txCtx, &OutboxEntry{
			ID:            uuid.New(),
			AggregateType: "settlement",
			AggregateID:   s.ID,
			EventType:     eventType,
			Payload: map[string]interface{}{
				"settlement_id":   s.ID.String(),
				"failed_step":     result.FailedStepName,
				"reason":          reason,
				"payment_hold_id": derefString(s.PaymentHoldID),
				"reservation_id":  derefString(s.ReservationID),
			},
			Status:     "pending",
			RetryCount: 0,
			MaxRetries: 5,
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}
		return o.repo.AddEvent(txCtx, &settlement.Event{
			ID: uuid.New(), SettlementID: s.ID, EventType: outbox.EventSettlementFailed,
			EventData: map[string]interface{}{
				"failed_step":          result.FailedStepName,
				"reason":               reason,
				"needs_reconciliation": reconcile,
			},
		})
	})
	if err != nil {
		return err
	}

	if o.metrics != nil {
		o.metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		if reconcile {
			o.metrics.Reconciliations.Inc()
		}
	}

	if reconcile {
		if err := o.alerter.Alert(ctx, alerting.Alert{
			Kind:     alerting.KindSettlementReconcile,
			Severity: alerting.SeverityHigh,
			Message:  "settlement compensation exhausted retries, manual reconciliation required",
			Fields: map[string]any{
				"settlement_id":    s.ID.String(),
				"failed_step":      result.FailedStepName,
				"payment_hold_id":  derefString(s.PaymentHoldID),
				"reservation_id":   derefString(s.ReservationID),
				"compensation_err": result.CompensationErr.Error(),
			},
			Timestamp: time.Now(),
		}); err != nil {
			o.logger.Error().Err(err).Str("settlement_id", s.ID.String()).Msg("failed to raise reconciliation alert")
		}
	}

	o.logger.Error().
		Str("settlement_id", s.ID.String()).
		Str("failed_step", result.FailedStepName).
		Bool("needs_reconciliation", reconcile).
		Err(result.Err).
		Msg("settlement failed")
	return domainErrors.NewDomainError("settlement_failed", reason, result.Err)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
