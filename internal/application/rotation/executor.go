package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybridge/bookingd/internal/alerting"
	"github.com/skybridge/bookingd/internal/clock"
	"github.com/skybridge/bookingd/internal/domain/credential"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
	"github.com/skybridge/bookingd/pkg/retry"
)

// lockSlack pads the rotation lock TTL beyond the grace period so the lock
// outlives the promote and revoke steps.
const lockSlack = 5 * time.Minute

// Executor performs a single dual-key credential rotation: issue a
// candidate, let both keys overlap for the grace period, promote the
// candidate, revoke the superseded key. The active credential stays valid
// throughout, so in-flight calls never see an authentication gap.
type Executor struct {
	store   credential.Store
	issuer  Issuer
	revoker Revoker
	locker  Locker
	alerter alerting.Alerter
	clk     clock.Clock

	// wait blocks for the grace period; injectable so tests don't sleep.
	wait        func(ctx context.Context, d time.Duration) error
	revokeRetry retry.Config
	logger      zerolog.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithWait overrides the grace-period wait.
func WithWait(wait func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.wait = wait }
}

// WithRevokeRetry overrides the revocation retry policy.
func WithRevokeRetry(cfg retry.Config) ExecutorOption {
	return func(e *Executor) { e.revokeRetry = cfg }
}

// NewExecutor creates an Executor.
func NewExecutor(
	store credential.Store,
	issuer Issuer,
	revoker Revoker,
	locker Locker,
	alerter alerting.Alerter,
	clk clock.Clock,
	logger zerolog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		store:       store,
		issuer:      issuer,
		revoker:     revoker,
		locker:      locker,
		alerter:     alerter,
		clk:         clk,
		wait:        sleepWait,
		revokeRetry: retry.CompensationConfig(),
		logger:      logger.With().Str("component", "rotation_executor").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepWait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rotate rotates the credential for one service. A concurrent rotation of the
// same service fails fast with ErrRotationInProgress. A rotation interrupted
// by a crash is resumed: the persisted candidate marker tells us how far the
// previous attempt got.
func (e *Executor) Rotate(ctx context.Context, service string) error {
	set, err := e.store.Get(ctx, service)
	if err != nil {
		return fmt.Errorf("load credential set: %w", err)
	}

	lockKey := "rotation:" + service
	acquired, err := e.locker.TryLock(ctx, lockKey, set.GracePeriod+lockSlack)
	if err != nil {
		return fmt.Errorf("acquire rotation lock: %w", err)
	}
	if !acquired {
		return domainErrors.ErrRotationInProgress
	}
	defer func() {
		if err := e.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			e.logger.Warn().Err(err).Str("service", service).Msg("failed to release rotation lock")
		}
	}()

	now := e.clk.Now()

	if set.Rotating() {
		// A previous run crashed after persisting the candidate. Finish its
		// rotation instead of issuing yet another key.
		remaining := set.GracePeriod - now.Sub(*set.RotationStartedAt)
		if remaining < 0 {
			remaining = 0
		}
		e.logger.Info().
			Str("service", service).
			Dur("remaining_grace", remaining).
			Msg("resuming interrupted rotation")
		return e.finish(ctx, set, remaining)
	}

	candidate, err := e.issuer.Issue(ctx, service)
	if err != nil {
		return fmt.Errorf("issue candidate credential for %s: %w", service, err)
	}

	if err := set.BeginRotation(candidate, now); err != nil {
		return err
	}
	// Persist the candidate before the grace wait: from here the rotation
	// survives a restart, and resolvers start seeing the dual-key window.
	if err := e.store.Put(ctx, set); err != nil {
		return fmt.Errorf("persist candidate: %w", err)
	}

	e.logger.Info().
		Str("service", service).
		Dur("grace_period", set.GracePeriod).
		Msg("rotation started, candidate installed")

	return e.finish(ctx, set, set.GracePeriod)
}

// RotateEmergency rotates immediately in response to a suspected compromise
// and raises a high-severity alert so the on-call knows a key was burned.
func (e *Executor) RotateEmergency(ctx context.Context, service, reason string) error {
	if err := e.alerter.Alert(ctx, alerting.Alert{
		Kind:     alerting.KindEmergencyRotation,
		Severity: alerting.SeverityHigh,
		Message:  "emergency credential rotation triggered",
		Fields: map[string]any{
			"service": service,
			"reason":  reason,
		},
		Timestamp: e.clk.Now(),
	}); err != nil {
		e.logger.Error().Err(err).Str("service", service).Msg("failed to raise emergency rotation alert")
	}
	return e.Rotate(ctx, service)
}

// finish runs the back half of the protocol: grace wait, promote, revoke.
func (e *Executor) finish(ctx context.Context, set *credential.Set, grace time.Duration) error {
	if grace > 0 {
		if err := e.wait(ctx, grace); err != nil {
			return fmt.Errorf("grace period wait: %w", err)
		}
	}

	old, err := set.Promote(e.clk.Now())
	if err != nil {
		return err
	}
	if err := e.store.Put(ctx, set); err != nil {
		return fmt.Errorf("persist promotion: %w", err)
	}

	// The rotation is complete once the promotion persists. Revocation of the
	// superseded key is best-effort with bounded retries; if the upstream
	// won't revoke it we alert rather than roll back a finished rotation.
	cfg := e.revokeRetry
	cfg.OnRetry = func(attempt uint, err error) {
		e.logger.Warn().
			Str("service", set.Service).
			Uint("attempt", attempt).
			Err(err).
			Msg("credential revocation failed, retrying")
	}
	revokeCtx := context.WithoutCancel(ctx)
	revokeErr := retry.Do(revokeCtx, cfg, func() error {
		return e.revoker.Revoke(revokeCtx, set.Service, old)
	})
	if revokeErr != nil {
		e.logger.Error().Err(revokeErr).Str("service", set.Service).Msg("superseded credential could not be revoked")
		if err := e.alerter.Alert(ctx, alerting.Alert{
			Kind:     alerting.KindRotationFailure,
			Severity: alerting.SeverityMedium,
			Message:  "superseded credential could not be revoked and may still be live",
			Fields: map[string]any{
				"service": set.Service,
				"stage":   "revoke",
				"error":   revokeErr.Error(),
			},
			Timestamp: e.clk.Now(),
		}); err != nil {
			e.logger.Error().Err(err).Str("service", set.Service).Msg("failed to raise revocation alert")
		}
	}

	e.logger.Info().Str("service", set.Service).Msg("rotation completed")
	return nil
}
