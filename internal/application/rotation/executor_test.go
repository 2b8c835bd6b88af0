package rotation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybridge/bookingd/internal/alerting"
	"github.com/skybridge/bookingd/internal/application/rotation"
	"github.com/skybridge/bookingd/internal/clock"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
	"github.com/skybridge/bookingd/internal/testutil"
	"github.com/skybridge/bookingd/pkg/retry"
)

func fastRevokeRetry() rotation.ExecutorOption {
	return rotation.WithRevokeRetry(retry.Config{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})
}

// instantWait advances the fixed clock instead of sleeping, so the promote
// timestamp reflects the full grace period.
func instantWait(clk *clock.Fixed) rotation.ExecutorOption {
	return rotation.WithWait(func(_ context.Context, d time.Duration) error {
		clk.Advance(d)
		return nil
	})
}

func TestExecutor_Rotate_FullProtocol(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer()
	alerter := testutil.NewMockAlerter()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	grace := 10 * time.Minute
	store.AddSet(testutil.NewTestCredentialSet("stripe", "sk_stripe_old", grace))

	e := rotation.NewExecutor(store, issuer, issuer, testutil.NewMockDriverGuard(), alerter, clk,
		zerolog.Nop(), instantWait(clk), fastRevokeRetry())

	if err := e.Rotate(ctx, "stripe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set, _ := store.Get(ctx, "stripe")
	if set.Rotating() {
		t.Error("expected rotation markers to be cleared after promotion")
	}
	issued := issuer.Issued("stripe")
	if len(issued) != 1 {
		t.Fatalf("expected one issued credential, got %d", len(issued))
	}
	if set.Active != issued[0] {
		t.Errorf("expected candidate to be promoted to active")
	}
	revoked := issuer.Revoked("stripe")
	if len(revoked) != 1 || revoked[0] != "sk_stripe_old" {
		t.Errorf("expected the superseded credential to be revoked, got %v", revoked)
	}
	if len(alerter.Alerts()) != 0 {
		t.Errorf("expected no alerts for a clean rotation, got %d", len(alerter.Alerts()))
	}
}

func TestExecutor_Rotate_ActiveStaysValidDuringGrace(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	grace := 10 * time.Minute
	store.AddSet(testutil.NewTestCredentialSet("stripe", "sk_stripe_old", grace))
	resolver := rotation.NewStoreResolver(store, clk)

	// Probe resolution mid-grace from inside the wait: the first half of the
	// window must still serve the proven active credential, the second half
	// the candidate.
	var firstHalf, secondHalf string
	wait := rotation.WithWait(func(_ context.Context, d time.Duration) error {
		clk.Advance(d/2 - time.Second)
		firstHalf, _ = resolver.ResolveCredential(ctx, "stripe")
		clk.Advance(2 * time.Second)
		secondHalf, _ = resolver.ResolveCredential(ctx, "stripe")
		clk.Advance(d/2 - time.Second)
		return nil
	})

	e := rotation.NewExecutor(store, issuer, issuer, testutil.NewMockDriverGuard(),
		testutil.NewMockAlerter(), clk, zerolog.Nop(), wait, fastRevokeRetry())

	if err := e.Rotate(ctx, "stripe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if firstHalf != "sk_stripe_old" {
		t.Errorf("first half of grace should resolve the active credential, got %q", firstHalf)
	}
	if secondHalf != issuer.Issued("stripe")[0] {
		t.Errorf("second half of grace should resolve the candidate, got %q", secondHalf)
	}
}

func TestExecutor_Rotate_ConcurrentRejected(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer()
	clk := clock.NewFixed(time.Now())

	store.AddSet(testutil.NewTestCredentialSet("twilio", "sk_twilio_old", 10*time.Minute))

	locker := testutil.NewMockDriverGuard()
	if ok, _ := locker.TryLock(ctx, "rotation:twilio", time.Hour); !ok {
		t.Fatal("setup: could not pre-acquire lock")
	}

	e := rotation.NewExecutor(store, issuer, issuer, locker, testutil.NewMockAlerter(), clk,
		zerolog.Nop(), instantWait(clk), fastRevokeRetry())

	err := e.Rotate(ctx, "twilio")
	if !errors.Is(err, domainErrors.ErrRotationInProgress) {
		t.Fatalf("expected ErrRotationInProgress, got %v", err)
	}
	if issuer.IssueCalls != 0 {
		t.Errorf("expected no credential to be issued, got %d calls", issuer.IssueCalls)
	}
}

func TestExecutor_Rotate_ResumesInterruptedRotation(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	// A previous process crashed after installing the candidate.
	set := testutil.NewTestCredentialSet("stripe", "sk_stripe_old", 10*time.Minute)
	if err := set.BeginRotation("sk_stripe_candidate", clk.Now().Add(-8*time.Minute)); err != nil {
		t.Fatal(err)
	}
	store.AddSet(set)

	e := rotation.NewExecutor(store, issuer, issuer, testutil.NewMockDriverGuard(),
		testutil.NewMockAlerter(), clk, zerolog.Nop(), instantWait(clk), fastRevokeRetry())

	if err := e.Rotate(ctx, "stripe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, _ := store.Get(ctx, "stripe")
	if updated.Active != "sk_stripe_candidate" {
		t.Errorf("expected the persisted candidate to be promoted, got %q", updated.Active)
	}
	// Resuming must not mint a second key.
	if issuer.IssueCalls != 0 {
		t.Errorf("expected no new credential for a resumed rotation, got %d calls", issuer.IssueCalls)
	}
}

func TestExecutor_Rotate_IssueFailure_LeavesSetUntouched(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer(rotation.WithIssueScript(errors.New("key API down")))
	clk := clock.NewFixed(time.Now())

	store.AddSet(testutil.NewTestCredentialSet("openai", "sk_openai_old", 10*time.Minute))

	e := rotation.NewExecutor(store, issuer, issuer, testutil.NewMockDriverGuard(),
		testutil.NewMockAlerter(), clk, zerolog.Nop(), instantWait(clk), fastRevokeRetry())

	if err := e.Rotate(ctx, "openai"); err == nil {
		t.Fatal("expected error when issuing fails, got nil")
	}

	set, _ := store.Get(ctx, "openai")
	if set.Rotating() {
		t.Error("failed issue must not leave a candidate installed")
	}
	if set.Active != "sk_openai_old" {
		t.Errorf("active credential must be unchanged, got %q", set.Active)
	}
}

func TestExecutor_Rotate_RevokeFailure_AlertsButSucceeds(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer(rotation.WithRevokeScript(
		errors.New("revoke rejected"),
		errors.New("revoke rejected"),
		errors.New("revoke rejected"),
		errors.New("revoke rejected"),
	))
	alerter := testutil.NewMockAlerter()
	clk := clock.NewFixed(time.Now())

	store.AddSet(testutil.NewTestCredentialSet("stripe", "sk_stripe_old", 10*time.Minute))

	e := rotation.NewExecutor(store, issuer, issuer, testutil.NewMockDriverGuard(), alerter, clk,
		zerolog.Nop(), instantWait(clk), fastRevokeRetry())

	if err := e.Rotate(ctx, "stripe"); err != nil {
		t.Fatalf("rotation should succeed even when revocation fails, got %v", err)
	}

	set, _ := store.Get(ctx, "stripe")
	if set.Rotating() || set.Active == "sk_stripe_old" {
		t.Error("expected the promotion to stand")
	}
	if issuer.RevokeCalls != 4 {
		t.Errorf("expected revocation to stop after 4 bounded attempts, got %d", issuer.RevokeCalls)
	}
	alerts := alerter.AlertsOfKind(alerting.KindRotationFailure)
	if len(alerts) != 1 {
		t.Fatalf("expected one revocation alert, got %d", len(alerts))
	}
	if alerts[0].Severity != alerting.SeverityMedium {
		t.Errorf("expected medium severity, got %s", alerts[0].Severity)
	}
}

// ctxCheckingRevoker records whether each revoke attempt arrived with a live
// context before delegating to the mock issuer.
type ctxCheckingRevoker struct {
	inner   *rotation.MockIssuer
	ctxErrs []error
}

func (r *ctxCheckingRevoker) Revoke(ctx context.Context, service, cred string) error {
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.inner.Revoke(ctx, service, cred)
}

func TestExecutor_Rotate_RevokeSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer(rotation.WithRevokeScript(errors.New("revoke rejected")))
	revoker := &ctxCheckingRevoker{inner: issuer}
	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	store.AddSet(testutil.NewTestCredentialSet("stripe", "sk_stripe_old", 10*time.Minute))

	// The caller gives up during the grace wait. The promotion and the
	// revocation that follow must be unaffected.
	wait := rotation.WithWait(func(_ context.Context, d time.Duration) error {
		cancel()
		clk.Advance(d)
		return nil
	})

	e := rotation.NewExecutor(store, issuer, revoker, testutil.NewMockDriverGuard(),
		testutil.NewMockAlerter(), clk, zerolog.Nop(), wait, fastRevokeRetry())

	if err := e.Rotate(ctx, "stripe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	revoked := issuer.Revoked("stripe")
	if len(revoked) != 1 || revoked[0] != "sk_stripe_old" {
		t.Fatalf("expected the superseded credential to be revoked despite cancellation, got %v", revoked)
	}
	if len(revoker.ctxErrs) != 2 {
		t.Fatalf("expected the failed revoke to be retried, got %d attempts", len(revoker.ctxErrs))
	}
	for i, err := range revoker.ctxErrs {
		if err != nil {
			t.Errorf("revoke attempt %d ran on a cancelled context: %v", i+1, err)
		}
	}
}

func TestExecutor_RotateEmergency_AlertsHighSeverity(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockCredentialStore()
	issuer := rotation.NewMockIssuer()
	alerter := testutil.NewMockAlerter()
	clk := clock.NewFixed(time.Now())

	store.AddSet(testutil.NewTestCredentialSet("stripe", "sk_stripe_leaked", 10*time.Minute))

	e := rotation.NewExecutor(store, issuer, issuer, testutil.NewMockDriverGuard(), alerter, clk,
		zerolog.Nop(), instantWait(clk), fastRevokeRetry())

	if err := e.RotateEmergency(ctx, "stripe", "key seen in public repo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alerts := alerter.AlertsOfKind(alerting.KindEmergencyRotation)
	if len(alerts) != 1 {
		t.Fatalf("expected one emergency alert, got %d", len(alerts))
	}
	if alerts[0].Severity != alerting.SeverityHigh {
		t.Errorf("expected high severity, got %s", alerts[0].Severity)
	}
	if len(issuer.Revoked("stripe")) != 1 {
		t.Error("expected the leaked credential to be revoked")
	}
}

func TestExecutor_Rotate_UnknownService(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(time.Now())
	issuer := rotation.NewMockIssuer()

	e := rotation.NewExecutor(testutil.NewMockCredentialStore(), issuer, issuer,
		testutil.NewMockDriverGuard(), testutil.NewMockAlerter(), clk,
		zerolog.Nop(), instantWait(clk), fastRevokeRetry())

	err := e.Rotate(ctx, "nope")
	if !errors.Is(err, domainErrors.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}
