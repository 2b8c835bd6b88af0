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
	"github.com/skybridge/bookingd/internal/domain/credential"
	"github.com/skybridge/bookingd/internal/testutil"
)

type schedulerFixture struct {
	schedules *testutil.MockScheduleRepository
	store     *testutil.MockCredentialStore
	issuer    *rotation.MockIssuer
	alerter   *testutil.MockAlerter
	clk       *clock.Fixed
	scheduler *rotation.Scheduler
}

func newSchedulerFixture(t *testing.T, issuerOpts ...rotation.MockIssuerOption) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		schedules: testutil.NewMockScheduleRepository(),
		store:     testutil.NewMockCredentialStore(),
		issuer:    rotation.NewMockIssuer(issuerOpts...),
		alerter:   testutil.NewMockAlerter(),
		clk:       clock.NewFixed(time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)),
	}
	executor := rotation.NewExecutor(f.store, f.issuer, f.issuer, testutil.NewMockDriverGuard(),
		f.alerter, f.clk, zerolog.Nop(), instantWait(f.clk), fastRevokeRetry())
	f.scheduler = rotation.NewScheduler(f.schedules, f.store, executor, f.alerter, f.clk,
		nil, time.Hour, zerolog.Nop())
	return f
}

func (f *schedulerFixture) addService(service string, policy credential.Policy) *credential.Schedule {
	f.store.AddSet(testutil.NewTestCredentialSet(service, "sk_"+service+"_old", policy.GracePeriod))
	sched := credential.NewSchedule(service, policy, f.clk.Now())
	f.schedules.AddSchedule(sched)
	return sched
}

func TestScheduler_RotatesDueService(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	policy := credential.Policy{FrequencyDays: 90, AutoRotate: true, MaxRetries: 3, GracePeriod: 10 * time.Minute}
	f.addService("stripe", policy)

	// Not due yet: nothing happens.
	if err := f.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.issuer.IssueCalls != 0 {
		t.Fatalf("expected no rotation before the due date, got %d issues", f.issuer.IssueCalls)
	}

	// Cross the due date.
	f.clk.Advance(90*24*time.Hour + time.Minute)
	if err := f.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.issuer.IssueCalls != 1 {
		t.Errorf("expected one rotation, got %d", f.issuer.IssueCalls)
	}
	sched, _ := f.schedules.Get(ctx, "stripe")
	if sched.RetryCount != 0 {
		t.Errorf("expected retry count reset, got %d", sched.RetryCount)
	}
	if sched.LastRotationAt == nil {
		t.Fatal("expected last rotation timestamp to be recorded")
	}
	next := sched.LastRotationAt.Add(90 * 24 * time.Hour)
	if !sched.NextRotationAt.Equal(next) {
		t.Errorf("expected next rotation a full window out, got %v", sched.NextRotationAt)
	}
}

func TestScheduler_ManualServiceNeverAutoRotates(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	f.addService("duffel", credential.Policy{FrequencyDays: 180, AutoRotate: false, MaxRetries: 2, GracePeriod: 30 * time.Minute})

	f.clk.Advance(200 * 24 * time.Hour)
	if err := f.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.issuer.IssueCalls != 0 {
		t.Errorf("manual service must not be auto-rotated, got %d issues", f.issuer.IssueCalls)
	}
	// But it does go overdue and gets flagged.
	if len(f.alerter.AlertsOfKind(alerting.KindRotationOverdue)) != 1 {
		t.Error("expected an overdue alert for the manual service")
	}
}

func TestScheduler_FailureRetriesInTwoHours(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, rotation.WithIssueScript(errors.New("key API down")))
	f.addService("stripe", credential.Policy{FrequencyDays: 90, AutoRotate: true, MaxRetries: 3, GracePeriod: 10 * time.Minute})

	f.clk.Advance(90 * 24 * time.Hour)
	if err := f.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched, _ := f.schedules.Get(ctx, "stripe")
	if sched.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", sched.RetryCount)
	}
	expected := f.clk.Now().Add(2 * time.Hour)
	if !sched.NextRotationAt.Equal(expected) {
		t.Errorf("expected retry in two hours, got %v", sched.NextRotationAt)
	}
	if len(f.alerter.AlertsOfKind(alerting.KindRotationFailure)) != 0 {
		t.Error("a single failure within the retry budget should not escalate")
	}
}

func TestScheduler_RetryBudgetExhausted_Escalates(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, rotation.WithIssueScript(
		errors.New("key API down"),
		errors.New("key API down"),
		errors.New("key API down"),
		errors.New("key API down"),
	))
	f.addService("stripe", credential.Policy{FrequencyDays: 90, AutoRotate: true, MaxRetries: 3, GracePeriod: 10 * time.Minute})

	f.clk.Advance(90 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		if err := f.scheduler.RunPass(ctx); err != nil {
			t.Fatalf("pass %d: unexpected error: %v", i, err)
		}
		f.clk.Advance(2*time.Hour + time.Minute)
	}

	sched, _ := f.schedules.Get(ctx, "stripe")
	// The third failure exhausts the budget: streak resets, next attempt a
	// full day out, and the on-call hears about it.
	if sched.RetryCount != 0 {
		t.Errorf("expected retry streak reset after escalation, got %d", sched.RetryCount)
	}
	alerts := f.alerter.AlertsOfKind(alerting.KindRotationFailure)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one escalation alert, got %d", len(alerts))
	}
	if alerts[0].Severity != alerting.SeverityHigh {
		t.Errorf("expected high severity, got %s", alerts[0].Severity)
	}

	// The next pass is before the day-long backoff: no further attempt.
	issuesBefore := f.issuer.IssueCalls
	if err := f.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.issuer.IssueCalls != issuesBefore {
		t.Error("expected no rotation attempt during the escalation backoff")
	}
}

func TestScheduler_OverdueAlertEveryPass(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	f.addService("amadeus", credential.Policy{FrequencyDays: 365, AutoRotate: false, MaxRetries: 2, GracePeriod: 30 * time.Minute})

	// Eight days past due crosses the seven-day threshold.
	f.clk.Advance(373 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		if err := f.scheduler.RunPass(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	alerts := f.alerter.AlertsOfKind(alerting.KindRotationOverdue)
	if len(alerts) != 3 {
		t.Fatalf("expected one overdue alert per pass, got %d", len(alerts))
	}
	if alerts[0].Severity != alerting.SeverityMedium {
		t.Errorf("expected medium severity, got %s", alerts[0].Severity)
	}
	if alerts[0].Fields["overdue_days"].(int) < 8 {
		t.Errorf("expected overdue_days >= 8, got %v", alerts[0].Fields["overdue_days"])
	}
}

func TestScheduler_EnsureSchedules(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	f.store.AddSet(testutil.NewTestCredentialSet("stripe", "sk_stripe", 10*time.Minute))
	f.store.AddSet(testutil.NewTestCredentialSet("duffel", "sk_duffel", 30*time.Minute))
	// stripe already has a schedule with local tweaks; it must survive.
	existing := credential.NewSchedule("stripe", credential.Policy{FrequencyDays: 30, AutoRotate: true, MaxRetries: 5}, f.clk.Now())
	f.schedules.AddSchedule(existing)

	if err := f.scheduler.EnsureSchedules(ctx, credential.DefaultPolicies()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stripe, _ := f.schedules.Get(ctx, "stripe")
	if stripe.FrequencyDays != 30 {
		t.Errorf("existing schedule must not be overwritten, got frequency %d", stripe.FrequencyDays)
	}
	duffel, err := f.schedules.Get(ctx, "duffel")
	if err != nil {
		t.Fatal("expected a schedule to be created for duffel")
	}
	if duffel.AutoRotate {
		t.Error("duffel policy is manual rotation")
	}
	if duffel.FrequencyDays != 180 {
		t.Errorf("expected duffel frequency 180, got %d", duffel.FrequencyDays)
	}
}

func TestScheduler_Status(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	f.addService("stripe", credential.Policy{FrequencyDays: 90, AutoRotate: true, MaxRetries: 3, GracePeriod: 10 * time.Minute})

	set, _ := f.store.Get(ctx, "stripe")
	if err := set.BeginRotation("sk_stripe_new", f.clk.Now()); err != nil {
		t.Fatal(err)
	}

	statuses, err := f.scheduler.Status(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected one status, got %d", len(statuses))
	}
	st := statuses[0]
	if st.Service != "stripe" || !st.AutoRotate {
		t.Errorf("unexpected status: %+v", st)
	}
	if !st.Rotating {
		t.Error("expected status to report the in-flight rotation")
	}
}
