package rotation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybridge/bookingd/internal/alerting"
	"github.com/skybridge/bookingd/internal/clock"
	"github.com/skybridge/bookingd/internal/domain/credential"
	"github.com/skybridge/bookingd/internal/infrastructure/observability"
)

// Scheduler periodically walks the rotation schedules, rotates whatever is
// due, and raises alerts for overdue or repeatedly failing rotations.
type Scheduler struct {
	schedules credential.ScheduleRepository
	store     credential.Store
	executor  *Executor
	alerter   alerting.Alerter
	clk       clock.Clock
	metrics   *observability.Metrics
	interval  time.Duration
	logger    zerolog.Logger
}

// NewScheduler creates a Scheduler. metrics may be nil.
func NewScheduler(
	schedules credential.ScheduleRepository,
	store credential.Store,
	executor *Executor,
	alerter alerting.Alerter,
	clk clock.Clock,
	metrics *observability.Metrics,
	interval time.Duration,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		schedules: schedules,
		store:     store,
		executor:  executor,
		alerter:   alerter,
		clk:       clk,
		metrics:   metrics,
		interval:  interval,
		logger:    logger.With().Str("component", "rotation_scheduler").Logger(),
	}
}

// EnsureSchedules creates schedules for services that have a credential set
// but no schedule yet, using the policy table. Existing schedules are left
// untouched.
func (s *Scheduler) EnsureSchedules(ctx context.Context, policies map[string]credential.Policy) error {
	sets, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	now := s.clk.Now()
	for _, set := range sets {
		if _, err := s.schedules.Get(ctx, set.Service); err == nil {
			continue
		}
		policy := credential.PolicyFor(policies, set.Service)
		if err := s.schedules.Put(ctx, credential.NewSchedule(set.Service, policy, now)); err != nil {
			return err
		}
		s.logger.Info().
			Str("service", set.Service).
			Int("frequency_days", policy.FrequencyDays).
			Bool("auto_rotate", policy.AutoRotate).
			Msg("rotation schedule created")
	}
	return nil
}

// Run drives scheduler passes until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("rotation scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("rotation scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunPass(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduler pass failed")
			}
		}
	}
}

// RunPass executes one scheduler pass: rotate due services, reschedule
// failures, alert on exhausted retry budgets and overdue rotations.
func (s *Scheduler) RunPass(ctx context.Context) error {
	all, err := s.schedules.List(ctx)
	if err != nil {
		return err
	}

	now := s.clk.Now()
	overdueCount := 0
	for _, sched := range all {
		s.observeAge(sched, now)

		if past, overdue := sched.Overdue(now); overdue {
			overdueCount++
			if err := s.alerter.Alert(ctx, alerting.Alert{
				Kind:     alerting.KindRotationOverdue,
				Severity: alerting.SeverityMedium,
				Message:  "credential rotation is overdue",
				Fields: map[string]any{
					"service":          sched.Service,
					"overdue_days":     int(past.Hours() / 24),
					"next_rotation_at": sched.NextRotationAt,
					"auto_rotate":      sched.AutoRotate,
				},
				Timestamp: now,
			}); err != nil {
				s.logger.Error().Err(err).Str("service", sched.Service).Msg("failed to raise overdue alert")
			}
		}

		if !sched.Due(now) {
			continue
		}
		s.rotateDue(ctx, sched)
	}

	if s.metrics != nil {
		s.metrics.OverdueRotations.Set(float64(overdueCount))
	}
	return nil
}

func (s *Scheduler) rotateDue(ctx context.Context, sched *credential.Schedule) {
	start := s.clk.Now()
	err := s.executor.Rotate(ctx, sched.Service)
	now := s.clk.Now()

	if err == nil {
		sched.RecordSuccess(now)
		if s.metrics != nil {
			s.metrics.RotationsTotal.WithLabelValues(sched.Service, "success").Inc()
			s.metrics.RotationDuration.WithLabelValues(sched.Service).Observe(now.Sub(start).Seconds())
		}
		if err := s.schedules.Put(ctx, sched); err != nil {
			s.logger.Error().Err(err).Str("service", sched.Service).Msg("failed to persist schedule after rotation")
		}
		return
	}

	s.logger.Error().Err(err).Str("service", sched.Service).Msg("scheduled rotation failed")
	if s.metrics != nil {
		s.metrics.RotationsTotal.WithLabelValues(sched.Service, "failure").Inc()
	}

	escalate := sched.RecordFailure(now)
	if err := s.schedules.Put(ctx, sched); err != nil {
		s.logger.Error().Err(err).Str("service", sched.Service).Msg("failed to persist schedule after failure")
	}
	if escalate {
		if alertErr := s.alerter.Alert(ctx, alerting.Alert{
			Kind:     alerting.KindRotationFailure,
			Severity: alerting.SeverityHigh,
			Message:  "credential rotation exhausted its retry budget",
			Fields: map[string]any{
				"service":          sched.Service,
				"max_retries":      sched.MaxRetries,
				"error":            err.Error(),
				"next_rotation_at": sched.NextRotationAt,
			},
			Timestamp: now,
		}); alertErr != nil {
			s.logger.Error().Err(alertErr).Str("service", sched.Service).Msg("failed to raise escalation alert")
		}
	}
}

func (s *Scheduler) observeAge(sched *credential.Schedule, now time.Time) {
	if s.metrics == nil || sched.LastRotationAt == nil {
		return
	}
	age := now.Sub(*sched.LastRotationAt).Hours() / 24
	s.metrics.CredentialAge.WithLabelValues(sched.Service).Set(age)
}

// ServiceStatus is the per-service rotation summary exposed by the API.
type ServiceStatus struct {
	Service        string     `json:"service"`
	AutoRotate     bool       `json:"auto_rotate"`
	Rotating       bool       `json:"rotating"`
	RetryCount     int        `json:"retry_count"`
	NextRotationAt time.Time  `json:"next_rotation_at"`
	LastRotationAt *time.Time `json:"last_rotation_at,omitempty"`
	OverdueDays    int        `json:"overdue_days,omitempty"`
}

// Status reports every scheduled service's rotation state.
func (s *Scheduler) Status(ctx context.Context) ([]ServiceStatus, error) {
	all, err := s.schedules.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	statuses := make([]ServiceStatus, 0, len(all))
	for _, sched := range all {
		st := ServiceStatus{
			Service:        sched.Service,
			AutoRotate:     sched.AutoRotate,
			RetryCount:     sched.RetryCount,
			NextRotationAt: sched.NextRotationAt,
			LastRotationAt: sched.LastRotationAt,
		}
		if set, err := s.store.Get(ctx, sched.Service); err == nil {
			st.Rotating = set.Rotating()
		}
		if past, overdue := sched.Overdue(now); overdue {
			st.OverdueDays = int(past.Hours() / 24)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
