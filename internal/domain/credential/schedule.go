package credential

import "time"

const (
	// retryDelay is how soon a failed rotation is reattempted while the
	// retry budget lasts.
	retryDelay = 2 * time.Hour
	// escalationDelay pushes the next attempt out a full day once the retry
	// budget is exhausted, so a broken service is not rotated in a tight loop.
	escalationDelay = 24 * time.Hour
	// overdueThreshold is how far past due a rotation may be before every
	// scheduler pass raises a medium-severity alert.
	overdueThreshold = 7 * 24 * time.Hour
)

// Schedule tracks when a service's credential is next due for rotation and
// how the current attempt streak is going.
type Schedule struct {
	Service        string
	FrequencyDays  int
	AutoRotate     bool
	MaxRetries     int
	RetryCount     int
	NextRotationAt time.Time
	LastRotationAt *time.Time
	UpdatedAt      time.Time
}

// NewSchedule creates a schedule whose first rotation is one full frequency
// window from now.
func NewSchedule(service string, policy Policy, now time.Time) *Schedule {
	return &Schedule{
		Service:        service,
		FrequencyDays:  policy.FrequencyDays,
		AutoRotate:     policy.AutoRotate,
		MaxRetries:     policy.MaxRetries,
		NextRotationAt: now.Add(time.Duration(policy.FrequencyDays) * 24 * time.Hour),
		UpdatedAt:      now,
	}
}

// Due reports whether an automatic rotation should run now.
func (s *Schedule) Due(now time.Time) bool {
	return s.AutoRotate && !now.Before(s.NextRotationAt)
}

// Overdue returns how far past due the schedule is, and whether that exceeds
// the alerting threshold. Manual-rotation services go overdue too.
func (s *Schedule) Overdue(now time.Time) (time.Duration, bool) {
	past := now.Sub(s.NextRotationAt)
	return past, past > overdueThreshold
}

// RecordSuccess resets the retry streak and schedules the next full window.
func (s *Schedule) RecordSuccess(now time.Time) {
	s.RetryCount = 0
	t := now
	s.LastRotationAt = &t
	s.NextRotationAt = now.Add(time.Duration(s.FrequencyDays) * 24 * time.Hour)
	s.UpdatedAt = now
}

// RecordFailure bumps the retry streak and reschedules. It returns true when
// the retry budget is exhausted: the caller must escalate, and the streak is
// reset with the next attempt pushed a day out.
func (s *Schedule) RecordFailure(now time.Time) (escalate bool) {
	s.RetryCount++
	s.UpdatedAt = now
	if s.RetryCount >= s.MaxRetries {
		s.RetryCount = 0
		s.NextRotationAt = now.Add(escalationDelay)
		return true
	}
	s.NextRotationAt = now.Add(retryDelay)
	return false
}
