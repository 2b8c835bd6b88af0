package credential

import (
	"time"

	"github.com/skybridge/bookingd/internal/domain/errors"
)

// Set holds, per upstream service, the currently active credential and
// (during rotation) a candidate credential being promoted. Sets are created
// at service onboarding, mutated only by the rotation executor, and never
// deleted, only superseded.
type Set struct {
	Service string
	Active  string
	// Candidate is the not-yet-promoted credential introduced during
	// rotation. Candidate and RotationStartedAt are always present together.
	Candidate         *string
	RotationStartedAt *time.Time
	GracePeriod       time.Duration
	UpdatedAt         time.Time
}

// Validate checks the candidate/rotationStartedAt pairing invariant.
func (s *Set) Validate() error {
	if (s.Candidate == nil) != (s.RotationStartedAt == nil) {
		return errors.NewDomainError(
			"invalid_credential_set",
			"candidate and rotation_started_at must be present together",
			errors.ErrInvalidInput,
		)
	}
	return nil
}

// Rotating reports whether a rotation is in flight for this set. The flag is
// derived from candidate presence, not from in-memory state, so it survives
// a process restart mid-rotation.
func (s *Set) Rotating() bool {
	return s.Candidate != nil
}

// Resolve returns the credential a consumer should use at the given instant.
// While no rotation is in flight it returns the active credential. During a
// rotation the first half of the grace period still returns the proven
// active credential; the second half prefers the candidate, so late traffic
// exercises the new key before the old one is revoked.
func (s *Set) Resolve(now time.Time) string {
	if s.Candidate == nil || s.RotationStartedAt == nil {
		return s.Active
	}
	if now.Sub(*s.RotationStartedAt) >= s.GracePeriod/2 {
		return *s.Candidate
	}
	return s.Active
}

// BeginRotation installs a candidate credential, leaving the active one
// untouched. Fails fast if a rotation is already in flight.
func (s *Set) BeginRotation(candidate string, now time.Time) error {
	if s.Rotating() {
		return errors.ErrRotationInProgress
	}
	s.Candidate = &candidate
	s.RotationStartedAt = &now
	s.UpdatedAt = now
	return nil
}

// Promote makes the candidate the active credential and clears the rotation
// markers. Returns the superseded credential so the caller can revoke it.
func (s *Set) Promote(now time.Time) (old string, err error) {
	if s.Candidate == nil {
		return "", errors.ErrNoCandidateCredential
	}
	old = s.Active
	s.Active = *s.Candidate
	s.Candidate = nil
	s.RotationStartedAt = nil
	s.UpdatedAt = now
	return old, nil
}

// AbandonRotation clears an in-flight candidate without promoting it, used
// when restart recovery decides a stale rotation should be re-evaluated.
func (s *Set) AbandonRotation(now time.Time) {
	s.Candidate = nil
	s.RotationStartedAt = nil
	s.UpdatedAt = now
}
