package errors

import (
	"errors"
	"fmt"
)

var (
	// Settlement errors
	ErrSettlementNotFound     = errors.New("settlement not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrSettlementInProgress   = errors.New("settlement already being processed")
	ErrMaxRetriesExceeded     = errors.New("max retries exceeded")

	// Authority errors
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrReservationRejected    = errors.New("reservation rejected")
	ErrAuthorityUnavailable   = errors.New("external authority unavailable")
	ErrAuthorityTimeout       = errors.New("external authority request timeout")
	ErrAuthorityNotConfigured = errors.New("external authority not configured")

	// Credential errors
	ErrCredentialNotFound    = errors.New("credential not found for service")
	ErrRotationInProgress    = errors.New("rotation already in progress")
	ErrNoCandidateCredential = errors.New("no candidate credential to promote")
	ErrScheduleNotFound      = errors.New("rotation schedule not found")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// Transient reports whether err is an infra-level failure worth retrying.
// Business declines and rejections are never transient.
func Transient(err error) bool {
	return errors.Is(err, ErrAuthorityUnavailable) || errors.Is(err, ErrAuthorityTimeout)
}

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
