package authorities

import (
	"context"
)

// PaymentAuthority creates, captures, and releases monetary holds against an
// external payment provider. Every mutating call carries an idempotency key;
// repeating a call with the same key must not create a second hold or a
// second capture.
type PaymentAuthority interface {
	// Name returns the upstream service name used for credential resolution.
	Name() string
	// Authorize places a reversible hold. Fails with ErrPaymentDeclined for
	// business declines and a transient error when the authority is unreachable.
	Authorize(ctx context.Context, req AuthorizeRequest) (holdID string, err error)
	// Capture converts a hold into a settled charge.
	Capture(ctx context.Context, holdID, idempotencyKey string) error
	// Release frees an uncaptured hold.
	Release(ctx context.Context, holdID string) error
}

// InventoryAuthority commits and cancels reservations against an external
// travel-inventory provider. Idempotent per operation key.
type InventoryAuthority interface {
	Name() string
	// Commit books the reservation. Fails with ErrReservationRejected when
	// the inventory is unavailable, or a transient error otherwise.
	Commit(ctx context.Context, req CommitRequest) (reservationID string, err error)
	// Cancel voids a committed reservation.
	Cancel(ctx context.Context, reservationID string) error
}

// AuthorizeRequest describes a monetary hold to place.
type AuthorizeRequest struct {
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// CommitRequest describes a reservation to commit.
type CommitRequest struct {
	Spec           map[string]any
	IdempotencyKey string
}
