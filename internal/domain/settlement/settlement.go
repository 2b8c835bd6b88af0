package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skybridge/bookingd/internal/domain/errors"
)

// State represents the settlement's position in the state machine.
type State string

const (
	StateCreated               State = "created"
	StateAuthorized            State = "authorized"
	StateInventoryCommitted    State = "inventory_committed"
	StateCaptured              State = "captured"
	StateSettled               State = "settled"
	StateCompensatingPayment   State = "compensating_payment"
	StateCompensatingInventory State = "compensating_inventory"
	StateFailed                State = "failed"
)

// Operation names the downstream calls a settlement makes. They key the
// idempotency value sent to the external authorities.
type Operation string

const (
	OpAuthorize Operation = "authorize"
	OpCommit    Operation = "commit"
	OpCapture   Operation = "capture"
)

// Settlement is one booking's end-to-end authorize → commit → capture
// sequence. It is created by the orchestrator and mutated only by it;
// terminal states are immutable.
type Settlement struct {
	ID            uuid.UUID
	State         State
	PaymentHoldID *string
	ReservationID *string
	Amount        Amount
	// ReservationSpec is the opaque reservation request forwarded to the
	// inventory authority (offer id, passenger details, ...).
	ReservationSpec map[string]any
	// Attempts counts retries of the current phase.
	Attempts int
	// Reason is the human-readable failure cause for terminal failures.
	Reason *string
	// NeedsReconciliation marks settlements whose compensation exhausted its
	// retries: one side may still hold a resource and an operator must
	// reconcile manually.
	NeedsReconciliation bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// New creates a settlement in the Created state.
func New(amount Amount, reservationSpec map[string]any) (*Settlement, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if reservationSpec == nil {
		reservationSpec = make(map[string]any)
	}

	now := time.Now()
	return &Settlement{
		ID:              uuid.New(),
		State:           StateCreated,
		Amount:          amount,
		ReservationSpec: reservationSpec,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// OperationKey derives the idempotency key for a downstream operation.
// It is deterministic per (settlement, operation) so a retried call reuses
// the exact same key and the external authority deduplicates it.
func (s *Settlement) OperationKey(op Operation) string {
	return fmt.Sprintf("%s:%s", s.ID, op)
}

// CanTransitionTo checks whether the settlement may move to the given state.
func (s *Settlement) CanTransitionTo(next State) bool {
	transitions := map[State][]State{
		StateCreated: {
			StateAuthorized,
			StateFailed, // authorization declined or unreachable
		},
		StateAuthorized: {
			StateInventoryCommitted,
			StateCompensatingPayment, // commit failed, release the hold
		},
		StateInventoryCommitted: {
			StateCaptured,
			StateCompensatingInventory, // capture failed, cancel the reservation
		},
		StateCaptured: {
			StateSettled,
		},
		StateCompensatingPayment: {
			StateFailed,
		},
		StateCompensatingInventory: {
			StateFailed,
		},
		StateSettled: {}, // Terminal state
		StateFailed:  {}, // Terminal state
	}

	allowed, exists := transitions[s.State]
	if !exists {
		return false
	}
	for _, a := range allowed {
		if a == next {
			return true
		}
	}
	return false
}

// TransitionTo transitions the settlement to a new state.
func (s *Settlement) TransitionTo(next State) error {
	if !s.CanTransitionTo(next) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(s.State)+" to "+string(next),
			errors.ErrInvalidStateTransition,
		)
	}

	s.State = next
	s.UpdatedAt = time.Now()

	if next == StateSettled || next == StateFailed {
		now := time.Now()
		s.CompletedAt = &now
	}

	return nil
}

// MarkAuthorized records the payment hold and moves to Authorized.
func (s *Settlement) MarkAuthorized(holdID string) error {
	if err := s.TransitionTo(StateAuthorized); err != nil {
		return err
	}
	s.PaymentHoldID = &holdID
	return nil
}

// MarkInventoryCommitted records the reservation and moves to InventoryCommitted.
func (s *Settlement) MarkInventoryCommitted(reservationID string) error {
	if err := s.TransitionTo(StateInventoryCommitted); err != nil {
		return err
	}
	s.ReservationID = &reservationID
	return nil
}

// MarkCaptured moves to Captured after a successful capture.
func (s *Settlement) MarkCaptured() error {
	return s.TransitionTo(StateCaptured)
}

// MarkSettled moves the settlement to its successful terminal state.
func (s *Settlement) MarkSettled() error {
	return s.TransitionTo(StateSettled)
}

// BeginCompensation moves into the compensation state for the failed phase.
func (s *Settlement) BeginCompensation(comp State) error {
	if comp != StateCompensatingPayment && comp != StateCompensatingInventory {
		return errors.NewDomainError(
			"invalid_transition",
			string(comp)+" is not a compensation state",
			errors.ErrInvalidStateTransition,
		)
	}
	return s.TransitionTo(comp)
}

// MarkFailed moves the settlement to its failed terminal state. reconcile
// flags the record for manual reconciliation when compensation could not be
// confirmed.
func (s *Settlement) MarkFailed(reason string, reconcile bool) error {
	if err := s.TransitionTo(StateFailed); err != nil {
		return err
	}
	s.Reason = &reason
	s.NeedsReconciliation = reconcile
	return nil
}

// IncrementAttempts bumps the per-phase retry counter.
func (s *Settlement) IncrementAttempts() {
	s.Attempts++
	s.UpdatedAt = time.Now()
}

// IsTerminal checks whether the settlement reached a terminal state.
func (s *Settlement) IsTerminal() bool {
	return s.State == StateSettled || s.State == StateFailed
}

func validateAmount(amount Amount) error {
	if amount.ValueCents <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	// Simple currency validation (3-letter code)
	if len(amount.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}
