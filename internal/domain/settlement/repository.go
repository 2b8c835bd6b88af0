package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for settlement persistence
type Repository interface {
	// Create creates a new settlement
	Create(ctx context.Context, s *Settlement) error

	// GetByID retrieves a settlement by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Settlement, error)

	// Update updates an existing settlement
	Update(ctx context.Context, s *Settlement) error

	// List lists settlements with filters
	List(ctx context.Context, filter ListFilter) ([]*Settlement, error)

	// AddEvent adds a settlement event for the audit trail
	AddEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves events for a settlement
	GetEvents(ctx context.Context, settlementID uuid.UUID) ([]*Event, error)
}

// ListFilter defines filters for listing settlements
type ListFilter struct {
	State               *State
	NeedsReconciliation *bool
	Limit               int
	Offset              int
	SortBy              string
	SortOrder           string
}

// Event represents an audited transition or action in the settlement lifecycle.
type Event struct {
	ID           uuid.UUID
	SettlementID uuid.UUID
	EventType    string
	EventData    map[string]any
	CreatedAt    time.Time
}
