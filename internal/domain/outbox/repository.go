package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists outbox entries. Insert runs inside the same
// transaction as the state change that produced the event; the publisher
// loop drains pending entries and routes them onto the redis streams.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns up to limit entries in creation order, locking
	// them against concurrent publisher instances.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed bumps the retry count; entries past the retry budget stay
	// failed for manual replay.
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
