package postgres

import (
	"context"

	settlementApp "github.com/skybridge/bookingd/internal/application/settlement"
	"github.com/skybridge/bookingd/internal/domain/outbox"
)

// OutboxAdapter adapts OutboxRepository to the application-layer OutboxWriter interface.
type OutboxAdapter struct {
	repo *OutboxRepository
}

// NewOutboxAdapter creates a new OutboxAdapter.
func NewOutboxAdapter(repo *OutboxRepository) *OutboxAdapter {
	return &OutboxAdapter{repo: repo}
}

// Insert converts an application-layer OutboxEntry to the domain type and inserts it.
func (a *OutboxAdapter) Insert(ctx context.Context, entry *settlementApp.OutboxEntry) error {
	return a.repo.Insert(ctx, &outbox.Entry{
		ID:            entry.ID,
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		EventType:     entry.EventType,
		Payload:       entry.Payload,
		Status:        outbox.Status(entry.Status),
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
		CreatedAt:     entry.CreatedAt,
		PublishedAt:   entry.PublishedAt,
	})
}
