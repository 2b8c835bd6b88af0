package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skybridge/bookingd/internal/domain/outbox"
	"github.com/skybridge/bookingd/internal/domain/settlement"
)

// CreateRequest holds the input for creating a settlement.
type CreateRequest struct {
	Amount          int64 // in cents
	Currency        string
	ReservationSpec map[string]any
}

// CreateResponse holds the result of creating a settlement. Processing is
// always asynchronous: the settlement is enqueued and a worker drives it.
type CreateResponse struct {
	Settlement *settlement.Settlement
}

// CreateUseCase accepts a booking settlement and enqueues it for processing.
type CreateUseCase struct {
	repo       settlement.Repository
	outboxRepo OutboxWriter
	txManager  TransactionManager
}

// NewCreateUseCase creates a new CreateUseCase.
func NewCreateUseCase(
	repo settlement.Repository,
	outboxRepo OutboxWriter,
	txManager TransactionManager,
) *CreateUseCase {
	return &CreateUseCase{
		repo:       repo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
	}
}

// Execute creates the settlement in Created and writes the outbox entry that
// will wake a worker. Both writes share one transaction so an accepted
// settlement is always eventually processed.
func (uc *CreateUseCase) Execute(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	s, err := settlement.New(
		settlement.Amount{ValueCents: req.Amount, Currency: req.Currency},
		req.ReservationSpec,
	)
	if err != nil {
		return nil, err
	}

	err = uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.repo.Create(txCtx, s); err != nil {
			return err
		}

		if err := uc.outboxRepo.Insert(txCtx, &OutboxEntry{
			ID:            uuid.New(),
			AggregateType: "settlement",
			AggregateID:   s.ID,
			EventType:     outbox.EventSettlementCreated,
			Payload: map[string]interface{}{
				"settlement_id": s.ID.String(),
				"amount_cents":  s.Amount.ValueCents,
				"currency":      s.Amount.Currency,
			},
			Status:     "pending",
			RetryCount: 0,
			MaxRetries: 5,
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}

		return uc.repo.AddEvent(txCtx, &settlement.Event{
			ID: uuid.New(), SettlementID: s.ID, EventType: outbox.EventSettlementCreated,
			EventData: map[string]interface{}{
				"amount_cents": s.Amount.ValueCents,
				"currency":     s.Amount.Currency,
				"state":        string(s.State),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return &CreateResponse{Settlement: s}, nil
}
