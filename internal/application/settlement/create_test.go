package settlement_test

import (
	"context"
	"errors"
	"testing"

	settlementApp "github.com/skybridge/bookingd/internal/application/settlement"
	"github.com/skybridge/bookingd/internal/domain/outbox"
	domainSettlement "github.com/skybridge/bookingd/internal/domain/settlement"
	"github.com/skybridge/bookingd/internal/testutil"
)

func TestCreateSettlement_Success(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockSettlementRepository()
	ob := &mockOutboxWriter{}
	txManager := testutil.NewMockTransactionManager()

	uc := settlementApp.NewCreateUseCase(repo, ob, txManager)

	resp, err := uc.Execute(ctx, settlementApp.CreateRequest{
		Amount:          420_00,
		Currency:        "EUR",
		ReservationSpec: map[string]any{"offer_id": "off_abc123"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Settlement.State != domainSettlement.StateCreated {
		t.Errorf("expected state created, got %s", resp.Settlement.State)
	}

	stored, err := repo.GetByID(ctx, resp.Settlement.ID)
	if err != nil || stored == nil {
		t.Fatal("expected settlement to be persisted")
	}

	// The wake-up entry commits alongside the settlement.
	if len(ob.entries) != 1 || ob.entries[0].EventType != outbox.EventSettlementCreated {
		t.Fatalf("expected one settlement.created outbox entry, got %v", ob.eventTypes())
	}
	if ob.entries[0].AggregateID != resp.Settlement.ID {
		t.Error("outbox entry should reference the settlement")
	}
}

func TestCreateSettlement_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockSettlementRepository()
	ob := &mockOutboxWriter{}
	txManager := testutil.NewMockTransactionManager()

	uc := settlementApp.NewCreateUseCase(repo, ob, txManager)

	cases := []struct {
		name     string
		amount   int64
		currency string
	}{
		{"zero amount", 0, "USD"},
		{"negative amount", -100, "USD"},
		{"empty currency", 100_00, ""},
		{"bad currency code", 100_00, "DOLLARS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Execute(ctx, settlementApp.CreateRequest{Amount: tc.amount, Currency: tc.currency})
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
	if len(ob.entries) != 0 {
		t.Errorf("expected no outbox entries for rejected requests, got %d", len(ob.entries))
	}
}

func TestCreateSettlement_OutboxFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockSettlementRepository()
	ob := &mockOutboxWriter{err: errors.New("outbox unavailable")}
	txManager := testutil.NewMockTransactionManager()

	uc := settlementApp.NewCreateUseCase(repo, ob, txManager)

	_, err := uc.Execute(ctx, settlementApp.CreateRequest{Amount: 100_00, Currency: "USD"})
	if err == nil {
		t.Fatal("expected error when outbox insert fails, got nil")
	}
}
