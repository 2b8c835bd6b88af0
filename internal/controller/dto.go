package controller

import (
	"time"

	"github.com/skybridge/bookingd/internal/domain/settlement"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, string for IDs,
// validation tags). Controllers convert these to application layer DTOs
// before calling business logic.

// CreateSettlementRequest holds the input for opening a settlement.
type CreateSettlementRequest struct {
	Amount          float64        `json:"amount" validate:"required,gt=0"`
	Currency        string         `json:"currency" validate:"required,len=3"`
	ReservationSpec map[string]any `json:"reservation_spec" validate:"required"`
}

// RotateRequest holds the input for a manually triggered rotation.
type RotateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// --- Response DTOs ---

// SettlementResponse represents a settlement in API responses.
type SettlementResponse struct {
	ID                  string         `json:"id"`
	State               string         `json:"state"`
	PaymentHoldID       *string        `json:"payment_hold_id,omitempty"`
	ReservationID       *string        `json:"reservation_id,omitempty"`
	Amount              float64        `json:"amount"`
	Currency            string         `json:"currency"`
	ReservationSpec     map[string]any `json:"reservation_spec,omitempty"`
	Attempts            int            `json:"attempts"`
	Reason              *string        `json:"reason,omitempty"`
	NeedsReconciliation bool           `json:"needs_reconciliation"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
}

// SettlementEventResponse represents one audit trail entry.
type SettlementEventResponse struct {
	ID           string         `json:"id"`
	SettlementID string         `json:"settlement_id"`
	EventType    string         `json:"event_type"`
	EventData    map[string]any `json:"event_data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RotateResponse acknowledges a triggered rotation.
type RotateResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromSettlement converts a domain settlement to API response.
func FromSettlement(s *settlement.Settlement) *SettlementResponse {
	return &SettlementResponse{
		ID:                  s.ID.String(),
		State:               string(s.State),
		PaymentHoldID:       s.PaymentHoldID,
		ReservationID:       s.ReservationID,
		Amount:              centsToFloat(s.Amount.ValueCents),
		Currency:            s.Amount.Currency,
		ReservationSpec:     s.ReservationSpec,
		Attempts:            s.Attempts,
		Reason:              s.Reason,
		NeedsReconciliation: s.NeedsReconciliation,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
		CompletedAt:         s.CompletedAt,
	}
}

// FromEvent converts a domain settlement event to API response.
func FromEvent(e *settlement.Event) *SettlementEventResponse {
	return &SettlementEventResponse{
		ID:           e.ID.String(),
		SettlementID: e.SettlementID.String(),
		EventType:    e.EventType,
		EventData:    e.EventData,
		CreatedAt:    e.CreatedAt,
	}
}

// floatToCents converts a float currency amount to cents.
func floatToCents(f float64) int64 {
	return int64(f * 100)
}

// centsToFloat converts cents to a float currency amount.
func centsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}
