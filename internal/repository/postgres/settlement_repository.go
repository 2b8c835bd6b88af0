package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
	"github.com/skybridge/bookingd/internal/domain/settlement"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"amount":     "amount",
	"state":      "state",
	"updated_at": "updated_at",
}

// SettlementRepository implements settlement.Repository using PostgreSQL.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository.
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

func (r *SettlementRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new settlement.
func (r *SettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	spec, err := json.Marshal(s.ReservationSpec)
	if err != nil {
		return fmt.Errorf("marshal reservation spec: %w", err)
	}

	amountStr := centsToNumericString(s.Amount.ValueCents)

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO settlements
		 (id, state, payment_hold_id, reservation_id, amount, currency, reservation_spec,
		  attempts, reason, needs_reconciliation, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.ID, string(s.State), s.PaymentHoldID, s.ReservationID,
		amountStr, s.Amount.Currency, spec,
		s.Attempts, s.Reason, s.NeedsReconciliation, s.CreatedAt, s.UpdatedAt, s.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByID retrieves a settlement by its ID.
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	return r.scanSettlement(r.db(ctx).QueryRow(ctx,
		`SELECT id, state, payment_hold_id, reservation_id, amount, currency, reservation_spec,
		        attempts, reason, needs_reconciliation, created_at, updated_at, completed_at
		 FROM settlements WHERE id = $1`, id))
}

// Update updates an existing settlement.
func (r *SettlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE settlements SET
		  state=$1, payment_hold_id=$2, reservation_id=$3,
		  attempts=$4, reason=$5, needs_reconciliation=$6,
		  updated_at=$7, completed_at=$8
		 WHERE id=$9`,
		string(s.State), s.PaymentHoldID, s.ReservationID,
		s.Attempts, s.Reason, s.NeedsReconciliation,
		s.UpdatedAt, s.CompletedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSettlementNotFound
	}
	return nil
}

// List lists settlements with optional filters.
func (r *SettlementRepository) List(ctx context.Context, f settlement.ListFilter) ([]*settlement.Settlement, error) {
	query := `SELECT id, state, payment_hold_id, reservation_id, amount, currency, reservation_spec,
		        attempts, reason, needs_reconciliation, created_at, updated_at, completed_at
		 FROM settlements WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(*f.State))
		argIdx++
	}
	if f.NeedsReconciliation != nil {
		query += fmt.Sprintf(" AND needs_reconciliation = $%d", argIdx)
		args = append(args, *f.NeedsReconciliation)
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*settlement.Settlement
	for rows.Next() {
		s, err := r.scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

// AddEvent inserts a settlement event.
func (r *SettlementRepository) AddEvent(ctx context.Context, event *settlement.Event) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO settlement_events (id, settlement_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		event.ID, event.SettlementID, event.EventType, data,
	)
	if err != nil {
		return fmt.Errorf("insert settlement event: %w", err)
	}
	return nil
}

// GetEvents retrieves events for a settlement.
func (r *SettlementRepository) GetEvents(ctx context.Context, settlementID uuid.UUID) ([]*settlement.Event, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, settlement_id, event_type, event_data, created_at
		 FROM settlement_events WHERE settlement_id = $1 ORDER BY created_at ASC`, settlementID,
	)
	if err != nil {
		return nil, fmt.Errorf("list settlement events: %w", err)
	}
	defer rows.Close()

	var events []*settlement.Event
	for rows.Next() {
		e := &settlement.Event{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.SettlementID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(data, &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- scanning helpers ---

// scanSettlement scans a settlement from any source implementing the scanner interface.
func (r *SettlementRepository) scanSettlement(sc scanner) (*settlement.Settlement, error) {
	s := &settlement.Settlement{ReservationSpec: make(map[string]any)}
	var (
		state     string
		amountStr string
		spec      []byte
	)
	err := sc.Scan(
		&s.ID, &state, &s.PaymentHoldID, &s.ReservationID,
		&amountStr, &s.Amount.Currency, &spec,
		&s.Attempts, &s.Reason, &s.NeedsReconciliation, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("scan settlement: %w", err)
	}

	cents, err := numericStringToCents(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	s.Amount.ValueCents = cents

	s.State = settlement.State(state)
	if len(spec) > 0 {
		if err := json.Unmarshal(spec, &s.ReservationSpec); err != nil {
			return nil, fmt.Errorf("unmarshal reservation spec: %w", err)
		}
	}
	return s, nil
}
