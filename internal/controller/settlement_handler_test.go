package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	settlementApp "github.com/skybridge/bookingd/internal/application/settlement"
	"github.com/skybridge/bookingd/internal/domain/settlement"
	"github.com/skybridge/bookingd/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type stubOutboxWriter struct {
	entries []*settlementApp.OutboxEntry
}

func (s *stubOutboxWriter) Insert(ctx context.Context, entry *settlementApp.OutboxEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newSettlementHandler() (*SettlementController, *testutil.MockSettlementRepository) {
	repo := testutil.NewMockSettlementRepository()
	uc := settlementApp.NewCreateUseCase(repo, &stubOutboxWriter{}, testutil.NewMockTransactionManager())
	return NewSettlementController(uc, repo), repo
}

func TestSettlementController_Create(t *testing.T) {
	handler, repo := newSettlementHandler()

	reqBody := CreateSettlementRequest{
		Amount:   420.00,
		Currency: "USD",
		ReservationSpec: map[string]any{
			"offer_id": "off_8812",
		},
	}
	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	var resp SettlementResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.State != string(settlement.StateCreated) {
		t.Errorf("expected state %q, got %q", settlement.StateCreated, resp.State)
	}
	if resp.Amount != 420.00 {
		t.Errorf("expected amount 420.00, got %v", resp.Amount)
	}

	id, err := uuid.Parse(resp.ID)
	if err != nil {
		t.Fatalf("response id is not a uuid: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), id); err != nil {
		t.Errorf("settlement was not persisted: %v", err)
	}
}

func TestSettlementController_Create_InvalidBody(t *testing.T) {
	handler, _ := newSettlementHandler()

	tests := []struct {
		name string
		body string
	}{
		{"zero amount", `{"amount":0,"currency":"USD","reservation_spec":{"offer_id":"x"}}`},
		{"bad currency", `{"amount":10,"currency":"DOLLARS","reservation_spec":{"offer_id":"x"}}`},
		{"missing spec", `{"amount":10,"currency":"USD"}`},
		{"not json", `{broken`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()

			handler.Create(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSettlementController_Get(t *testing.T) {
	handler, repo := newSettlementHandler()

	s := testutil.NewTestSettlement(15000, "EUR")
	repo.Create(context.Background(), s)

	req := chiRequest(http.MethodGet, "/api/v1/settlements/"+s.ID.String(), "id", s.ID.String(), nil)
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp SettlementResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.ID != s.ID.String() {
		t.Errorf("expected id %s, got %s", s.ID, resp.ID)
	}
	if resp.Currency != "EUR" {
		t.Errorf("expected currency EUR, got %s", resp.Currency)
	}
}

func TestSettlementController_Get_NotFound(t *testing.T) {
	handler, _ := newSettlementHandler()

	id := uuid.New().String()
	req := chiRequest(http.MethodGet, "/api/v1/settlements/"+id, "id", id, nil)
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSettlementController_Get_InvalidID(t *testing.T) {
	handler, _ := newSettlementHandler()

	req := chiRequest(http.MethodGet, "/api/v1/settlements/not-a-uuid", "id", "not-a-uuid", nil)
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSettlementController_List_FilterReconciliation(t *testing.T) {
	handler, repo := newSettlementHandler()

	clean := testutil.NewTestSettlement(1000, "USD")
	repo.Create(context.Background(), clean)

	stuck := testutil.NewTestSettlement(2000, "USD")
	stuck.MarkAuthorized("hold_1")
	stuck.BeginCompensation(settlement.StateCompensatingPayment)
	stuck.MarkFailed("release exhausted", true)
	repo.Create(context.Background(), stuck)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settlements?needs_reconciliation=true", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp []*SettlementResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(resp))
	}
	if resp[0].ID != stuck.ID.String() {
		t.Errorf("expected the reconciliation-flagged settlement, got %s", resp[0].ID)
	}
}

func TestSettlementController_Events(t *testing.T) {
	handler, repo := newSettlementHandler()

	s := testutil.NewTestSettlement(1000, "USD")
	repo.Create(context.Background(), s)
	repo.AddEvent(context.Background(), &settlement.Event{
		ID:           uuid.New(),
		SettlementID: s.ID,
		EventType:    "settlement.authorized",
		EventData:    map[string]any{"hold_id": "hold_1"},
	})

	req := chiRequest(http.MethodGet, "/api/v1/settlements/"+s.ID.String()+"/events", "id", s.ID.String(), nil)
	rec := httptest.NewRecorder()

	handler.Events(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp []*SettlementEventResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp) != 1 {
		t.Fatalf("expected 1 event, got %d", len(resp))
	}
	if resp[0].EventType != "settlement.authorized" {
		t.Errorf("unexpected event type %s", resp[0].EventType)
	}
}

func TestSettlementController_Events_UnknownSettlement(t *testing.T) {
	handler, _ := newSettlementHandler()

	id := uuid.New().String()
	req := chiRequest(http.MethodGet, "/api/v1/settlements/"+id+"/events", "id", id, nil)
	rec := httptest.NewRecorder()

	handler.Events(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

// chiRequest builds a request carrying a chi route parameter.
func chiRequest(method, target, paramKey, paramValue string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(paramKey, paramValue)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
