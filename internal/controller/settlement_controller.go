package controller

import (
	"net/http"
	"strconv"

	settlementApp "github.com/skybridge/bookingd/internal/application/settlement"
	"github.com/skybridge/bookingd/internal/domain/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SettlementController handles settlement-related HTTP requests.
type SettlementController struct {
	createUC       *settlementApp.CreateUseCase
	settlementRepo settlement.Repository
}

// NewSettlementController creates a new SettlementController.
func NewSettlementController(
	createUC *settlementApp.CreateUseCase,
	settlementRepo settlement.Repository,
) *SettlementController {
	return &SettlementController{
		createUC:       createUC,
		settlementRepo: settlementRepo,
	}
}

// Create handles POST /api/v1/settlements. The settlement is persisted and
// queued for the driver; processing happens asynchronously in the worker.
func (h *SettlementController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSettlementRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.createUC.Execute(r.Context(), settlementApp.CreateRequest{
		Amount:          floatToCents(req.Amount),
		Currency:        req.Currency,
		ReservationSpec: req.ReservationSpec,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, FromSettlement(resp.Settlement))
}

// Get handles GET /api/v1/settlements/{id}
func (h *SettlementController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid settlement id", Code: "invalid_id"})
		return
	}

	s, err := h.settlementRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSettlement(s))
}

// List handles GET /api/v1/settlements
func (h *SettlementController) List(w http.ResponseWriter, r *http.Request) {
	filter := settlement.ListFilter{}

	if s := r.URL.Query().Get("state"); s != "" {
		state := settlement.State(s)
		filter.State = &state
	}
	if s := r.URL.Query().Get("needs_reconciliation"); s != "" {
		needs, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid needs_reconciliation", Code: "invalid_filter"})
			return
		}
		filter.NeedsReconciliation = &needs
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	filter.SortBy = r.URL.Query().Get("sort_by")
	filter.SortOrder = r.URL.Query().Get("sort_order")

	settlements, err := h.settlementRepo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*SettlementResponse, 0, len(settlements))
	for _, s := range settlements {
		resp = append(resp, FromSettlement(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Events handles GET /api/v1/settlements/{id}/events
func (h *SettlementController) Events(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid settlement id", Code: "invalid_id"})
		return
	}

	// 404 when the settlement itself is unknown, empty list when it simply
	// has no events yet.
	if _, err := h.settlementRepo.GetByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	events, err := h.settlementRepo.GetEvents(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*SettlementEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, FromEvent(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
