package controller

import (
	"net/http"

	"github.com/skybridge/bookingd/internal/application/rotation"
	"github.com/go-chi/chi/v5"
)

// RotationController handles credential rotation HTTP requests.
type RotationController struct {
	executor  *rotation.Executor
	scheduler *rotation.Scheduler
}

// NewRotationController creates a new RotationController.
func NewRotationController(executor *rotation.Executor, scheduler *rotation.Scheduler) *RotationController {
	return &RotationController{
		executor:  executor,
		scheduler: scheduler,
	}
}

// Status handles GET /api/v1/rotations/status
func (h *RotationController) Status(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.scheduler.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statuses)
}

// Rotate handles POST /api/v1/rotations/{service}. A manual trigger runs the
// full dual-key protocol immediately, outside the schedule.
func (h *RotationController) Rotate(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if service == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing service name", Code: "invalid_service"})
		return
	}

	var req RotateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.executor.RotateEmergency(r.Context(), service, req.Reason); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RotateResponse{Service: service, Status: "rotated"})
}
