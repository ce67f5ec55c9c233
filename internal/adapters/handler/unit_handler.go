package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/skola-app/unit-enrollment-service/internal/adapters/middleware"
	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

var enrollmentDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "unit_enrollment_decisions_total",
		Help: "Enrollment engine decisions by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

type UnitHandler struct {
	enrollment ports.EnrollmentService
	queries    ports.UnitQueryService
	log        *zap.Logger
}

func NewUnitHandler(enrollment ports.EnrollmentService, queries ports.UnitQueryService, log *zap.Logger) *UnitHandler {
	return &UnitHandler{
		enrollment: enrollment,
		queries:    queries,
		log:        log,
	}
}

type joinRequest struct {
	UnitID string `json:"unit_id"`
}

type unitResponse struct {
	Success bool         `json:"success"`
	Unit    *domain.Unit `json:"unit,omitempty"`
}

type unitListResponse struct {
	Success bool          `json:"success"`
	Units   []domain.Unit `json:"units"`
}

type availableListResponse struct {
	Success bool                   `json:"success"`
	Units   []domain.AvailableUnit `json:"units"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var spec domain.UnitCreateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	unit, err := h.enrollment.CreateUnit(r.Context(), spec, actor)
	if err != nil {
		h.writeDomainError(w, "create", err)
		return
	}

	enrollmentDecisions.WithLabelValues("create", "success").Inc()
	writeJSON(w, http.StatusCreated, unitResponse{Success: true, Unit: unit})
}

func (h *UnitHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.mutateRoster(w, r, "join", h.enrollment.JoinUnit)
}

func (h *UnitHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.mutateRoster(w, r, "leave", h.enrollment.LeaveUnit)
}

func (h *UnitHandler) mutateRoster(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	op func(ctx context.Context, unitID string, actor domain.User) (*domain.Unit, error),
) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UnitID == "" {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	unit, err := op(r.Context(), req.UnitID, actor)
	if err != nil {
		h.writeDomainError(w, operation, err)
		return
	}

	enrollmentDecisions.WithLabelValues(operation, "success").Inc()
	writeJSON(w, http.StatusOK, unitResponse{Success: true, Unit: unit})
}

func (h *UnitHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	units, err := h.queries.UserUnits(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, unitListResponse{Success: true, Units: units})
}

func (h *UnitHandler) Available(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	units, err := h.queries.AvailableUnits(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, "discover", err)
		return
	}
	writeJSON(w, http.StatusOK, availableListResponse{Success: true, Units: units})
}

// writeDomainError maps the enrollment error taxonomy onto HTTP statuses.
// Domain errors travel to the client verbatim; anything unrecognized is an
// internal failure and stays generic.
func (h *UnitHandler) writeDomainError(w http.ResponseWriter, operation string, err error) {
	var validationErr *domain.ValidationError
	var restrictedErr *domain.AccessRestrictedError

	status := 0
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &restrictedErr):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidRole):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUnitNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyEnrolled),
		errors.Is(err, domain.ErrAlreadyAssigned),
		errors.Is(err, domain.ErrSlotOccupied),
		errors.Is(err, domain.ErrNotEnrolled):
		status = http.StatusConflict
	}

	if status == 0 {
		enrollmentDecisions.WithLabelValues(operation, "error").Inc()
		h.log.Error("enrollment operation failed", zap.String("operation", operation), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "something went wrong"})
		return
	}

	enrollmentDecisions.WithLabelValues(operation, "rejected").Inc()
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
