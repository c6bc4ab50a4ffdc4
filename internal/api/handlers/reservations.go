package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studiobook/internal/core"
	"studiobook/internal/types"
)

// ReservationEngine defines the booking operations used by this handler.
// Mirrors the concrete reservations.Engine methods.
type ReservationEngine interface {
	CreateReservation(ctx context.Context, studentID, classID string) (*types.Reservation, error)
	CancelReservation(ctx context.Context, reservationID, reason string) error
	CompleteReservation(ctx context.Context, reservationID string) error
	MarkNoShow(ctx context.Context, reservationID string) error
	GetReservation(ctx context.Context, id string) (*types.Reservation, error)
	ListByStudent(ctx context.Context, studentID string) ([]*types.Reservation, error)
	ListByClass(ctx context.Context, classID string) ([]*types.Reservation, error)
	CanReserve(ctx context.Context, studentID, classID string) error
}

// CreateReservationRequest is the request body for POST /v1/reservations.
type CreateReservationRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// CancelReservationRequest is the optional request body for
// POST /v1/reservations/{id}/cancel. A missing body cancels without a
// recorded reason.
type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// AvailabilityResponse reports whether a booking would currently succeed,
// and the blocking reason when it would not. Advisory only; the answer can
// change before the booking request lands.
type AvailabilityResponse struct {
	CanReserve bool   `json:"can_reserve"`
	Reason     string `json:"reason,omitempty"`
}

// ReservationHandler manages reservation booking and lifecycle.
type ReservationHandler struct {
	engine    ReservationEngine
	validator *core.Validator
	logger    *slog.Logger
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(engine ReservationEngine, v *core.Validator, l *slog.Logger) *ReservationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ReservationHandler{engine: engine, validator: v, logger: l}
}

// RegisterRoutes mounts reservation routes on the provided chi.Router.
func (h *ReservationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/availability", h.CheckAvailability)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/cancel", h.Cancel)
			r.Post("/complete", h.Complete)
			r.Post("/no-show", h.NoShow)
		})
	})
}

// Create handles POST /v1/reservations. The engine owns the booking
// transaction: capacity, duplicate, and allowance checks run under row locks
// so concurrent requests for the last seat produce exactly one winner.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	reservation, err := h.engine.CreateReservation(r.Context(), req.StudentID, req.ClassID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: reservation})
}

// Get handles GET /v1/reservations/{id}.
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "reservation ID is required", nil))
		return
	}

	reservation, err := h.engine.GetReservation(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reservation})
}

// List handles GET /v1/reservations filtered by exactly one of student_id or
// class_id.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	classID := r.URL.Query().Get("class_id")

	if (studentID == "") == (classID == "") {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"exactly one of student_id or class_id is required", nil))
		return
	}

	var (
		reservations []*types.Reservation
		err          error
	)
	if studentID != "" {
		reservations, err = h.engine.ListByStudent(r.Context(), studentID)
	} else {
		reservations, err = h.engine.ListByClass(r.Context(), classID)
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if reservations == nil {
		reservations = []*types.Reservation{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reservations})
}

// CheckAvailability handles GET /v1/reservations/availability. Returns 200
// with the blocking reason rather than an error status: "cannot reserve" is
// a valid answer, not a failure.
func (h *ReservationHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	classID := r.URL.Query().Get("class_id")
	if studentID == "" || classID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"student_id and class_id are required", nil))
		return
	}

	err := h.engine.CanReserve(r.Context(), studentID, classID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus() < http.StatusInternalServerError {
			core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AvailabilityResponse{
				CanReserve: false,
				Reason:     string(appErr.Code),
			}})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AvailabilityResponse{CanReserve: true}})
}

// Cancel handles POST /v1/reservations/{id}/cancel. Cancellation inside the
// deadline window is refused unless the class itself was cancelled; a
// successful cancel restores one allowance credit in the same transaction.
// The body is optional and may carry a reason, stored on the reservation.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "reservation ID is required", nil))
		return
	}

	var req CancelReservationRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	if err := h.engine.CancelReservation(r.Context(), id, req.Reason); err != nil {
		core.Error(w, r, err)
		return
	}

	reservation, err := h.engine.GetReservation(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reservation})
}

// Complete handles POST /v1/reservations/{id}/complete.
func (h *ReservationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.engine.CompleteReservation)
}

// NoShow handles POST /v1/reservations/{id}/no-show. A no-show consumes the
// credit; nothing is restored.
func (h *ReservationHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.engine.MarkNoShow)
}

func (h *ReservationHandler) finalize(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "reservation ID is required", nil))
		return
	}

	if err := op(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	reservation, err := h.engine.GetReservation(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reservation})
}
