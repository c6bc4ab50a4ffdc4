package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"studiobook/internal/core"
	"studiobook/internal/db"
	"studiobook/internal/scheduling"
	"studiobook/internal/types"
)

// ClassScheduler defines the scheduling operations used by this handler.
// Mirrors the concrete scheduling.Service methods.
type ClassScheduler interface {
	CreateClass(ctx context.Context, params scheduling.CreateClassParams) (*types.Class, error)
	UpdateClass(ctx context.Context, id string, params scheduling.UpdateClassParams) (*types.Class, error)
	GetClass(ctx context.Context, id string) (*types.Class, error)
	ListClasses(ctx context.Context, params db.ListClassesParams) ([]*types.Class, types.PageInfo, error)
	DeleteClass(ctx context.Context, id string) error
	CancelClass(ctx context.Context, id string) error
}

// CreateClassRequest is the request body for POST /v1/classes. Times are
// RFC 3339 and interpreted in UTC.
type CreateClassRequest struct {
	Title         string    `json:"title" validate:"required,max=200"`
	InstructorID  string    `json:"instructor_id" validate:"required"`
	ZoneID        string    `json:"zone_id" validate:"required"`
	StartsAt      time.Time `json:"starts_at" validate:"required"`
	EndsAt        time.Time `json:"ends_at" validate:"required"`
	CapacityLimit int       `json:"capacity_limit" validate:"required,min=1"`
}

// UpdateClassRequest is the request body for PATCH /v1/classes/{id}.
type UpdateClassRequest struct {
	Title         *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	InstructorID  *string    `json:"instructor_id,omitempty"`
	ZoneID        *string    `json:"zone_id,omitempty"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	CapacityLimit *int       `json:"capacity_limit,omitempty" validate:"omitempty,min=1"`
}

// ClassHandler manages class scheduling, listing, and lifecycle.
type ClassHandler struct {
	scheduler ClassScheduler
	validator *core.Validator
	logger    *slog.Logger
}

// NewClassHandler creates a new ClassHandler.
func NewClassHandler(scheduler ClassScheduler, v *core.Validator, l *slog.Logger) *ClassHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ClassHandler{scheduler: scheduler, validator: v, logger: l}
}

// RegisterRoutes mounts class routes on the provided chi.Router.
func (h *ClassHandler) RegisterRoutes(r chi.Router) {
	r.Route("/classes", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/cancel", h.Cancel)
		})
	})
}

// Create handles POST /v1/classes. The scheduler owns all domain checks:
// time window, capacity against the zone, and overlap rules.
func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	class, err := h.scheduler.CreateClass(r.Context(), scheduling.CreateClassParams{
		Title:         req.Title,
		InstructorID:  req.InstructorID,
		ZoneID:        req.ZoneID,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
		CapacityLimit: req.CapacityLimit,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: class})
}

// Get handles GET /v1/classes/{id}. The response includes the live confirmed
// reservation count.
func (h *ClassHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "class ID is required", nil))
		return
	}

	class, err := h.scheduler.GetClass(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: class})
}

// List handles GET /v1/classes with optional filters: instructor_id, zone_id,
// status (comma-separated), from, to (RFC 3339), limit, cursor.
func (h *ClassHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := parseListClassesParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	classes, pageInfo, err := h.scheduler.ListClasses(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if classes == nil {
		classes = []*types.Class{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: classes,
		Meta: &types.ResponseMeta{Pagination: &pageInfo},
	})
}

// Update handles PATCH /v1/classes/{id}. Only scheduled classes can change.
func (h *ClassHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "class ID is required", nil))
		return
	}

	var req UpdateClassRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	class, err := h.scheduler.UpdateClass(r.Context(), id, scheduling.UpdateClassParams{
		Title:         req.Title,
		InstructorID:  req.InstructorID,
		ZoneID:        req.ZoneID,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
		CapacityLimit: req.CapacityLimit,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: class})
}

// Delete handles DELETE /v1/classes/{id}. A class with confirmed reservations
// is cancelled instead of removed, so reservation history survives.
func (h *ClassHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "class ID is required", nil))
		return
	}

	if err := h.scheduler.DeleteClass(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /v1/classes/{id}/cancel. Cancelling a class frees its
// students to cancel their reservations past the usual deadline.
func (h *ClassHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "class ID is required", nil))
		return
	}

	if err := h.scheduler.CancelClass(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	class, err := h.scheduler.GetClass(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: class})
}

func parseListClassesParams(r *http.Request) (db.ListClassesParams, error) {
	q := r.URL.Query()
	params := db.ListClassesParams{
		InstructorID: q.Get("instructor_id"),
		ZoneID:       q.Get("zone_id"),
		Cursor:       q.Get("cursor"),
		Limit:        20,
	}

	if statusStr := q.Get("status"); statusStr != "" {
		for _, s := range strings.Split(statusStr, ",") {
			status := types.ClassStatus(strings.TrimSpace(s))
			if !status.IsValid() {
				return params, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
					"unknown class status filter", nil, map[string]any{"status": s})
			}
			params.Status = append(params.Status, status)
		}
	}

	if fromStr := q.Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return params, types.NewAppError(types.ErrCodeValidationTimeRange, "from must be an RFC 3339 timestamp", err)
		}
		params.From = &from
	}
	if toStr := q.Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return params, types.NewAppError(types.ErrCodeValidationTimeRange, "to must be an RFC 3339 timestamp", err)
		}
		params.To = &to
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		return params, types.NewAppError(types.ErrCodeValidationTimeRange, "from must be before to", nil)
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			return params, types.NewAppError(types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 100", err)
		}
		params.Limit = limit
	}

	return params, nil
}
