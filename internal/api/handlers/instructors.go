package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studiobook/internal/core"
	"studiobook/internal/types"
)

// InstructorStore defines the data access contract for instructor operations.
type InstructorStore interface {
	Create(ctx context.Context, instructor *types.Instructor) error
	GetByID(ctx context.Context, id string) (*types.Instructor, error)
	List(ctx context.Context, activeOnly bool) ([]*types.Instructor, error)
	Update(ctx context.Context, instructor *types.Instructor) error
}

// CreateInstructorRequest is the request body for POST /v1/instructors.
type CreateInstructorRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Specialty string `json:"specialty" validate:"max=100"`
}

// UpdateInstructorRequest is the request body for PATCH /v1/instructors/{id}.
type UpdateInstructorRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Specialty *string `json:"specialty,omitempty" validate:"omitempty,max=100"`
	Active    *bool   `json:"active,omitempty"`
}

// InstructorHandler manages instructor CRUD. Deactivating an instructor does
// not touch their scheduled classes; it only blocks new scheduling.
type InstructorHandler struct {
	instructors InstructorStore
	validator   *core.Validator
	logger      *slog.Logger
}

// NewInstructorHandler creates a new InstructorHandler.
func NewInstructorHandler(instructors InstructorStore, v *core.Validator, l *slog.Logger) *InstructorHandler {
	if l == nil {
		l = slog.Default()
	}
	return &InstructorHandler{instructors: instructors, validator: v, logger: l}
}

// RegisterRoutes mounts instructor routes on the provided chi.Router.
func (h *InstructorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/instructors", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
		})
	})
}

// Create handles POST /v1/instructors.
func (h *InstructorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInstructorRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	instructor := &types.Instructor{
		ID:        "inst_" + uuid.New().String(),
		Name:      req.Name,
		Specialty: req.Specialty,
		Active:    true,
	}
	if err := h.instructors.Create(r.Context(), instructor); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.instructors.GetByID(r.Context(), instructor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: created})
}

// Get handles GET /v1/instructors/{id}.
func (h *InstructorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "instructor ID is required", nil))
		return
	}

	instructor, err := h.instructors.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: instructor})
}

// List handles GET /v1/instructors. ?active=true restricts to active ones.
func (h *InstructorHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	instructors, err := h.instructors.List(r.Context(), activeOnly)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if instructors == nil {
		instructors = []*types.Instructor{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: instructors})
}

// Update handles PATCH /v1/instructors/{id}.
func (h *InstructorHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "instructor ID is required", nil))
		return
	}

	var req UpdateInstructorRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	instructor, err := h.instructors.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		instructor.Name = *req.Name
	}
	if req.Specialty != nil {
		instructor.Specialty = *req.Specialty
	}
	if req.Active != nil {
		instructor.Active = *req.Active
	}

	if err := h.instructors.Update(r.Context(), instructor); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: instructor})
}
