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

// StudentStore defines the data access contract for student operations.
type StudentStore interface {
	Create(ctx context.Context, student *types.Student) error
	GetByID(ctx context.Context, id string) (*types.Student, error)
	List(ctx context.Context, activeOnly bool) ([]*types.Student, error)
	Update(ctx context.Context, student *types.Student) error
}

// CreateStudentRequest is the request body for POST /v1/students.
type CreateStudentRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// UpdateStudentRequest is the request body for PATCH /v1/students/{id}.
type UpdateStudentRequest struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email  *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Active *bool   `json:"active,omitempty"`
}

// StudentHandler manages student CRUD. Deactivating a student blocks new
// reservations and purchases; existing reservations keep their lifecycle.
type StudentHandler struct {
	students  StudentStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(students StudentStore, v *core.Validator, l *slog.Logger) *StudentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &StudentHandler{students: students, validator: v, logger: l}
}

// RegisterRoutes mounts student routes on the provided chi.Router.
func (h *StudentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/students", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
		})
	})
}

// Create handles POST /v1/students.
func (h *StudentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	student := &types.Student{
		ID:     "stu_" + uuid.New().String(),
		Name:   req.Name,
		Email:  req.Email,
		Active: true,
	}
	if err := h.students.Create(r.Context(), student); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.students.GetByID(r.Context(), student.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: created})
}

// Get handles GET /v1/students/{id}.
func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "student ID is required", nil))
		return
	}

	student, err := h.students.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: student})
}

// List handles GET /v1/students. ?active=true restricts to active students.
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	students, err := h.students.List(r.Context(), activeOnly)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if students == nil {
		students = []*types.Student{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: students})
}

// Update handles PATCH /v1/students/{id}.
func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "student ID is required", nil))
		return
	}

	var req UpdateStudentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	student, err := h.students.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.Email != nil {
		student.Email = *req.Email
	}
	if req.Active != nil {
		student.Active = *req.Active
	}

	if err := h.students.Update(r.Context(), student); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: student})
}
