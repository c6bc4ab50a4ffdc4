// Package handlers contains the HTTP handler implementations for the
// reservation API. Each handler depends on small locally-defined interfaces
// over the concrete repositories and services, so tests can inject fakes
// without touching the database.
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

// ZoneStore defines the data access contract for zone operations. Mirrors
// the concrete db.ZoneRepository methods used by this handler.
type ZoneStore interface {
	Create(ctx context.Context, zone *types.Zone) error
	GetByID(ctx context.Context, id string) (*types.Zone, error)
	List(ctx context.Context, activeOnly bool) ([]*types.Zone, error)
	Update(ctx context.Context, zone *types.Zone) error
}

// CreateZoneRequest is the request body for POST /v1/zones.
type CreateZoneRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	MaxCapacity int    `json:"max_capacity" validate:"required,min=1"`
}

// UpdateZoneRequest is the request body for PATCH /v1/zones/{id}. Pointer
// fields allow partial updates.
type UpdateZoneRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=200"`
	MaxCapacity *int    `json:"max_capacity,omitempty" validate:"omitempty,min=1"`
	Active      *bool   `json:"active,omitempty"`
}

// ZoneHandler manages zone CRUD.
type ZoneHandler struct {
	zones     ZoneStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewZoneHandler creates a new ZoneHandler.
func NewZoneHandler(zones ZoneStore, v *core.Validator, l *slog.Logger) *ZoneHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ZoneHandler{zones: zones, validator: v, logger: l}
}

// RegisterRoutes mounts zone routes on the provided chi.Router.
func (h *ZoneHandler) RegisterRoutes(r chi.Router) {
	r.Route("/zones", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
		})
	})
}

// Create handles POST /v1/zones.
func (h *ZoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateZoneRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	zone := &types.Zone{
		ID:          "zone_" + uuid.New().String(),
		Name:        req.Name,
		MaxCapacity: req.MaxCapacity,
		Active:      true,
	}
	if err := h.zones.Create(r.Context(), zone); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.zones.GetByID(r.Context(), zone.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: created})
}

// Get handles GET /v1/zones/{id}.
func (h *ZoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "zone ID is required", nil))
		return
	}

	zone, err := h.zones.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: zone})
}

// List handles GET /v1/zones. ?active=true restricts to active zones.
func (h *ZoneHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	zones, err := h.zones.List(r.Context(), activeOnly)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if zones == nil {
		zones = []*types.Zone{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: zones})
}

// Update handles PATCH /v1/zones/{id}. Shrinking a zone's capacity does not
// touch already-scheduled classes; their own capacity checks were made at
// scheduling time.
func (h *ZoneHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "zone ID is required", nil))
		return
	}

	var req UpdateZoneRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	zone, err := h.zones.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		zone.Name = *req.Name
	}
	if req.MaxCapacity != nil {
		zone.MaxCapacity = *req.MaxCapacity
	}
	if req.Active != nil {
		zone.Active = *req.Active
	}

	if err := h.zones.Update(r.Context(), zone); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: zone})
}
