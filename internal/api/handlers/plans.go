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

// PlanStore defines the data access contract for plan operations.
type PlanStore interface {
	Create(ctx context.Context, plan *types.Plan) error
	GetByID(ctx context.Context, id string) (*types.Plan, error)
	List(ctx context.Context, activeOnly bool) ([]*types.Plan, error)
	Update(ctx context.Context, plan *types.Plan) error
}

// CreatePlanRequest is the request body for POST /v1/plans.
type CreatePlanRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	ClassAllowance int    `json:"class_allowance" validate:"required,min=1"`
	ValidityDays   int    `json:"validity_days" validate:"required,min=1"`
	PriceCents     int64  `json:"price_cents" validate:"required,min=1"`
}

// UpdatePlanRequest is the request body for PATCH /v1/plans/{id}. Allowance,
// validity, and price changes apply only to subscriptions sold afterwards;
// existing subscriptions keep the values snapshotted at purchase.
type UpdatePlanRequest struct {
	Name           *string `json:"name,omitempty" validate:"omitempty,max=200"`
	ClassAllowance *int    `json:"class_allowance,omitempty" validate:"omitempty,min=1"`
	ValidityDays   *int    `json:"validity_days,omitempty" validate:"omitempty,min=1"`
	PriceCents     *int64  `json:"price_cents,omitempty" validate:"omitempty,min=1"`
	Active         *bool   `json:"active,omitempty"`
}

// PlanHandler manages subscription plan CRUD.
type PlanHandler struct {
	plans     PlanStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(plans PlanStore, v *core.Validator, l *slog.Logger) *PlanHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PlanHandler{plans: plans, validator: v, logger: l}
}

// RegisterRoutes mounts plan routes on the provided chi.Router.
func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Route("/plans", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
		})
	})
}

// Create handles POST /v1/plans.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan := &types.Plan{
		ID:             "plan_" + uuid.New().String(),
		Name:           req.Name,
		ClassAllowance: req.ClassAllowance,
		ValidityDays:   req.ValidityDays,
		PriceCents:     req.PriceCents,
		Active:         true,
	}
	if err := h.plans.Create(r.Context(), plan); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.plans.GetByID(r.Context(), plan.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: created})
}

// Get handles GET /v1/plans/{id}.
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "plan ID is required", nil))
		return
	}

	plan, err := h.plans.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plan})
}

// List handles GET /v1/plans. ?active=true restricts to purchasable plans.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	plans, err := h.plans.List(r.Context(), activeOnly)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if plans == nil {
		plans = []*types.Plan{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plans})
}

// Update handles PATCH /v1/plans/{id}.
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "plan ID is required", nil))
		return
	}

	var req UpdatePlanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, err := h.plans.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.ClassAllowance != nil {
		plan.ClassAllowance = *req.ClassAllowance
	}
	if req.ValidityDays != nil {
		plan.ValidityDays = *req.ValidityDays
	}
	if req.PriceCents != nil {
		plan.PriceCents = *req.PriceCents
	}
	if req.Active != nil {
		plan.Active = *req.Active
	}

	if err := h.plans.Update(r.Context(), plan); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plan})
}
