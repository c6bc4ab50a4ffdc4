package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studiobook/internal/core"
	"studiobook/internal/types"
)

// MembershipLedger defines the subscription operations used by this handler.
// Mirrors the concrete membership.Ledger methods.
type MembershipLedger interface {
	CreateSubscription(ctx context.Context, studentID, planID string) (*types.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*types.Subscription, error)
	GetActiveSubscription(ctx context.Context, studentID string) (*types.Subscription, error)
	ListSubscriptions(ctx context.Context, studentID string) ([]*types.Subscription, error)
	CancelSubscription(ctx context.Context, id string) error
}

// CheckoutStarter opens a hosted checkout session for a plan purchase.
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, studentID, planID string) (string, error)
}

// CreateSubscriptionRequest is the request body for POST /v1/subscriptions.
// Used for direct provisioning (front-desk sales); card purchases go through
// checkout and arrive via the payment webhook instead.
type CreateSubscriptionRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	PlanID    string `json:"plan_id" validate:"required"`
}

// StartCheckoutRequest is the request body for POST /v1/checkout.
type StartCheckoutRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	PlanID    string `json:"plan_id" validate:"required"`
}

// CheckoutResponse carries the hosted checkout URL for client redirect.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// SubscriptionHandler manages subscription provisioning, lookup, and
// cancellation, plus checkout initiation.
type SubscriptionHandler struct {
	ledger    MembershipLedger
	checkout  CheckoutStarter
	validator *core.Validator
	logger    *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler. checkout may be
// nil when no payment provider is configured; POST /checkout then returns
// 502 upstream_payment_unavailable.
func NewSubscriptionHandler(ledger MembershipLedger, checkout CheckoutStarter, v *core.Validator, l *slog.Logger) *SubscriptionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SubscriptionHandler{ledger: ledger, checkout: checkout, validator: v, logger: l}
}

// RegisterRoutes mounts subscription and checkout routes on the provided
// chi.Router.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/active", h.GetActive)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/cancel", h.Cancel)
		})
	})
	r.Post("/checkout", h.StartCheckout)
}

// Create handles POST /v1/subscriptions. The ledger replaces any prior
// active subscription for the student in the same transaction.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.ledger.CreateSubscription(r.Context(), req.StudentID, req.PlanID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: sub})
}

// Get handles GET /v1/subscriptions/{id}.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "subscription ID is required", nil))
		return
	}

	sub, err := h.ledger.GetSubscription(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

// List handles GET /v1/subscriptions?student_id=... and returns the
// student's full subscription history, newest first.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	if studentID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "student_id is required", nil))
		return
	}

	subs, err := h.ledger.ListSubscriptions(r.Context(), studentID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if subs == nil {
		subs = []*types.Subscription{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: subs})
}

// GetActive handles GET /v1/subscriptions/active?student_id=... and returns
// the student's currently usable subscription, 404 when there is none.
func (h *SubscriptionHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	if studentID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "student_id is required", nil))
		return
	}

	sub, err := h.ledger.GetActiveSubscription(r.Context(), studentID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

// Cancel handles POST /v1/subscriptions/{id}/cancel. Cancellation is
// terminal; remaining credits are forfeited.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "subscription ID is required", nil))
		return
	}

	if err := h.ledger.CancelSubscription(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.ledger.GetSubscription(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

// StartCheckout handles POST /v1/checkout and returns the hosted checkout
// URL. The subscription is provisioned later by the payment webhook, not
// here.
func (h *SubscriptionHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeUpstreamPayment, "payment provider is not configured", nil))
		return
	}

	var req StartCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	checkoutURL, err := h.checkout.StartCheckout(r.Context(), req.StudentID, req.PlanID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CheckoutResponse{CheckoutURL: checkoutURL}})
}
