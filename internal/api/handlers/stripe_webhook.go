// Stripe webhook handler. It is NOT behind any auth middleware -- Stripe
// calls it directly. Security is provided by verifying the Stripe-Signature
// header against the webhook signing secret.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studiobook/internal/core"
	"studiobook/internal/external"
	"studiobook/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads at 64 KB. Real payloads
// are far smaller; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// WebhookVerifier validates a webhook payload signature.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// PaymentFulfiller provisions a subscription from a confirmed payment.
// This is the subset of billing.Bridge the webhook handler needs.
type PaymentFulfiller interface {
	ProcessPaymentSubscription(ctx context.Context, studentID, planID string) (*types.Subscription, error)
}

// StripeWebhookHandler handles asynchronous payment events from Stripe.
type StripeWebhookHandler struct {
	verifier WebhookVerifier
	bridge   PaymentFulfiller
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler.
func NewStripeWebhookHandler(verifier WebhookVerifier, bridge PaymentFulfiller, secret string, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		bridge:   bridge,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the Stripe webhook endpoint. Kept separate from the
// subscription routes because webhook routes are public.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes incoming Stripe webhook events:
//  1. Reads the raw body with the size limit applied.
//  2. Verifies the Stripe-Signature header.
//  3. Parses the event JSON and routes by event type.
//  4. Returns 200 even when internal processing fails, so Stripe does not
//     retry forever; the failure is logged for investigation.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", slog.Any("error", err))
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureMissing,
			"missing Stripe-Signature header", nil))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", slog.Any("error", err))
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed", err))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON", slog.Any("error", err))
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"invalid webhook event JSON", err))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.Any("error", err),
		)
		// Acknowledge receipt regardless; Stripe retries on non-2xx and the
		// failure is already captured in the logs.
	}

	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	case external.EventCheckoutExpired:
		h.logger.InfoContext(ctx, "checkout session expired without payment",
			slog.String("event_id", event.ID))
		return nil

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			slog.String("event_type", event.Type))
		return nil
	}
}

// handleCheckoutCompleted fulfills a completed checkout by provisioning the
// subscription for the student and plan recorded in the session metadata.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return fmt.Errorf("checkout.session.completed: %w", err)
	}

	studentID := session.Metadata["student_id"]
	if studentID == "" {
		// CreateCheckoutSession also sets client_reference_id to the student.
		studentID = session.ClientReferenceID
	}
	planID := session.Metadata["plan_id"]
	if studentID == "" || planID == "" {
		return fmt.Errorf("checkout.session.completed: event %s missing student_id/plan_id metadata", event.ID)
	}

	sub, err := h.bridge.ProcessPaymentSubscription(ctx, studentID, planID)
	if err != nil {
		return fmt.Errorf("fulfilling checkout for student %s: %w", studentID, err)
	}

	h.logger.InfoContext(ctx, "checkout fulfilled",
		slog.String("event_id", event.ID),
		slog.String("student_id", studentID),
		slog.String("subscription_id", sub.ID),
	)
	return nil
}

// stripeWebhookEvent is a minimal representation of a Stripe webhook event,
// tailored to the fields needed for routing. Avoiding the full stripe.Event
// type keeps the handler decoupled from the stripe-go models and makes
// testing straightforward.
type stripeWebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeCheckoutSessionObj holds the minimal fields read from a
// checkout.session event's data object.
type stripeCheckoutSessionObj struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	PaymentStatus     string            `json:"payment_status"`
}

func (e *stripeWebhookEvent) checkoutSession() (*stripeCheckoutSessionObj, error) {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("parsing event data: %w", err)
	}
	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(data.Object, &session); err != nil {
		return nil, fmt.Errorf("parsing checkout session object: %w", err)
	}
	return &session, nil
}
