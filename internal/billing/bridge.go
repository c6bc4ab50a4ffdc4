// Package billing implements the payment-to-subscription bridge: a confirmed
// payment event for a student and a plan becomes a provisioned subscription.
// Payment mechanics themselves live with the payment collaborator; this
// package only starts checkouts and fulfills completed ones.
package billing

import (
	"context"
	"log/slog"

	"studiobook/internal/types"
)

// SubscriptionProvisioner is the slice of the membership ledger the bridge
// needs: creating a subscription from a plan purchase.
type SubscriptionProvisioner interface {
	CreateSubscription(ctx context.Context, studentID, planID string) (*types.Subscription, error)
}

// PlanLookup resolves plan IDs for checkout pricing.
type PlanLookup interface {
	GetPlan(ctx context.Context, id string) (*types.Plan, error)
}

// CheckoutCreator starts a hosted checkout session with the payment provider.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, studentID string, plan *types.Plan, successURL, cancelURL string) (checkoutURL string, sessionID string, err error)
}

// Bridge connects the payment collaborator to the subscription ledger.
type Bridge struct {
	ledger    SubscriptionProvisioner
	plans     PlanLookup
	checkout  CheckoutCreator
	publicURL string
	logger    *slog.Logger
}

// NewBridge creates a payment bridge. publicURL is the externally reachable
// base URL used to build checkout redirect targets, no trailing slash.
func NewBridge(ledger SubscriptionProvisioner, plans PlanLookup, checkout CheckoutCreator, publicURL string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		ledger:    ledger,
		plans:     plans,
		checkout:  checkout,
		publicURL: publicURL,
		logger:    logger,
	}
}

// StartCheckout opens a hosted checkout session for the student purchasing
// the plan and returns the URL to redirect them to.
func (b *Bridge) StartCheckout(ctx context.Context, studentID, planID string) (string, error) {
	plan, err := b.plans.GetPlan(ctx, planID)
	if err != nil {
		return "", err
	}
	if !plan.Active {
		return "", types.NewAppError(types.ErrCodeConflictPlanInactive, "plan is not available for purchase", nil)
	}

	checkoutURL, sessionID, err := b.checkout.CreateCheckoutSession(ctx, studentID, plan,
		b.publicURL+"/checkout/success", b.publicURL+"/checkout/cancelled")
	if err != nil {
		return "", err
	}

	b.logger.InfoContext(ctx, "checkout session created",
		slog.String("student_id", studentID),
		slog.String("plan_id", planID),
		slog.String("session_id", sessionID),
	)
	return checkoutURL, nil
}

// ProcessPaymentSubscription fulfills a confirmed payment by provisioning the
// subscription through the ledger. The ledger owns all invariants: plan
// snapshot, expiry computation, and replacement of any prior active
// subscription in one transaction.
func (b *Bridge) ProcessPaymentSubscription(ctx context.Context, studentID, planID string) (*types.Subscription, error) {
	sub, err := b.ledger.CreateSubscription(ctx, studentID, planID)
	if err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "payment fulfilled as subscription",
		slog.String("student_id", studentID),
		slog.String("plan_id", planID),
		slog.String("subscription_id", sub.ID),
	)
	return sub, nil
}
