// Package membership implements the subscription ledger: purchasing plans,
// tracking the finite class allowance each subscription carries, and expiring
// subscriptions whose validity window has passed.
package membership

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"studiobook/internal/types"
)

// LedgerDB defines the database operations needed by the Ledger. Using an
// interface allows clean testing without database dependencies.
type LedgerDB interface {
	// BeginTx opens a transaction for the subscription creation flow.
	BeginTx(ctx context.Context) (LedgerTx, error)

	GetSubscription(ctx context.Context, id string) (*types.Subscription, error)
	GetActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error)
	ListSubscriptions(ctx context.Context, studentID string) ([]*types.Subscription, error)
	GetPlan(ctx context.Context, id string) (*types.Plan, error)
	GetStudent(ctx context.Context, id string) (*types.Student, error)

	// DecrementAllowance consumes one allowance unit as a conditional
	// single-row UPDATE (classes_remaining > 0 guard, status flip to expired
	// at zero). Returns conflict_allowance_exhausted when no unit remains.
	DecrementAllowance(ctx context.Context, subscriptionID string) error

	// RestoreAllowance returns one allowance unit, reactivating an
	// allowance-expired subscription still inside its validity window.
	RestoreAllowance(ctx context.Context, subscriptionID string, now time.Time) error

	// CancelSubscription flips an active subscription to cancelled.
	CancelSubscription(ctx context.Context, id string) error

	// ExpireOverdue flips active subscriptions past expires_at to expired,
	// returning the number affected.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// LedgerTx is the transactional surface of the creation flow. Cancelling the
// prior active subscription and inserting the replacement commit atomically,
// so the single-active invariant holds at every observable instant.
type LedgerTx interface {
	CancelActiveSubscription(ctx context.Context, studentID string) (int, error)
	CreateSubscription(ctx context.Context, sub *types.Subscription) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Ledger is the subscription ledger service.
type Ledger struct {
	db     LedgerDB
	clock  types.Clock
	logger *slog.Logger
}

// NewLedger creates a subscription ledger.
func NewLedger(db LedgerDB, clock types.Clock, logger *slog.Logger) *Ledger {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, clock: clock, logger: logger}
}

// CreateSubscription provisions a new subscription for the student from the
// given plan. Any prior active subscription is cancelled in the same
// transaction; the new subscription starts immediately and expires after the
// plan's validity window.
func (l *Ledger) CreateSubscription(ctx context.Context, studentID, planID string) (*types.Subscription, error) {
	student, err := l.db.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.Active {
		return nil, types.NewAppError(types.ErrCodeNotFoundStudent, "student is no longer active", nil)
	}

	plan, err := l.db.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, types.NewAppError(types.ErrCodeConflictPlanInactive, "plan is not available for purchase", nil)
	}

	now := l.clock.Now()
	sub := &types.Subscription{
		ID:               "sub_" + uuid.New().String(),
		StudentID:        studentID,
		PlanID:           planID,
		ClassesRemaining: plan.ClassAllowance,
		StartsAt:         now,
		ExpiresAt:        now.AddDate(0, 0, plan.ValidityDays),
		Status:           types.SubscriptionStatusActive,
	}

	tx, err := l.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	replaced, err := tx.CancelActiveSubscription(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit subscription creation", err)
	}

	l.logger.InfoContext(ctx, "subscription created",
		slog.String("subscription_id", sub.ID),
		slog.String("student_id", studentID),
		slog.String("plan_id", planID),
		slog.Int("class_allowance", sub.ClassesRemaining),
		slog.Int("replaced_active", replaced),
	)
	return sub, nil
}

// GetSubscription fetches a subscription by ID.
func (l *Ledger) GetSubscription(ctx context.Context, id string) (*types.Subscription, error) {
	return l.db.GetSubscription(ctx, id)
}

// GetActiveSubscription returns the student's single active, unexpired
// subscription.
func (l *Ledger) GetActiveSubscription(ctx context.Context, studentID string) (*types.Subscription, error) {
	return l.db.GetActiveSubscription(ctx, studentID, l.clock.Now())
}

// ListSubscriptions returns all of a student's subscriptions, newest first.
func (l *Ledger) ListSubscriptions(ctx context.Context, studentID string) ([]*types.Subscription, error) {
	return l.db.ListSubscriptions(ctx, studentID)
}

// DecrementAllowance consumes one unit of class allowance.
func (l *Ledger) DecrementAllowance(ctx context.Context, subscriptionID string) error {
	return l.db.DecrementAllowance(ctx, subscriptionID)
}

// RestoreAllowance returns one unit of class allowance, reactivating the
// subscription when it expired by allowance and is still inside its window.
func (l *Ledger) RestoreAllowance(ctx context.Context, subscriptionID string) error {
	return l.db.RestoreAllowance(ctx, subscriptionID, l.clock.Now())
}

// CancelSubscription is the staff-facing cancellation of an active
// subscription. Remaining allowance is forfeited.
func (l *Ledger) CancelSubscription(ctx context.Context, id string) error {
	if err := l.db.CancelSubscription(ctx, id); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "subscription cancelled", slog.String("subscription_id", id))
	return nil
}

// ProcessExpirations flips every active subscription past its expiry to
// expired. Invoked by the maintenance sweep; returns the number expired.
func (l *Ledger) ProcessExpirations(ctx context.Context, now time.Time) (int, error) {
	expired, err := l.db.ExpireOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		l.logger.InfoContext(ctx, "subscriptions expired by sweep",
			slog.Int("count", expired),
			slog.Time("as_of", now),
		)
	}
	return expired, nil
}
