package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"studiobook/internal/types"
)

// SubscriptionRepository provides data access for the subscriptions table.
//
// Key invariants:
//   - At most one active subscription per student. Enforced here by
//     CancelActiveByStudent inside the creation transaction and at the
//     storage level by a partial unique index.
//   - classes_remaining never goes below zero. Decrement is a conditional
//     single-row UPDATE; a CHECK constraint is the second line of defense.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by
// the given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, student_id, plan_id, classes_remaining, starts_at, expires_at,
	status, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(
		&s.ID, &s.StudentID, &s.PlanID, &s.ClassesRemaining,
		&s.StartsAt, &s.ExpiresAt, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *types.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (id, student_id, plan_id, classes_remaining, starts_at,
		                            expires_at, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		sub.ID, sub.StudentID, sub.PlanID, sub.ClassesRemaining,
		sub.StartsAt, sub.ExpiresAt, sub.Status,
	)
	if err != nil {
		if IsUniqueViolation(err, "subscriptions_one_active_per_student") {
			return types.NewAppError(types.ErrCodeConflictConcurrent,
				"student already has an active subscription", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscription", err)
	}
	return nil
}

// GetByID fetches a subscription by ID.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*types.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch subscription", err)
	}
	return sub, nil
}

// GetActiveByStudent returns the student's single active, unexpired
// subscription, or not_found_subscription when none exists. The partial
// unique index allows at most one active row, but the query still orders by
// expiry so a drifted dataset yields the most future subscription.
func (r *SubscriptionRepository) GetActiveByStudent(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE student_id = $1 AND status = 'active' AND expires_at > $2
		 ORDER BY expires_at DESC
		 LIMIT 1`,
		studentID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription,
				"student has no active subscription", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch active subscription", err)
	}
	return sub, nil
}

// GetActiveByStudentForUpdate is GetActiveByStudent with FOR UPDATE so
// concurrent allowance consumers serialize on the subscription row. Must be
// called inside a transaction.
func (r *SubscriptionRepository) GetActiveByStudentForUpdate(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE student_id = $1 AND status = 'active' AND expires_at > $2
		 ORDER BY expires_at DESC
		 LIMIT 1
		 FOR UPDATE`,
		studentID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription,
				"student has no active subscription", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock active subscription", err)
	}
	return sub, nil
}

// ListByStudent returns all of a student's subscriptions, newest first.
func (r *SubscriptionRepository) ListByStudent(ctx context.Context, studentID string) ([]*types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE student_id = $1 ORDER BY created_at DESC`,
		studentID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list subscriptions", err)
	}
	defer rows.Close()

	var subs []*types.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read subscriptions", err)
	}
	return subs, nil
}

// Decrement consumes one unit of class allowance as a conditional single-row
// UPDATE. The WHERE clause guarantees the counter never goes below zero; the
// CASE flips status to expired the moment the last unit is consumed. Returns
// conflict_allowance_exhausted when no unit was available.
func (r *SubscriptionRepository) Decrement(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET classes_remaining = classes_remaining - 1,
		     status = CASE WHEN classes_remaining - 1 = 0 THEN 'expired' ELSE status END,
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'active' AND classes_remaining > 0`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to decrement allowance", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAllowanceExhausted,
			"subscription has no classes remaining", nil)
	}
	return nil
}

// Restore returns one unit of class allowance to a subscription. A
// subscription that expired by running its allowance to zero is reactivated
// when still inside its validity window; one expired by date stays expired
// but gets the unit back for the record.
func (r *SubscriptionRepository) Restore(ctx context.Context, id string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET classes_remaining = classes_remaining + 1,
		     status = CASE WHEN status = 'expired' AND expires_at > $2 THEN 'active' ELSE status END,
		     updated_at = NOW()
		 WHERE id = $1 AND status != 'cancelled'`,
		id, now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to restore allowance", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription,
			"subscription not found or cancelled", nil)
	}
	return nil
}

// CancelActiveByStudent cancels any currently active subscription for the
// student. Used inside the creation transaction to keep the single-active
// invariant. Returns the number of subscriptions cancelled (0 or 1).
func (r *SubscriptionRepository) CancelActiveByStudent(ctx context.Context, studentID string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'cancelled', updated_at = NOW()
		 WHERE student_id = $1 AND status = 'active'`,
		studentID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel active subscription", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateStatus moves a subscription between statuses as a conditional
// single-row UPDATE.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, from, to types.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			"subscription is not in the expected status", nil)
	}
	return nil
}

// ExpireOverdue flips every active subscription whose validity window has
// passed to expired. Returns the number of subscriptions expired.
func (r *SubscriptionRepository) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'expired', updated_at = NOW()
		 WHERE status = 'active' AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire subscriptions", err)
	}
	return int(tag.RowsAffected()), nil
}
