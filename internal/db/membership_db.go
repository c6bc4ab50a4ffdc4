package db

import (
	"context"
	"time"

	"studiobook/internal/membership"
	"studiobook/internal/types"
)

// PoolDB is the connection surface the transactional adapters need: direct
// query execution plus the ability to open transactions. *pgxpool.Pool
// satisfies it.
type PoolDB interface {
	DBTX
	Beginner
}

// MembershipDBImpl wires the membership.LedgerDB interface to the repository
// layer. Non-transactional calls run on the pool; BeginTx hands back a
// MembershipTxImpl whose repositories are bound to the open transaction.
type MembershipDBImpl struct {
	pool          PoolDB
	subscriptions *SubscriptionRepository
	plans         *PlanRepository
	students      *StudentRepository
}

// NewMembershipDBImpl creates a MembershipDBImpl over the given pool.
func NewMembershipDBImpl(pool PoolDB) *MembershipDBImpl {
	return &MembershipDBImpl{
		pool:          pool,
		subscriptions: NewSubscriptionRepository(pool),
		plans:         NewPlanRepository(pool),
		students:      NewStudentRepository(pool),
	}
}

// MembershipTxImpl is the transactional surface of subscription creation.
// It implements membership.LedgerTx.
type MembershipTxImpl struct {
	raw           txCloser
	subscriptions *SubscriptionRepository
}

type txCloser interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BeginTx opens a transaction and returns a MembershipTxImpl bound to it.
func (m *MembershipDBImpl) BeginTx(ctx context.Context) (membership.LedgerTx, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	return &MembershipTxImpl{
		raw:           tx,
		subscriptions: NewSubscriptionRepository(tx),
	}, nil
}

// CancelActiveSubscription cancels the student's active subscription inside
// the transaction, returning the number cancelled.
func (t *MembershipTxImpl) CancelActiveSubscription(ctx context.Context, studentID string) (int, error) {
	return t.subscriptions.CancelActiveByStudent(ctx, studentID)
}

// CreateSubscription inserts the replacement subscription inside the
// transaction.
func (t *MembershipTxImpl) CreateSubscription(ctx context.Context, sub *types.Subscription) error {
	return t.subscriptions.Create(ctx, sub)
}

// Commit commits the transaction.
func (t *MembershipTxImpl) Commit(ctx context.Context) error {
	return t.raw.Commit(ctx)
}

// Rollback rolls the transaction back. Safe to call after Commit.
func (t *MembershipTxImpl) Rollback(ctx context.Context) error {
	return t.raw.Rollback(ctx)
}

// GetSubscription fetches a subscription by ID.
func (m *MembershipDBImpl) GetSubscription(ctx context.Context, id string) (*types.Subscription, error) {
	return m.subscriptions.GetByID(ctx, id)
}

// GetActiveSubscription returns the student's active, unexpired subscription.
func (m *MembershipDBImpl) GetActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	return m.subscriptions.GetActiveByStudent(ctx, studentID, now)
}

// ListSubscriptions returns all of a student's subscriptions.
func (m *MembershipDBImpl) ListSubscriptions(ctx context.Context, studentID string) ([]*types.Subscription, error) {
	return m.subscriptions.ListByStudent(ctx, studentID)
}

// GetPlan fetches a plan by ID.
func (m *MembershipDBImpl) GetPlan(ctx context.Context, id string) (*types.Plan, error) {
	return m.plans.GetByID(ctx, id)
}

// GetStudent fetches a student by ID.
func (m *MembershipDBImpl) GetStudent(ctx context.Context, id string) (*types.Student, error) {
	return m.students.GetByID(ctx, id)
}

// DecrementAllowance consumes one allowance unit.
func (m *MembershipDBImpl) DecrementAllowance(ctx context.Context, subscriptionID string) error {
	return m.subscriptions.Decrement(ctx, subscriptionID)
}

// RestoreAllowance returns one allowance unit.
func (m *MembershipDBImpl) RestoreAllowance(ctx context.Context, subscriptionID string, now time.Time) error {
	return m.subscriptions.Restore(ctx, subscriptionID, now)
}

// CancelSubscription flips an active subscription to cancelled.
func (m *MembershipDBImpl) CancelSubscription(ctx context.Context, id string) error {
	return m.subscriptions.UpdateStatus(ctx, id,
		types.SubscriptionStatusActive, types.SubscriptionStatusCancelled)
}

// ExpireOverdue expires active subscriptions past their validity window.
func (m *MembershipDBImpl) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	return m.subscriptions.ExpireOverdue(ctx, now)
}

var _ membership.LedgerDB = (*MembershipDBImpl)(nil)
