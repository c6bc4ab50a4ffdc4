package membership

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/types"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type mockLedgerDB struct {
	getStudentFn            func(ctx context.Context, id string) (*types.Student, error)
	getPlanFn               func(ctx context.Context, id string) (*types.Plan, error)
	getSubscriptionFn       func(ctx context.Context, id string) (*types.Subscription, error)
	getActiveSubscriptionFn func(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error)
	listSubscriptionsFn     func(ctx context.Context, studentID string) ([]*types.Subscription, error)
	decrementAllowanceFn    func(ctx context.Context, subscriptionID string) error
	restoreAllowanceFn      func(ctx context.Context, subscriptionID string, now time.Time) error
	cancelSubscriptionFn    func(ctx context.Context, id string) error
	expireOverdueFn         func(ctx context.Context, now time.Time) (int, error)

	tx *mockLedgerTx
}

func (m *mockLedgerDB) BeginTx(ctx context.Context) (LedgerTx, error) {
	if m.tx == nil {
		m.tx = &mockLedgerTx{}
	}
	return m.tx, nil
}

func (m *mockLedgerDB) GetStudent(ctx context.Context, id string) (*types.Student, error) {
	return m.getStudentFn(ctx, id)
}

func (m *mockLedgerDB) GetPlan(ctx context.Context, id string) (*types.Plan, error) {
	return m.getPlanFn(ctx, id)
}

func (m *mockLedgerDB) GetSubscription(ctx context.Context, id string) (*types.Subscription, error) {
	return m.getSubscriptionFn(ctx, id)
}

func (m *mockLedgerDB) GetActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	return m.getActiveSubscriptionFn(ctx, studentID, now)
}

func (m *mockLedgerDB) ListSubscriptions(ctx context.Context, studentID string) ([]*types.Subscription, error) {
	return m.listSubscriptionsFn(ctx, studentID)
}

func (m *mockLedgerDB) DecrementAllowance(ctx context.Context, subscriptionID string) error {
	return m.decrementAllowanceFn(ctx, subscriptionID)
}

func (m *mockLedgerDB) RestoreAllowance(ctx context.Context, subscriptionID string, now time.Time) error {
	return m.restoreAllowanceFn(ctx, subscriptionID, now)
}

func (m *mockLedgerDB) CancelSubscription(ctx context.Context, id string) error {
	return m.cancelSubscriptionFn(ctx, id)
}

func (m *mockLedgerDB) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	return m.expireOverdueFn(ctx, now)
}

type mockLedgerTx struct {
	cancelActiveFn func(ctx context.Context, studentID string) (int, error)

	cancelledFor string
	created      *types.Subscription
	committed    bool
	rolledBack   bool
}

func (t *mockLedgerTx) CancelActiveSubscription(ctx context.Context, studentID string) (int, error) {
	t.cancelledFor = studentID
	if t.cancelActiveFn != nil {
		return t.cancelActiveFn(ctx, studentID)
	}
	return 0, nil
}

func (t *mockLedgerTx) CreateSubscription(ctx context.Context, sub *types.Subscription) error {
	t.created = sub
	return nil
}

func (t *mockLedgerTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *mockLedgerTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

func activeStudent(id string) *types.Student {
	return &types.Student{ID: id, Name: "Test Student", Active: true}
}

func monthlyPlan(id string) *types.Plan {
	return &types.Plan{
		ID:             id,
		Name:           "Monthly 8",
		ClassAllowance: 8,
		ValidityDays:   30,
		PriceCents:     9900,
		Active:         true,
	}
}

func newTestLedger(db *mockLedgerDB) *Ledger {
	return NewLedger(db, types.FixedClock{T: testNow}, nil)
}

func TestCreateSubscription(t *testing.T) {
	db := &mockLedgerDB{
		getStudentFn: func(ctx context.Context, id string) (*types.Student, error) {
			return activeStudent(id), nil
		},
		getPlanFn: func(ctx context.Context, id string) (*types.Plan, error) {
			return monthlyPlan(id), nil
		},
	}

	ledger := newTestLedger(db)
	sub, err := ledger.CreateSubscription(context.Background(), "stu_1", "plan_1")
	require.NoError(t, err)

	assert.Equal(t, "stu_1", sub.StudentID)
	assert.Equal(t, "plan_1", sub.PlanID)
	assert.Equal(t, 8, sub.ClassesRemaining, "allowance snapshots the plan at purchase")
	assert.Equal(t, testNow, sub.StartsAt)
	assert.Equal(t, testNow.AddDate(0, 0, 30), sub.ExpiresAt)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)

	require.NotNil(t, db.tx)
	assert.Equal(t, "stu_1", db.tx.cancelledFor, "prior active subscription is cancelled in the same tx")
	assert.Equal(t, sub, db.tx.created)
	assert.True(t, db.tx.committed)
}

func TestCreateSubscription_ReplacesPriorActive(t *testing.T) {
	db := &mockLedgerDB{
		getStudentFn: func(ctx context.Context, id string) (*types.Student, error) {
			return activeStudent(id), nil
		},
		getPlanFn: func(ctx context.Context, id string) (*types.Plan, error) {
			return monthlyPlan(id), nil
		},
		tx: &mockLedgerTx{
			cancelActiveFn: func(ctx context.Context, studentID string) (int, error) {
				return 1, nil
			},
		},
	}

	ledger := newTestLedger(db)
	_, err := ledger.CreateSubscription(context.Background(), "stu_1", "plan_1")
	require.NoError(t, err)
	assert.True(t, db.tx.committed)
}

func TestCreateSubscription_InactivePlan(t *testing.T) {
	db := &mockLedgerDB{
		getStudentFn: func(ctx context.Context, id string) (*types.Student, error) {
			return activeStudent(id), nil
		},
		getPlanFn: func(ctx context.Context, id string) (*types.Plan, error) {
			plan := monthlyPlan(id)
			plan.Active = false
			return plan, nil
		},
	}

	ledger := newTestLedger(db)
	_, err := ledger.CreateSubscription(context.Background(), "stu_1", "plan_1")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeConflictPlanInactive, appErr.Code)
	assert.Nil(t, db.tx, "no transaction should start for an inactive plan")
}

func TestCreateSubscription_InactiveStudent(t *testing.T) {
	db := &mockLedgerDB{
		getStudentFn: func(ctx context.Context, id string) (*types.Student, error) {
			st := activeStudent(id)
			st.Active = false
			return st, nil
		},
	}

	ledger := newTestLedger(db)
	_, err := ledger.CreateSubscription(context.Background(), "stu_1", "plan_1")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeNotFoundStudent, appErr.Code)
}

func TestCreateSubscription_StudentNotFound(t *testing.T) {
	db := &mockLedgerDB{
		getStudentFn: func(ctx context.Context, id string) (*types.Student, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", nil)
		},
	}

	ledger := newTestLedger(db)
	_, err := ledger.CreateSubscription(context.Background(), "stu_missing", "plan_1")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeNotFoundStudent, appErr.Code)
}

func TestGetActiveSubscription_UsesClock(t *testing.T) {
	var seenNow time.Time
	db := &mockLedgerDB{
		getActiveSubscriptionFn: func(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
			seenNow = now
			return &types.Subscription{ID: "sub_1", StudentID: studentID}, nil
		},
	}

	ledger := newTestLedger(db)
	sub, err := ledger.GetActiveSubscription(context.Background(), "stu_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, testNow, seenNow)
}

func TestCancelSubscription(t *testing.T) {
	var cancelled string
	db := &mockLedgerDB{
		cancelSubscriptionFn: func(ctx context.Context, id string) error {
			cancelled = id
			return nil
		},
	}

	ledger := newTestLedger(db)
	require.NoError(t, ledger.CancelSubscription(context.Background(), "sub_1"))
	assert.Equal(t, "sub_1", cancelled)
}

func TestProcessExpirations(t *testing.T) {
	var seenNow time.Time
	db := &mockLedgerDB{
		expireOverdueFn: func(ctx context.Context, now time.Time) (int, error) {
			seenNow = now
			return 3, nil
		},
	}

	ledger := newTestLedger(db)
	expired, err := ledger.ProcessExpirations(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, expired)
	assert.Equal(t, testNow, seenNow)
}
