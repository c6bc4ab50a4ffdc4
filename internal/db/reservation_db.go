package db

import (
	"context"
	"time"

	"studiobook/internal/reservations"
	"studiobook/internal/types"
)

// ReservationDBImpl wires the reservations.EngineDB interface to the
// repository layer. Non-transactional reads run on the pool; BeginTx hands
// back a ReservationTxImpl whose repositories are bound to the open
// transaction so the engine's row locks actually hold.
type ReservationDBImpl struct {
	pool          PoolDB
	classes       *ClassRepository
	students      *StudentRepository
	subscriptions *SubscriptionRepository
	reservations  *ReservationRepository
}

// NewReservationDBImpl creates a ReservationDBImpl over the given pool.
func NewReservationDBImpl(pool PoolDB) *ReservationDBImpl {
	return &ReservationDBImpl{
		pool:          pool,
		classes:       NewClassRepository(pool),
		students:      NewStudentRepository(pool),
		subscriptions: NewSubscriptionRepository(pool),
		reservations:  NewReservationRepository(pool),
	}
}

// BeginTx opens a transaction and returns a ReservationTxImpl bound to it.
func (d *ReservationDBImpl) BeginTx(ctx context.Context) (reservations.EngineTx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	return &ReservationTxImpl{
		raw:           tx,
		classes:       NewClassRepository(tx),
		subscriptions: NewSubscriptionRepository(tx),
		reservations:  NewReservationRepository(tx),
	}, nil
}

// GetClass fetches a class with its confirmed count hydrated.
func (d *ReservationDBImpl) GetClass(ctx context.Context, id string) (*types.Class, error) {
	return d.classes.GetByID(ctx, id)
}

// GetStudent fetches a student by ID.
func (d *ReservationDBImpl) GetStudent(ctx context.Context, id string) (*types.Student, error) {
	return d.students.GetByID(ctx, id)
}

// GetReservation fetches a reservation by ID.
func (d *ReservationDBImpl) GetReservation(ctx context.Context, id string) (*types.Reservation, error) {
	return d.reservations.GetByID(ctx, id)
}

// GetActiveSubscription returns the student's active, unexpired subscription.
func (d *ReservationDBImpl) GetActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	return d.subscriptions.GetActiveByStudent(ctx, studentID, now)
}

// HasActiveReservation reports whether the student holds a non-cancelled
// reservation for the class.
func (d *ReservationDBImpl) HasActiveReservation(ctx context.Context, classID, studentID string) (bool, error) {
	return d.reservations.HasActiveReservation(ctx, classID, studentID)
}

// ListReservationsByStudent returns a student's reservations.
func (d *ReservationDBImpl) ListReservationsByStudent(ctx context.Context, studentID string) ([]*types.Reservation, error) {
	return d.reservations.ListByStudent(ctx, studentID)
}

// ListReservationsByClass returns a class's reservations.
func (d *ReservationDBImpl) ListReservationsByClass(ctx context.Context, classID string) ([]*types.Reservation, error) {
	return d.reservations.ListByClass(ctx, classID)
}

// ListConfirmedEndedBefore returns confirmed reservations whose class ended
// before the cutoff.
func (d *ReservationDBImpl) ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Reservation, error) {
	return d.reservations.ListConfirmedEndedBefore(ctx, cutoff, limit)
}

// CompleteReservation finalizes a confirmed reservation with a single
// conditional UPDATE.
func (d *ReservationDBImpl) CompleteReservation(ctx context.Context, id string, now time.Time) error {
	return d.reservations.Complete(ctx, id, now)
}

// ReservationTxImpl is the transactional surface of one booking decision.
// It implements reservations.EngineTx.
type ReservationTxImpl struct {
	raw           txCloser
	classes       *ClassRepository
	subscriptions *SubscriptionRepository
	reservations  *ReservationRepository
}

// LockClass fetches the class FOR UPDATE with its confirmed count.
func (t *ReservationTxImpl) LockClass(ctx context.Context, id string) (*types.Class, error) {
	return t.classes.GetByIDForUpdate(ctx, id)
}

// LockActiveSubscription fetches the student's active subscription FOR UPDATE.
func (t *ReservationTxImpl) LockActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	return t.subscriptions.GetActiveByStudentForUpdate(ctx, studentID, now)
}

// LockReservation fetches a reservation FOR UPDATE.
func (t *ReservationTxImpl) LockReservation(ctx context.Context, id string) (*types.Reservation, error) {
	return t.reservations.GetByIDForUpdate(ctx, id)
}

// GetClass fetches a class inside the transaction.
func (t *ReservationTxImpl) GetClass(ctx context.Context, id string) (*types.Class, error) {
	return t.classes.GetByID(ctx, id)
}

// HasActiveReservation checks for an existing non-cancelled reservation.
func (t *ReservationTxImpl) HasActiveReservation(ctx context.Context, classID, studentID string) (bool, error) {
	return t.reservations.HasActiveReservation(ctx, classID, studentID)
}

// CreateReservation inserts the reservation row.
func (t *ReservationTxImpl) CreateReservation(ctx context.Context, res *types.Reservation) error {
	return t.reservations.Create(ctx, res)
}

// CancelReservation flips a confirmed reservation to cancelled, recording
// the reason when one was given.
func (t *ReservationTxImpl) CancelReservation(ctx context.Context, id, reason string, now time.Time) error {
	return t.reservations.Cancel(ctx, id, reason, now)
}

// CompleteReservation flips a confirmed reservation to completed.
func (t *ReservationTxImpl) CompleteReservation(ctx context.Context, id string, now time.Time) error {
	return t.reservations.Complete(ctx, id, now)
}

// MarkNoShow flips a confirmed reservation to no_show.
func (t *ReservationTxImpl) MarkNoShow(ctx context.Context, id string, now time.Time) error {
	return t.reservations.MarkNoShow(ctx, id, now)
}

// DecrementAllowance consumes one allowance unit.
func (t *ReservationTxImpl) DecrementAllowance(ctx context.Context, subscriptionID string) error {
	return t.subscriptions.Decrement(ctx, subscriptionID)
}

// RestoreAllowance returns one allowance unit.
func (t *ReservationTxImpl) RestoreAllowance(ctx context.Context, subscriptionID string, now time.Time) error {
	return t.subscriptions.Restore(ctx, subscriptionID, now)
}

// Commit commits the transaction.
func (t *ReservationTxImpl) Commit(ctx context.Context) error {
	return t.raw.Commit(ctx)
}

// Rollback rolls the transaction back. Safe to call after Commit.
func (t *ReservationTxImpl) Rollback(ctx context.Context) error {
	return t.raw.Rollback(ctx)
}

var _ reservations.EngineDB = (*ReservationDBImpl)(nil)
