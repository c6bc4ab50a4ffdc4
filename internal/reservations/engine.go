// Package reservations implements the reservation engine: the consistency
// core that lets a student claim a seat in a class by consuming one unit of
// subscription allowance, and that unwinds the claim on cancellation.
//
// Every booking decision runs inside a single database transaction with the
// class row and the subscription row locked, so capacity and allowance checks
// cannot race. The storage layer carries a partial unique index and CHECK
// constraints as the second line of defense.
package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"studiobook/internal/config"
	"studiobook/internal/types"
)

// EngineDB defines the database operations needed by the Engine. Using an
// interface allows clean testing without database dependencies.
type EngineDB interface {
	// BeginTx starts a new database transaction. The returned EngineTx holds
	// the row locks for one booking or cancellation decision.
	BeginTx(ctx context.Context) (EngineTx, error)

	GetClass(ctx context.Context, id string) (*types.Class, error)
	GetStudent(ctx context.Context, id string) (*types.Student, error)
	GetReservation(ctx context.Context, id string) (*types.Reservation, error)
	GetActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error)
	HasActiveReservation(ctx context.Context, classID, studentID string) (bool, error)
	ListReservationsByStudent(ctx context.Context, studentID string) ([]*types.Reservation, error)
	ListReservationsByClass(ctx context.Context, classID string) ([]*types.Reservation, error)

	// ListConfirmedEndedBefore returns confirmed reservations whose class
	// ended before the cutoff, feeding the auto-completion sweep.
	ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Reservation, error)

	// CompleteReservation finalizes a confirmed reservation outside a
	// transaction (single conditional UPDATE).
	CompleteReservation(ctx context.Context, id string, now time.Time) error
}

// EngineTx is the transactional surface of a booking decision.
type EngineTx interface {
	// LockClass fetches the class FOR UPDATE with its confirmed seat count
	// taken after the lock is held.
	LockClass(ctx context.Context, id string) (*types.Class, error)

	// LockActiveSubscription fetches the student's active subscription
	// FOR UPDATE so concurrent allowance consumers serialize.
	LockActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error)

	// LockReservation fetches a reservation FOR UPDATE.
	LockReservation(ctx context.Context, id string) (*types.Reservation, error)

	GetClass(ctx context.Context, id string) (*types.Class, error)
	HasActiveReservation(ctx context.Context, classID, studentID string) (bool, error)
	CreateReservation(ctx context.Context, res *types.Reservation) error
	CancelReservation(ctx context.Context, id, reason string, now time.Time) error
	CompleteReservation(ctx context.Context, id string, now time.Time) error
	MarkNoShow(ctx context.Context, id string, now time.Time) error
	DecrementAllowance(ctx context.Context, subscriptionID string) error
	RestoreAllowance(ctx context.Context, subscriptionID string, now time.Time) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Engine is the reservation engine.
type Engine struct {
	db     EngineDB
	policy config.PolicyConfig
	clock  types.Clock
	logger *slog.Logger
}

// NewEngine creates a reservation engine.
func NewEngine(engineDB EngineDB, policy config.PolicyConfig, clock types.Clock, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: engineDB, policy: policy, clock: clock, logger: logger}
}

// CanReserve checks whether the student could reserve a seat in the class
// right now. Returns nil when eligible and the blocking AppError otherwise.
// Advisory only: the authoritative checks rerun under lock inside
// CreateReservation.
func (e *Engine) CanReserve(ctx context.Context, studentID, classID string) error {
	now := e.clock.Now()

	student, err := e.db.GetStudent(ctx, studentID)
	if err != nil {
		return err
	}
	if !student.Active {
		return types.NewAppError(types.ErrCodeNotFoundStudent, "student is no longer active", nil)
	}

	class, err := e.db.GetClass(ctx, classID)
	if err != nil {
		return err
	}
	if err := checkClassBookable(class, now); err != nil {
		return err
	}
	if class.ConfirmedCount >= class.CapacityLimit {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictCapacityExceeded,
			"class is fully booked", nil,
			map[string]any{"capacity_limit": class.CapacityLimit})
	}

	duplicate, err := e.db.HasActiveReservation(ctx, classID, studentID)
	if err != nil {
		return err
	}
	if duplicate {
		return types.NewAppError(types.ErrCodeConflictDuplicateReservation,
			"student already holds a reservation for this class", nil)
	}

	sub, err := e.db.GetActiveSubscription(ctx, studentID, now)
	if err != nil {
		return noSubscriptionError(err)
	}
	if sub.ClassesRemaining <= 0 {
		return types.NewAppError(types.ErrCodeConflictAllowanceExhausted,
			"subscription has no classes remaining", nil)
	}
	return nil
}

// CreateReservation books a seat for the student. All checks and writes run
// in one transaction: the class row is locked first (serializing seat
// counting), then the subscription row (serializing allowance), then the
// reservation insert and the conditional allowance decrement. Serialization
// aborts are retried a bounded number of times before surfacing as
// conflict_concurrent_modification.
func (e *Engine) CreateReservation(ctx context.Context, studentID, classID string) (*types.Reservation, error) {
	student, err := e.db.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.Active {
		return nil, types.NewAppError(types.ErrCodeNotFoundStudent, "student is no longer active", nil)
	}

	var lastErr error
	for attempt := 0; attempt < e.policy.ReservationRetries; attempt++ {
		res, err := e.tryReserve(ctx, studentID, classID)
		if err == nil {
			e.logger.InfoContext(ctx, "reservation created",
				slog.String("reservation_id", res.ID),
				slog.String("class_id", classID),
				slog.String("student_id", studentID),
				slog.String("subscription_id", res.SubscriptionID),
			)
			return res, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, types.NewAppError(types.ErrCodeConflictConcurrent,
		"reservation aborted after repeated conflicts with concurrent bookings", lastErr)
}

func (e *Engine) tryReserve(ctx context.Context, studentID, classID string) (*types.Reservation, error) {
	now := e.clock.Now()

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	class, err := tx.LockClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := checkClassBookable(class, now); err != nil {
		return nil, err
	}
	if class.ConfirmedCount >= class.CapacityLimit {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictCapacityExceeded,
			"class is fully booked", nil,
			map[string]any{"capacity_limit": class.CapacityLimit})
	}

	duplicate, err := tx.HasActiveReservation(ctx, classID, studentID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, types.NewAppError(types.ErrCodeConflictDuplicateReservation,
			"student already holds a reservation for this class", nil)
	}

	sub, err := tx.LockActiveSubscription(ctx, studentID, now)
	if err != nil {
		return nil, noSubscriptionError(err)
	}

	res := &types.Reservation{
		ID:             "res_" + uuid.New().String(),
		ClassID:        classID,
		StudentID:      studentID,
		SubscriptionID: sub.ID,
		Status:         types.ReservationStatusConfirmed,
		ReservedAt:     now,
	}
	if err := tx.CreateReservation(ctx, res); err != nil {
		return nil, err
	}
	if err := tx.DecrementAllowance(ctx, sub.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit reservation", err)
	}
	return res, nil
}

// isSerializationFailure reports whether err is a PostgreSQL serialization
// failure or deadlock (SQLSTATE 40001/40P01), the two aborts worth retrying.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// CancelReservation cancels a confirmed reservation and restores the
// allowance unit to the subscription it was drawn from, atomically. Students
// may cancel up to the policy window before the class starts; the deadline is
// waived when the class itself was cancelled by the studio. An optional
// reason is stored on the reservation for the record.
func (e *Engine) CancelReservation(ctx context.Context, reservationID, reason string) error {
	now := e.clock.Now()

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := tx.LockReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.Status != types.ReservationStatusConfirmed {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			fmt.Sprintf("reservation is %s, only confirmed reservations can be cancelled", res.Status), nil)
	}

	class, err := tx.GetClass(ctx, res.ClassID)
	if err != nil {
		return err
	}
	if class.Status != types.ClassStatusCancelled {
		deadline := class.StartsAt.Add(-e.policy.CancellationWindow)
		if !now.Before(deadline) {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictDeadlinePassed,
				"cancellation window has closed for this class", nil,
				map[string]any{
					"deadline":  deadline,
					"starts_at": class.StartsAt,
				})
		}
	}

	if err := tx.CancelReservation(ctx, reservationID, reason, now); err != nil {
		return err
	}
	if err := tx.RestoreAllowance(ctx, res.SubscriptionID, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit cancellation", err)
	}

	e.logger.InfoContext(ctx, "reservation cancelled",
		slog.String("reservation_id", reservationID),
		slog.String("subscription_id", res.SubscriptionID),
	)
	return nil
}

// CompleteReservation marks attendance for a confirmed reservation. Staff
// action; the class must have started. The allowance unit stays consumed.
func (e *Engine) CompleteReservation(ctx context.Context, reservationID string) error {
	return e.finalize(ctx, reservationID, types.ReservationStatusCompleted)
}

// MarkNoShow marks a confirmed reservation as a no-show. Staff action; the
// class must have started. The allowance unit stays consumed.
func (e *Engine) MarkNoShow(ctx context.Context, reservationID string) error {
	return e.finalize(ctx, reservationID, types.ReservationStatusNoShow)
}

func (e *Engine) finalize(ctx context.Context, reservationID string, target types.ReservationStatus) error {
	now := e.clock.Now()

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := tx.LockReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if !res.Status.CanTransitionTo(target) {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			fmt.Sprintf("reservation is %s, cannot mark %s", res.Status, target), nil)
	}

	class, err := tx.GetClass(ctx, res.ClassID)
	if err != nil {
		return err
	}
	if now.Before(class.StartsAt) {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			"class has not started yet", nil)
	}

	switch target {
	case types.ReservationStatusCompleted:
		err = tx.CompleteReservation(ctx, reservationID, now)
	case types.ReservationStatusNoShow:
		err = tx.MarkNoShow(ctx, reservationID, now)
	default:
		err = types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("unsupported finalization target %q", target), nil)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit attendance update", err)
	}

	e.logger.InfoContext(ctx, "reservation finalized",
		slog.String("reservation_id", reservationID),
		slog.String("status", string(target)),
	)
	return nil
}

// GetReservation fetches a reservation by ID.
func (e *Engine) GetReservation(ctx context.Context, id string) (*types.Reservation, error) {
	return e.db.GetReservation(ctx, id)
}

// ListByStudent returns a student's reservations, newest first.
func (e *Engine) ListByStudent(ctx context.Context, studentID string) ([]*types.Reservation, error) {
	return e.db.ListReservationsByStudent(ctx, studentID)
}

// ListByClass returns all reservations for a class.
func (e *Engine) ListByClass(ctx context.Context, classID string) ([]*types.Reservation, error) {
	return e.db.ListReservationsByClass(ctx, classID)
}

// sweepBatchLimit caps how many reservations one sweep invocation processes.
const sweepBatchLimit = 500

// ProcessCompletedReservations auto-completes confirmed reservations whose
// class ended before the start of the current day. Classes finalize the day
// after they run, leaving staff the same-day window to mark no-shows. Rows
// are processed individually; a failed row is logged and skipped so the batch
// continues. Returns the number completed.
func (e *Engine) ProcessCompletedReservations(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC().Truncate(24 * time.Hour)

	rows, err := e.db.ListConfirmedEndedBefore(ctx, cutoff, sweepBatchLimit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, res := range rows {
		if err := e.db.CompleteReservation(ctx, res.ID, now); err != nil {
			e.logger.ErrorContext(ctx, "failed to auto-complete reservation",
				slog.String("reservation_id", res.ID),
				slog.String("class_id", res.ClassID),
				slog.Any("error", err),
			)
			continue
		}
		processed++
	}

	if processed > 0 {
		e.logger.InfoContext(ctx, "reservations auto-completed by sweep",
			slog.Int("count", processed),
			slog.Time("cutoff", cutoff),
		)
	}
	return processed, nil
}

// checkClassBookable enforces the class-side booking rules: the class must be
// open for booking (scheduled) and must not have started.
func checkClassBookable(class *types.Class, now time.Time) error {
	if class.Status != types.ClassStatusScheduled {
		return types.NewAppError(types.ErrCodeConflictClassNotOpen,
			fmt.Sprintf("class is %s and not open for booking", class.Status), nil)
	}
	if !now.Before(class.StartsAt) {
		return types.NewAppError(types.ErrCodeConflictClassNotOpen,
			"class has already started", nil)
	}
	return nil
}

// noSubscriptionError converts a not-found active subscription into the
// booking-specific conflict; other errors pass through.
func noSubscriptionError(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSubscription {
		return types.NewAppError(types.ErrCodeConflictNoActiveSubscription,
			"student has no active subscription", err)
	}
	return err
}
