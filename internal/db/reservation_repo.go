package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"studiobook/internal/types"
)

// ReservationRepository provides data access for the reservations table.
//
// Duplicate protection is two-layered: the engine pre-checks with
// HasActiveReservation inside its locked transaction, and the partial unique
// index reservations_one_per_class_student (WHERE status != 'cancelled')
// backstops anything that slips past.
type ReservationRepository struct {
	db DBTX
}

// NewReservationRepository creates a new ReservationRepository backed by the
// given database connection (pool or transaction).
func NewReservationRepository(db DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `id, class_id, student_id, subscription_id, status,
	reserved_at, cancelled_at, cancellation_reason, completed_at, created_at, updated_at`

func scanReservation(row pgx.Row) (*types.Reservation, error) {
	var res types.Reservation
	err := row.Scan(
		&res.ID, &res.ClassID, &res.StudentID, &res.SubscriptionID, &res.Status,
		&res.ReservedAt, &res.CancelledAt, &res.CancellationReason, &res.CompletedAt,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Create inserts a new reservation.
func (r *ReservationRepository) Create(ctx context.Context, res *types.Reservation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO reservations (id, class_id, student_id, subscription_id, status,
		                           reserved_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		res.ID, res.ClassID, res.StudentID, res.SubscriptionID, res.Status, res.ReservedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, "reservations_one_per_class_student") {
			return types.NewAppError(types.ErrCodeConflictDuplicateReservation,
				"student already holds a reservation for this class", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create reservation", err)
	}
	return nil
}

// GetByID fetches a reservation by ID.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*types.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch reservation", err)
	}
	return res, nil
}

// GetByIDForUpdate fetches a reservation with FOR UPDATE so concurrent status
// changes serialize. Must be called inside a transaction.
func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, id string) (*types.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock reservation", err)
	}
	return res, nil
}

// HasActiveReservation reports whether the student holds a non-cancelled
// reservation for the class.
func (r *ReservationRepository) HasActiveReservation(ctx context.Context, classID, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE class_id = $1 AND student_id = $2 AND status != 'cancelled')`,
		classID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check existing reservation", err)
	}
	return exists, nil
}

// ListByStudent returns a student's reservations, newest first.
func (r *ReservationRepository) ListByStudent(ctx context.Context, studentID string) ([]*types.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE student_id = $1 ORDER BY reserved_at DESC`,
		studentID)
}

// ListByClass returns all reservations for a class, oldest first.
func (r *ReservationRepository) ListByClass(ctx context.Context, classID string) ([]*types.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE class_id = $1 ORDER BY reserved_at ASC`,
		classID)
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...any) ([]*types.Reservation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reservations", err)
	}
	defer rows.Close()

	var results []*types.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reservation", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read reservations", err)
	}
	return results, nil
}

// Cancel flips a confirmed reservation to cancelled, stamping cancelled_at
// and recording the caller-supplied reason (NULL when none was given).
// Conditional on the current status so double cancels surface as conflicts.
func (r *ReservationRepository) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	var reasonVal *string
	if reason != "" {
		reasonVal = &reason
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations
		 SET status = 'cancelled', cancelled_at = $1, cancellation_reason = $2, updated_at = NOW()
		 WHERE id = $3 AND status = 'confirmed'`,
		now, reasonVal, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update reservation status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			"reservation is not in confirmed status", nil)
	}
	return nil
}

// Complete flips a confirmed reservation to completed, stamping completed_at.
func (r *ReservationRepository) Complete(ctx context.Context, id string, now time.Time) error {
	return r.finalize(ctx, id, types.ReservationStatusCompleted, "completed_at", now)
}

// MarkNoShow flips a confirmed reservation to no_show, stamping completed_at.
func (r *ReservationRepository) MarkNoShow(ctx context.Context, id string, now time.Time) error {
	return r.finalize(ctx, id, types.ReservationStatusNoShow, "completed_at", now)
}

func (r *ReservationRepository) finalize(ctx context.Context, id string, to types.ReservationStatus, stampColumn string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET status = $1, `+stampColumn+` = $2, updated_at = NOW()
		 WHERE id = $3 AND status = 'confirmed'`,
		to, now, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update reservation status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			"reservation is not in confirmed status", nil)
	}
	return nil
}

// ListConfirmedEndedBefore returns confirmed reservations whose class ended
// before the cutoff. Feeds the auto-completion sweep; rows are processed
// individually so one bad row never blocks the batch.
func (r *ReservationRepository) ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Reservation, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.class_id, r.student_id, r.subscription_id, r.status,
		        r.reserved_at, r.cancelled_at, r.cancellation_reason, r.completed_at,
		        r.created_at, r.updated_at
		 FROM reservations r
		 JOIN classes c ON c.id = r.class_id
		 WHERE r.status = 'confirmed' AND c.ends_at < $1
		 ORDER BY c.ends_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reservations to complete", err)
	}
	defer rows.Close()

	var results []*types.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reservation", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read reservations", err)
	}
	return results, nil
}
