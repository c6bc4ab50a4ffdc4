package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"studiobook/internal/types"
)

// ListClassesParams defines the filtering and pagination parameters for
// listing classes.
type ListClassesParams struct {
	InstructorID string              `json:"instructor_id"`
	ZoneID       string              `json:"zone_id"`
	Status       []types.ClassStatus `json:"status"`
	From         *time.Time          `json:"from"`
	To           *time.Time          `json:"to"`
	Limit        int                 `json:"limit"`
	Cursor       string              `json:"cursor"`
}

// ClassRepository provides data access for the classes table.
//
// The confirmed_count field on types.Class is hydrated from the reservations
// table, never stored on the class row. Reads that feed a capacity decision
// MUST go through GetByIDForUpdate inside a transaction so the class row is
// locked while seats are counted.
type ClassRepository struct {
	db DBTX
}

// NewClassRepository creates a new ClassRepository backed by the given
// database connection (pool or transaction).
func NewClassRepository(db DBTX) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `c.id, c.title, c.instructor_id, c.zone_id, c.starts_at, c.ends_at,
	c.capacity_limit, c.status, c.created_at, c.updated_at`

// confirmedCountExpr counts seats currently held against a class. Only
// confirmed reservations hold seats; cancelled, completed, and no_show do not
// block new bookings for the remaining history of the class.
const confirmedCountExpr = `(SELECT COUNT(*) FROM reservations r
	WHERE r.class_id = c.id AND r.status = 'confirmed')`

func scanClass(row pgx.Row) (*types.Class, error) {
	var c types.Class
	err := row.Scan(
		&c.ID, &c.Title, &c.InstructorID, &c.ZoneID,
		&c.StartsAt, &c.EndsAt, &c.CapacityLimit, &c.Status,
		&c.CreatedAt, &c.UpdatedAt, &c.ConfirmedCount,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *types.Class) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO classes (id, title, instructor_id, zone_id, starts_at, ends_at,
		                      capacity_limit, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		class.ID, class.Title, class.InstructorID, class.ZoneID,
		class.StartsAt, class.EndsAt, class.CapacityLimit, class.Status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create class", err)
	}
	return nil
}

// GetByID fetches a class by ID with its confirmed seat count hydrated.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*types.Class, error) {
	class, err := scanClass(r.db.QueryRow(ctx,
		`SELECT `+classColumns+`, `+confirmedCountExpr+`
		 FROM classes c WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClass, "class not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch class", err)
	}
	return class, nil
}

// GetByIDForUpdate fetches a class by ID with FOR UPDATE so concurrent
// reservation attempts against the same class serialize on the row lock. The
// confirmed count is taken AFTER the lock is held, so it reflects every
// committed reservation. Must be called inside a transaction.
func (r *ClassRepository) GetByIDForUpdate(ctx context.Context, id string) (*types.Class, error) {
	var c types.Class
	err := r.db.QueryRow(ctx,
		`SELECT `+classColumns+` FROM classes c WHERE c.id = $1 FOR UPDATE`, id,
	).Scan(
		&c.ID, &c.Title, &c.InstructorID, &c.ZoneID,
		&c.StartsAt, &c.EndsAt, &c.CapacityLimit, &c.Status,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClass, "class not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock class", err)
	}

	count, err := r.CountConfirmed(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ConfirmedCount = count
	return &c, nil
}

// CountConfirmed returns the number of confirmed reservations for a class.
func (r *ClassRepository) CountConfirmed(ctx context.Context, classID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE class_id = $1 AND status = 'confirmed'`,
		classID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count confirmed reservations", err)
	}
	return count, nil
}

// HasInstructorOverlap reports whether the instructor already teaches a
// non-cancelled class overlapping [startsAt, endsAt). excludeID skips the
// class being updated; pass "" on create.
func (r *ClassRepository) HasInstructorOverlap(ctx context.Context, instructorID string, startsAt, endsAt time.Time, excludeID string) (bool, error) {
	return r.hasOverlap(ctx, "instructor_id", instructorID, startsAt, endsAt, excludeID)
}

// HasZoneOverlap reports whether the zone already hosts a non-cancelled class
// overlapping [startsAt, endsAt). excludeID skips the class being updated.
func (r *ClassRepository) HasZoneOverlap(ctx context.Context, zoneID string, startsAt, endsAt time.Time, excludeID string) (bool, error) {
	return r.hasOverlap(ctx, "zone_id", zoneID, startsAt, endsAt, excludeID)
}

func (r *ClassRepository) hasOverlap(ctx context.Context, column, ownerID string, startsAt, endsAt time.Time, excludeID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM classes c
		WHERE c.` + column + ` = $1
		  AND c.status != 'cancelled'
		  AND c.starts_at < $3
		  AND $2 < c.ends_at`
	args := []any{ownerID, startsAt, endsAt}
	if excludeID != "" {
		query += ` AND c.id != $4`
		args = append(args, excludeID)
	}
	query += `)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check schedule overlap", err)
	}
	return exists, nil
}

// List returns classes matching the given filters with cursor-based
// pagination. Results are ordered by starts_at ASC (soonest first); the
// cursor is the starts_at of the last item from the previous page.
func (r *ClassRepository) List(ctx context.Context, params ListClassesParams) ([]*types.Class, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	if params.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", argIdx))
		args = append(args, params.InstructorID)
		argIdx++
	}
	if params.ZoneID != "" {
		conditions = append(conditions, fmt.Sprintf("c.zone_id = $%d", argIdx))
		args = append(args, params.ZoneID)
		argIdx++
	}
	if len(params.Status) > 0 {
		placeholders := make([]string, len(params.Status))
		for i, s := range params.Status {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args = append(args, s)
			argIdx++
		}
		conditions = append(conditions, fmt.Sprintf("c.status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("c.starts_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("c.starts_at < $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}
	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("c.starts_at > $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Fetch limit+1 to detect if there are more results.
	query := fmt.Sprintf(
		`SELECT %s, %s
		 FROM classes c
		 %s
		 ORDER BY c.starts_at ASC
		 LIMIT $%d`,
		classColumns, confirmedCountExpr, whereClause, argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list classes", err)
	}
	defer rows.Close()

	var results []*types.Class
	for rows.Next() {
		class, scanErr := scanClass(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan class row", scanErr)
		}
		results = append(results, class)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating class rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].StartsAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}

// Update persists schedule/capacity changes to a class.
func (r *ClassRepository) Update(ctx context.Context, class *types.Class) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes
		 SET title = $1, instructor_id = $2, zone_id = $3, starts_at = $4, ends_at = $5,
		     capacity_limit = $6, status = $7, updated_at = NOW()
		 WHERE id = $8`,
		class.Title, class.InstructorID, class.ZoneID, class.StartsAt, class.EndsAt,
		class.CapacityLimit, class.Status, class.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update class", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClass, "class not found", nil)
	}
	return nil
}

// UpdateStatus moves a class from one status to another as a conditional
// single-row UPDATE. Returns conflict_invalid_status_transition when the row
// is no longer in the expected source status.
func (r *ClassRepository) UpdateStatus(ctx context.Context, id string, from, to types.ClassStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update class status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			fmt.Sprintf("class is not in status %q", from), nil)
	}
	return nil
}

// Delete removes a class row permanently. Callers are responsible for
// deciding between hard delete and soft cancel; reservations referencing the
// class block deletion at the FK level.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete class", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClass, "class not found", nil)
	}
	return nil
}

// MarkOngoing bulk-progresses scheduled classes whose start time has passed
// but whose end time has not. Returns the number of classes progressed.
func (r *ClassRepository) MarkOngoing(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes SET status = 'ongoing', updated_at = NOW()
		 WHERE status = 'scheduled' AND starts_at <= $1 AND ends_at > $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark classes ongoing", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkCompleted bulk-progresses classes whose end time has passed. Both
// scheduled and ongoing classes complete; a class that was never swept into
// ongoing still finishes.
func (r *ClassRepository) MarkCompleted(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes SET status = 'completed', updated_at = NOW()
		 WHERE status IN ('scheduled', 'ongoing') AND ends_at <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark classes completed", err)
	}
	return int(tag.RowsAffected()), nil
}
