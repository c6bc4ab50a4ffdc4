package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"studiobook/internal/types"
)

// InstructorRepository provides data access for the instructors table.
type InstructorRepository struct {
	db DBTX
}

// NewInstructorRepository creates a new InstructorRepository backed by the
// given database connection (pool or transaction).
func NewInstructorRepository(db DBTX) *InstructorRepository {
	return &InstructorRepository{db: db}
}

const instructorColumns = `id, name, specialty, active, created_at, updated_at`

func scanInstructor(row pgx.Row) (*types.Instructor, error) {
	var i types.Instructor
	var specialty *string
	err := row.Scan(&i.ID, &i.Name, &specialty, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if specialty != nil {
		i.Specialty = *specialty
	}
	return &i, nil
}

// Create inserts a new instructor.
func (r *InstructorRepository) Create(ctx context.Context, instructor *types.Instructor) error {
	var specialty *string
	if instructor.Specialty != "" {
		specialty = &instructor.Specialty
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO instructors (id, name, specialty, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		instructor.ID, instructor.Name, specialty, instructor.Active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create instructor", err)
	}
	return nil
}

// GetByID fetches an instructor by ID.
func (r *InstructorRepository) GetByID(ctx context.Context, id string) (*types.Instructor, error) {
	instructor, err := scanInstructor(r.db.QueryRow(ctx,
		`SELECT `+instructorColumns+` FROM instructors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundInstructor, "instructor not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch instructor", err)
	}
	return instructor, nil
}

// List returns all instructors, optionally restricted to active ones.
func (r *InstructorRepository) List(ctx context.Context, activeOnly bool) ([]*types.Instructor, error) {
	query := `SELECT ` + instructorColumns + ` FROM instructors`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list instructors", err)
	}
	defer rows.Close()

	var instructors []*types.Instructor
	for rows.Next() {
		instructor, err := scanInstructor(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan instructor", err)
		}
		instructors = append(instructors, instructor)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read instructors", err)
	}
	return instructors, nil
}

// Update persists name/specialty/active changes to an instructor.
func (r *InstructorRepository) Update(ctx context.Context, instructor *types.Instructor) error {
	var specialty *string
	if instructor.Specialty != "" {
		specialty = &instructor.Specialty
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE instructors SET name = $1, specialty = $2, active = $3, updated_at = NOW()
		 WHERE id = $4`,
		instructor.Name, specialty, instructor.Active, instructor.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update instructor", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundInstructor, "instructor not found", nil)
	}
	return nil
}
