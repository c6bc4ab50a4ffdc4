package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"studiobook/internal/types"
)

// StudentRepository provides data access for the students table.
type StudentRepository struct {
	db DBTX
}

// NewStudentRepository creates a new StudentRepository backed by the given
// database connection (pool or transaction).
func NewStudentRepository(db DBTX) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, name, email, active, created_at, updated_at`

func scanStudent(row pgx.Row) (*types.Student, error) {
	var s types.Student
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *types.Student) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO students (id, name, email, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		student.ID, student.Name, student.Email, student.Active,
	)
	if err != nil {
		if IsUniqueViolation(err, "students_email_key") {
			return types.NewAppError(types.ErrCodeConflictDuplicateEmail, "a student with this email already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create student", err)
	}
	return nil
}

// GetByID fetches a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*types.Student, error) {
	student, err := scanStudent(r.db.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch student", err)
	}
	return student, nil
}

// List returns all students, optionally restricted to active ones.
func (r *StudentRepository) List(ctx context.Context, activeOnly bool) ([]*types.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list students", err)
	}
	defer rows.Close()

	var students []*types.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan student", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read students", err)
	}
	return students, nil
}

// Update persists name/email/active changes to a student.
func (r *StudentRepository) Update(ctx context.Context, student *types.Student) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE students SET name = $1, email = $2, active = $3, updated_at = NOW()
		 WHERE id = $4`,
		student.Name, student.Email, student.Active, student.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update student", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", nil)
	}
	return nil
}
