package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"studiobook/internal/types"
)

// PlanRepository provides data access for the plans table. Plans are
// templates; existing subscriptions keep the allowance and validity they were
// created with even after the plan changes or is deactivated.
type PlanRepository struct {
	db DBTX
}

// NewPlanRepository creates a new PlanRepository backed by the given database
// connection (pool or transaction).
func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, class_allowance, validity_days, price_cents, active, created_at, updated_at`

func scanPlan(row pgx.Row) (*types.Plan, error) {
	var p types.Plan
	err := row.Scan(&p.ID, &p.Name, &p.ClassAllowance, &p.ValidityDays,
		&p.PriceCents, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new plan.
func (r *PlanRepository) Create(ctx context.Context, plan *types.Plan) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plans (id, name, class_allowance, validity_days, price_cents, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		plan.ID, plan.Name, plan.ClassAllowance, plan.ValidityDays, plan.PriceCents, plan.Active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create plan", err)
	}
	return nil
}

// GetByID fetches a plan by ID.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*types.Plan, error) {
	plan, err := scanPlan(r.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch plan", err)
	}
	return plan, nil
}

// List returns all plans, optionally restricted to active ones.
func (r *PlanRepository) List(ctx context.Context, activeOnly bool) ([]*types.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY price_cents, name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plans", err)
	}
	defer rows.Close()

	var plans []*types.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read plans", err)
	}
	return plans, nil
}

// Update persists changes to a plan template.
func (r *PlanRepository) Update(ctx context.Context, plan *types.Plan) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plans
		 SET name = $1, class_allowance = $2, validity_days = $3, price_cents = $4,
		     active = $5, updated_at = NOW()
		 WHERE id = $6`,
		plan.Name, plan.ClassAllowance, plan.ValidityDays, plan.PriceCents, plan.Active, plan.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return nil
}
