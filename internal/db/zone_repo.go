package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"studiobook/internal/types"
)

// ZoneRepository provides data access for the zones table.
type ZoneRepository struct {
	db DBTX
}

// NewZoneRepository creates a new ZoneRepository backed by the given database
// connection (pool or transaction).
func NewZoneRepository(db DBTX) *ZoneRepository {
	return &ZoneRepository{db: db}
}

const zoneColumns = `id, name, max_capacity, active, created_at, updated_at`

func scanZone(row pgx.Row) (*types.Zone, error) {
	var z types.Zone
	err := row.Scan(&z.ID, &z.Name, &z.MaxCapacity, &z.Active, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &z, nil
}

// Create inserts a new zone.
func (r *ZoneRepository) Create(ctx context.Context, zone *types.Zone) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO zones (id, name, max_capacity, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		zone.ID, zone.Name, zone.MaxCapacity, zone.Active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create zone", err)
	}
	return nil
}

// GetByID fetches a zone by its ID.
func (r *ZoneRepository) GetByID(ctx context.Context, id string) (*types.Zone, error) {
	zone, err := scanZone(r.db.QueryRow(ctx,
		`SELECT `+zoneColumns+` FROM zones WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundZone, "zone not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch zone", err)
	}
	return zone, nil
}

// List returns all zones, optionally restricted to active ones.
func (r *ZoneRepository) List(ctx context.Context, activeOnly bool) ([]*types.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list zones", err)
	}
	defer rows.Close()

	var zones []*types.Zone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan zone", err)
		}
		zones = append(zones, zone)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read zones", err)
	}
	return zones, nil
}

// Update persists name/capacity/active changes to a zone.
func (r *ZoneRepository) Update(ctx context.Context, zone *types.Zone) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE zones SET name = $1, max_capacity = $2, active = $3, updated_at = NOW()
		 WHERE id = $4`,
		zone.Name, zone.MaxCapacity, zone.Active, zone.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update zone", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundZone, "zone not found", nil)
	}
	return nil
}
