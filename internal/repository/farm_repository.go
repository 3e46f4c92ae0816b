package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/agrifield/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const farmColumns = "id, name, image_url, address, location, plot, status, created_at, updated_at"

type farmRepository struct {
	pool *pgxpool.Pool
}

// NewFarmRepository creates a PostgreSQL-backed farm repository
func NewFarmRepository(pool *pgxpool.Pool) FarmRepository {
	return &farmRepository{pool: pool}
}

func scanFarm(row pgx.Row) (domain.Farm, error) {
	var f domain.Farm
	err := row.Scan(&f.ID, &f.Name, &f.ImageURL, &f.Address, &f.Location, &f.Plot, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (r *farmRepository) Create(ctx context.Context, farm domain.Farm) (domain.Farm, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO farms (name, image_url, address, location, plot)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+farmColumns,
		farm.Name, farm.ImageURL, farm.Address, farm.Location, farm.Plot,
	)
	created, err := scanFarm(row)
	if err != nil {
		return domain.Farm{}, fmt.Errorf("failed to create farm: %w", err)
	}
	return created, nil
}

func (r *farmRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Farm, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+farmColumns+` FROM farms WHERE id = $1`, id)
	farm, err := scanFarm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Farm{}, ErrNotFound
		}
		return domain.Farm{}, fmt.Errorf("failed to get farm: %w", err)
	}
	return farm, nil
}

func (r *farmRepository) List(ctx context.Context) ([]domain.Farm, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+farmColumns+` FROM farms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list farms: %w", err)
	}
	defer rows.Close()

	var farms []domain.Farm
	for rows.Next() {
		farm, err := scanFarm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan farm: %w", err)
		}
		farms = append(farms, farm)
	}
	return farms, rows.Err()
}

func (r *farmRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM farms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete farm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *farmRepository) MapByNames(ctx context.Context, q Querier, names []string) (map[string]domain.Farm, error) {
	out := make(map[string]domain.Farm, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT `+farmColumns+` FROM farms WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to look up farms by name: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		farm, err := scanFarm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan farm: %w", err)
		}
		out[farm.Name] = farm
	}
	return out, rows.Err()
}

// InsertBulk inserts farms that do not yet exist by name and returns
// the created rows. Conflicting names are skipped, not updated.
func (r *farmRepository) InsertBulk(ctx context.Context, q Querier, farms []domain.Farm) ([]domain.Farm, error) {
	var created []domain.Farm
	for _, farm := range farms {
		row := q.QueryRow(ctx, `
			INSERT INTO farms (name, image_url, address, location, plot)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (name) DO NOTHING
			RETURNING `+farmColumns,
			farm.Name, farm.ImageURL, farm.Address, farm.Location, farm.Plot,
		)
		inserted, err := scanFarm(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to insert farm %q: %w", farm.Name, err)
		}
		created = append(created, inserted)
	}
	return created, nil
}

func (r *farmRepository) UpdateProfile(ctx context.Context, q Querier, id uuid.UUID, farm domain.Farm) (domain.Farm, error) {
	row := q.QueryRow(ctx, `
		UPDATE farms
		SET image_url = $2, address = $3, location = $4, plot = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+farmColumns,
		id, farm.ImageURL, farm.Address, farm.Location, farm.Plot,
	)
	updated, err := scanFarm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Farm{}, ErrNotFound
		}
		return domain.Farm{}, fmt.Errorf("failed to update farm: %w", err)
	}
	return updated, nil
}
