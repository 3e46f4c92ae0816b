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

const cropColumns = "id, name, created_at, updated_at"

type cropRepository struct {
	pool *pgxpool.Pool
}

// NewCropRepository creates a PostgreSQL-backed crop repository
func NewCropRepository(pool *pgxpool.Pool) CropRepository {
	return &cropRepository{pool: pool}
}

func scanCrop(row pgx.Row) (domain.Crop, error) {
	var c domain.Crop
	err := row.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *cropRepository) Create(ctx context.Context, crop domain.Crop) (domain.Crop, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO crops (name) VALUES ($1)
		RETURNING `+cropColumns,
		crop.Name,
	)
	created, err := scanCrop(row)
	if err != nil {
		return domain.Crop{}, fmt.Errorf("failed to create crop: %w", err)
	}
	return created, nil
}

func (r *cropRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Crop, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+cropColumns+` FROM crops WHERE id = $1`, id)
	crop, err := scanCrop(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Crop{}, ErrNotFound
		}
		return domain.Crop{}, fmt.Errorf("failed to get crop: %w", err)
	}
	return crop, nil
}

func (r *cropRepository) List(ctx context.Context) ([]domain.Crop, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cropColumns+` FROM crops ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list crops: %w", err)
	}
	defer rows.Close()

	var crops []domain.Crop
	for rows.Next() {
		crop, err := scanCrop(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crop: %w", err)
		}
		crops = append(crops, crop)
	}
	return crops, rows.Err()
}

func (r *cropRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM crops WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete crop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cropRepository) MapByNames(ctx context.Context, q Querier, names []string) (map[string]domain.Crop, error) {
	out := make(map[string]domain.Crop, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT `+cropColumns+` FROM crops WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to look up crops by name: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		crop, err := scanCrop(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crop: %w", err)
		}
		out[crop.Name] = crop
	}
	return out, rows.Err()
}

func (r *cropRepository) InsertBulk(ctx context.Context, q Querier, crops []domain.Crop) ([]domain.Crop, error) {
	var created []domain.Crop
	for _, crop := range crops {
		row := q.QueryRow(ctx, `
			INSERT INTO crops (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
			RETURNING `+cropColumns,
			crop.Name,
		)
		inserted, err := scanCrop(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to insert crop %q: %w", crop.Name, err)
		}
		created = append(created, inserted)
	}
	return created, nil
}
