package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agrifield/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type farmCropRepository struct {
	pool *pgxpool.Pool
}

// NewFarmCropRepository creates a PostgreSQL-backed farm-crop repository
func NewFarmCropRepository(pool *pgxpool.Pool) FarmCropRepository {
	return &farmCropRepository{pool: pool}
}

func (r *farmCropRepository) ExistingPairs(ctx context.Context, q Querier, pairs []domain.FarmCrop) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(pairs) == 0 {
		return out, nil
	}

	conds := make([]string, 0, len(pairs))
	args := make([]any, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, p.FarmID, p.CropID)
		conds = append(conds, fmt.Sprintf("(farm_id = $%d AND crop_id = $%d)", len(args)-1, len(args)))
	}

	rows, err := q.Query(ctx,
		"SELECT farm_id, crop_id FROM farms_crops WHERE "+strings.Join(conds, " OR "),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up farm crops: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var farmID, cropID uuid.UUID
		if err := rows.Scan(&farmID, &cropID); err != nil {
			return nil, fmt.Errorf("failed to scan farm crop: %w", err)
		}
		out[PairKey(farmID, cropID)] = struct{}{}
	}
	return out, rows.Err()
}

func (r *farmCropRepository) InsertBulk(ctx context.Context, q Querier, pairs []domain.FarmCrop) ([]domain.FarmCrop, error) {
	var created []domain.FarmCrop
	for _, p := range pairs {
		row := q.QueryRow(ctx, `
			INSERT INTO farms_crops (farm_id, crop_id) VALUES ($1, $2)
			ON CONFLICT (farm_id, crop_id) DO NOTHING
			RETURNING id, farm_id, crop_id`,
			p.FarmID, p.CropID,
		)
		var fc domain.FarmCrop
		if err := row.Scan(&fc.ID, &fc.FarmID, &fc.CropID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to insert farm crop: %w", err)
		}
		created = append(created, fc)
	}
	return created, nil
}

func (r *farmCropRepository) FindOrCreate(ctx context.Context, q Querier, farmID, cropID uuid.UUID) (domain.FarmCrop, bool, error) {
	var fc domain.FarmCrop
	err := q.QueryRow(ctx,
		`SELECT id, farm_id, crop_id FROM farms_crops WHERE farm_id = $1 AND crop_id = $2`,
		farmID, cropID,
	).Scan(&fc.ID, &fc.FarmID, &fc.CropID)
	if err == nil {
		return fc, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.FarmCrop{}, false, fmt.Errorf("failed to look up farm crop: %w", err)
	}

	err = q.QueryRow(ctx,
		`INSERT INTO farms_crops (farm_id, crop_id) VALUES ($1, $2) RETURNING id, farm_id, crop_id`,
		farmID, cropID,
	).Scan(&fc.ID, &fc.FarmID, &fc.CropID)
	if err != nil {
		return domain.FarmCrop{}, false, fmt.Errorf("failed to create farm crop: %w", err)
	}
	return fc, true, nil
}
