package repository

import (
	"context"
	"fmt"

	"github.com/agrifield/backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type eventLogRepository struct {
	pool *pgxpool.Pool
}

// NewEventLogRepository creates a PostgreSQL-backed event log repository
func NewEventLogRepository(pool *pgxpool.Pool) EventLogRepository {
	return &eventLogRepository{pool: pool}
}

func (r *eventLogRepository) Insert(ctx context.Context, entry domain.EventLogEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (user_id, type, api_endpoint, api_method, resource, resource_id, payload, old_data, new_data, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.UserID, entry.Type, entry.APIEndpoint, entry.APIMethod,
		nullable(entry.Resource), entry.ResourceID,
		rawOrNil(entry.Payload), rawOrNil(entry.OldData), rawOrNil(entry.NewData), rawOrNil(entry.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event log: %w", err)
	}
	return nil
}

func (r *eventLogRepository) InsertBulk(ctx context.Context, entries []domain.EventLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
			INSERT INTO event_logs (user_id, type, api_endpoint, api_method, resource, resource_id, payload, old_data, new_data, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			entry.UserID, entry.Type, entry.APIEndpoint, entry.APIMethod,
			nullable(entry.Resource), entry.ResourceID,
			rawOrNil(entry.Payload), rawOrNil(entry.OldData), rawOrNil(entry.NewData), rawOrNil(entry.Error),
		)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert event log batch: %w", err)
		}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
