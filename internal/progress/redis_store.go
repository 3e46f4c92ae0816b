package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrifield/backend/internal/domain"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed progress store. Every write
// refreshes the TTL so snapshots outlive slow uploads but expire once
// the pipeline goes quiet.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func key(uploadID string) string {
	return "upload:progress:" + uploadID
}

func (s *redisStore) Set(ctx context.Context, uploadID string, snap domain.ProgressSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}
	if err := s.client.Set(ctx, key(uploadID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store progress snapshot: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, uploadID string) (domain.ProgressSnapshot, bool, error) {
	data, err := s.client.Get(ctx, key(uploadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ProgressSnapshot{}, false, nil
		}
		return domain.ProgressSnapshot{}, false, fmt.Errorf("failed to read progress snapshot: %w", err)
	}
	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.ProgressSnapshot{}, false, fmt.Errorf("failed to unmarshal progress snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *redisStore) Delete(ctx context.Context, uploadID string) error {
	if err := s.client.Del(ctx, key(uploadID)).Err(); err != nil {
		return fmt.Errorf("failed to delete progress snapshot: %w", err)
	}
	return nil
}
