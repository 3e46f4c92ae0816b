package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisQueue stores jobs in three Redis keys per queue name: a waiting
// list, an active hash keyed by job ID, and a dead list for failures.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue creates a Redis-backed queue under the given name.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

func (q *RedisQueue) waitingKey() string { return "queue:" + q.name + ":waiting" }
func (q *RedisQueue) activeKey() string  { return "queue:" + q.name + ":active" }
func (q *RedisQueue) deadKey() string    { return "queue:" + q.name + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, payload any) (string, error) {
	job, err := newJob(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.waitingKey(), data).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

func (q *RedisQueue) Claim(ctx context.Context) (*Job, error) {
	data, err := q.client.RPop(ctx, q.waitingKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if err := q.client.HSet(ctx, q.activeKey(), job.ID, data).Err(); err != nil {
		return nil, fmt.Errorf("failed to mark job active: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	if err := q.client.HDel(ctx, q.activeKey(), job.ID).Err(); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, job *Job, reason string) error {
	entry, err := json.Marshal(struct {
		Job    *Job   `json:"job"`
		Reason string `json:"reason"`
	}{job, reason})
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.activeKey(), job.ID)
	pipe.LPush(ctx, q.deadKey(), entry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.waitingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return n, nil
}
