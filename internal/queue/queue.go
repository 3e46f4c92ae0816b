// Package queue provides the durable job queues the upload pipeline
// and the event log run on: a Redis implementation for production and
// an in-memory one for tests. Both are FIFO with single-consumer
// claim/complete/fail semantics.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is one queued unit of work.
type Job struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue is a FIFO job queue. Claim hands out the oldest waiting job
// and parks it until the consumer calls Complete or Fail; a failed job
// moves to the dead list, it is not retried by the queue itself.
type Queue interface {
	// Enqueue marshals payload and appends it to the waiting list.
	Enqueue(ctx context.Context, payload any) (string, error)
	// Claim pops the oldest waiting job, or returns nil when empty.
	Claim(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, reason string) error
	// Pending returns the number of waiting jobs.
	Pending(ctx context.Context) (int64, error)
}

func newJob(payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:         uuid.NewString(),
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}
