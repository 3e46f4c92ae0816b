package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue for tests and local runs.
type MemoryQueue struct {
	mu      sync.Mutex
	waiting []*Job
	active  map[string]*Job
	dead    []*Job
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{active: make(map[string]*Job)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, payload any) (string, error) {
	job, err := newJob(payload)
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.waiting = append(q.waiting, job)
	return job.ID, nil
}

func (q *MemoryQueue) Claim(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return nil, nil
	}
	job := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.active[job.ID] = job
	return job, nil
}

func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, job.ID)
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job *Job, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, job.ID)
	q.dead = append(q.dead, job)
	return nil
}

func (q *MemoryQueue) Pending(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.waiting)), nil
}

// Dead returns the jobs that failed, oldest first.
func (q *MemoryQueue) Dead() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out
}
