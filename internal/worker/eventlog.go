package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/queue"
	"github.com/agrifield/backend/internal/repository"
)

// Pinger probes database health. *db.Connection satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventLogWorker drains queued audit entries into the event_logs
// table. It drains on two triggers: a short probe that fires once the
// backlog reaches the batch limit, and a slower flush that empties
// whatever accumulated in between.
type EventLogWorker struct {
	queue         queue.Queue
	repo          repository.EventLogRepository
	db            Pinger
	batchLimit    int
	flushInterval time.Duration
	probeInterval time.Duration
	maxAttempts   int
	draining      atomic.Bool
	logger        *zap.Logger
}

// NewEventLogWorker wires the event-log consumer.
func NewEventLogWorker(
	q queue.Queue,
	repo repository.EventLogRepository,
	db Pinger,
	batchLimit int,
	flushInterval time.Duration,
	logger *zap.Logger,
) *EventLogWorker {
	if batchLimit <= 0 {
		batchLimit = 50
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Minute
	}
	return &EventLogWorker{
		queue:         q,
		repo:          repo,
		db:            db,
		batchLimit:    batchLimit,
		flushInterval: flushInterval,
		probeInterval: time.Second,
		maxAttempts:   3,
		logger:        logger.With(zap.String("component", "event_log_worker")),
	}
}

// Run probes and flushes until the context is canceled. A final drain
// runs on shutdown so accepted entries are not stranded in Redis.
func (w *EventLogWorker) Run(ctx context.Context) {
	probe := time.NewTicker(w.probeInterval)
	defer probe.Stop()
	flush := time.NewTicker(w.flushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			w.Drain(drainCtx)
			cancel()
			return
		case <-probe.C:
			pending, err := w.queue.Pending(ctx)
			if err != nil {
				w.logger.Error("failed to count pending event logs", zap.Error(err))
				continue
			}
			if pending >= int64(w.batchLimit) {
				w.Drain(ctx)
			}
		case <-flush.C:
			w.Drain(ctx)
		}
	}
}

// Drain empties the queue into the database. Only one drain runs at a
// time; concurrent calls return immediately. A cycle that errors is
// re-driven up to maxAttempts times before giving up until the next
// trigger.
func (w *EventLogWorker) Drain(ctx context.Context) {
	if !w.draining.CompareAndSwap(false, true) {
		return
	}
	defer w.draining.Store(false)

	if err := w.db.Ping(ctx); err != nil {
		w.logger.Error("database unavailable, skipping event log drain", zap.Error(err))
		return
	}

	total := 0
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		n, err := w.cycle(ctx)
		total += n
		if err == nil {
			break
		}
		w.logger.Error("event log drain cycle failed",
			zap.Int("attempt", attempt), zap.Error(err))
	}
	if total > 0 {
		w.logger.Info("event logs persisted", zap.Int("count", total))
	}
}

// cycle claims jobs until the queue is empty, inserting them in
// batches of batchLimit. A claim error fails the jobs accumulated so
// far; they are already off the waiting list and would otherwise leak.
func (w *EventLogWorker) cycle(ctx context.Context) (int, error) {
	processed := 0
	batch := make([]*queue.Job, 0, w.batchLimit)

	flush := func() {
		processed += w.processBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		job, err := w.queue.Claim(ctx)
		if err != nil {
			for _, j := range batch {
				if failErr := w.queue.Fail(ctx, j, err.Error()); failErr != nil {
					w.logger.Error("failed to park event log job",
						zap.String("job_id", j.ID), zap.Error(failErr))
				}
			}
			return processed, err
		}
		if job == nil {
			break
		}
		batch = append(batch, job)
		if len(batch) >= w.batchLimit {
			flush()
		}
	}
	if len(batch) > 0 {
		flush()
	}
	return processed, nil
}

// processBatch bulk-inserts the claimed jobs, falling back to singular
// inserts when the bulk write fails so one bad entry does not sink the
// rest. Returns the number of entries persisted.
func (w *EventLogWorker) processBatch(ctx context.Context, jobs []*queue.Job) int {
	type decoded struct {
		job   *queue.Job
		entry domain.EventLogEntry
	}
	valid := make([]decoded, 0, len(jobs))
	for _, job := range jobs {
		var entry domain.EventLogEntry
		if err := json.Unmarshal(job.Payload, &entry); err != nil {
			w.logger.Error("failed to decode event log job",
				zap.String("job_id", job.ID), zap.Error(err))
			if failErr := w.queue.Fail(ctx, job, err.Error()); failErr != nil {
				w.logger.Error("failed to fail event log job",
					zap.String("job_id", job.ID), zap.Error(failErr))
			}
			continue
		}
		valid = append(valid, decoded{job: job, entry: entry})
	}
	if len(valid) == 0 {
		return 0
	}

	entries := make([]domain.EventLogEntry, len(valid))
	for i, d := range valid {
		entries[i] = d.entry
	}

	bulkErr := w.repo.InsertBulk(ctx, entries)
	if bulkErr == nil {
		completed := 0
		for _, d := range valid {
			if err := w.queue.Complete(ctx, d.job); err != nil {
				w.logger.Error("failed to complete event log job",
					zap.String("job_id", d.job.ID), zap.Error(err))
				continue
			}
			completed++
		}
		return completed
	}
	w.logger.Error("bulk event log insert failed, inserting singularly",
		zap.Int("count", len(valid)), zap.Error(bulkErr))

	completed := 0
	for _, d := range valid {
		if err := w.repo.Insert(ctx, d.entry); err != nil {
			w.logger.Error("failed to insert event log entry",
				zap.String("job_id", d.job.ID), zap.Error(err))
			if failErr := w.queue.Fail(ctx, d.job, err.Error()); failErr != nil {
				w.logger.Error("failed to fail event log job",
					zap.String("job_id", d.job.ID), zap.Error(failErr))
			}
			continue
		}
		if err := w.queue.Complete(ctx, d.job); err != nil {
			w.logger.Error("failed to complete event log job",
				zap.String("job_id", d.job.ID), zap.Error(err))
			continue
		}
		completed++
	}
	return completed
}
