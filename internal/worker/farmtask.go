package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/ingestion"
	"github.com/agrifield/backend/internal/progress"
	"github.com/agrifield/backend/internal/queue"
)

// FarmTaskWorker drains the upload queue one batch job at a time and
// advances the upload's progress snapshot after each batch. It is the
// only writer of a snapshot once validation has finished.
type FarmTaskWorker struct {
	queue        queue.Queue
	store        progress.Store
	reconciler   *Reconciler
	uploadDir    string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewFarmTaskWorker wires the batch consumer.
func NewFarmTaskWorker(
	q queue.Queue,
	store progress.Store,
	reconciler *Reconciler,
	uploadDir string,
	pollInterval time.Duration,
	logger *zap.Logger,
) *FarmTaskWorker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &FarmTaskWorker{
		queue:        q,
		store:        store,
		reconciler:   reconciler,
		uploadDir:    uploadDir,
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("component", "farm_task_worker")),
	}
}

// Run polls the queue until the context is canceled.
func (w *FarmTaskWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *FarmTaskWorker) drain(ctx context.Context) {
	for {
		job, err := w.queue.Claim(ctx)
		if err != nil {
			w.logger.Error("failed to claim batch job", zap.Error(err))
			return
		}
		if job == nil {
			return
		}
		w.Handle(ctx, job)
	}
}

// Handle processes a single claimed batch job. Bad payloads and
// non-transient failures consume the job; transient failures park it
// on the dead list for redelivery.
func (w *FarmTaskWorker) Handle(ctx context.Context, job *queue.Job) {
	var batch ingestion.BatchJob
	if err := json.Unmarshal(job.Payload, &batch); err != nil {
		w.logger.Error("failed to decode batch job", zap.String("job_id", job.ID), zap.Error(err))
		if err := w.queue.Fail(ctx, job, err.Error()); err != nil {
			w.logger.Error("failed to fail batch job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	if err := w.process(ctx, batch); err != nil {
		w.removeArtifact(batch.UploadID)
		if IsTransient(err) {
			w.logger.Warn("transient batch failure, parking job",
				zap.String("upload_id", batch.UploadID), zap.Error(err))
			if err := w.queue.Fail(ctx, job, err.Error()); err != nil {
				w.logger.Error("failed to park batch job", zap.String("job_id", job.ID), zap.Error(err))
			}
			return
		}
		w.logger.Error("batch failed", zap.String("upload_id", batch.UploadID), zap.Error(err))
	}

	if err := w.queue.Complete(ctx, job); err != nil {
		w.logger.Error("failed to complete batch job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (w *FarmTaskWorker) process(ctx context.Context, batch ingestion.BatchJob) error {
	snap, _, err := w.store.Get(ctx, batch.UploadID)
	if err != nil {
		return fmt.Errorf("failed to read progress for upload %s: %w", batch.UploadID, err)
	}

	applied := len(batch.Data)
	if err := w.reconciler.Apply(ctx, batch.Data, snap, batch.UserRoles); err != nil {
		if IsTransient(err) {
			return err
		}
		// The batch failed as a whole; salvage what we can by
		// applying rows one at a time. Row-level failures are
		// logged and swallowed, and only rows that landed count
		// toward progress.
		w.logger.Error("batch apply failed, retrying rows singularly",
			zap.String("upload_id", batch.UploadID),
			zap.Int("rows", len(batch.Data)),
			zap.Error(err),
		)
		applied = 0
		for i, rec := range batch.Data {
			if err := w.reconciler.Apply(ctx, batch.Data[i:i+1], snap, batch.UserRoles); err != nil {
				if IsTransient(err) {
					return err
				}
				w.logger.Error("row apply failed",
					zap.String("upload_id", batch.UploadID),
					zap.String("farm", rec.Get(domain.FieldFarm)),
					zap.Error(err),
				)
				continue
			}
			applied++
		}
	}

	if batch.TotalRecords > 0 {
		snap.Progress += round2(float64(applied) / float64(batch.TotalRecords) * 100)
	}
	snap.RowProgressed += applied
	snap.Errors = batch.Errors
	if err := w.store.Set(ctx, batch.UploadID, snap); err != nil {
		return fmt.Errorf("failed to store progress for upload %s: %w", batch.UploadID, err)
	}

	if snap.RowProgressed >= batch.TotalRecords {
		snap.Progress = 100
		if err := w.store.Set(ctx, batch.UploadID, snap); err != nil {
			return fmt.Errorf("failed to finalize progress for upload %s: %w", batch.UploadID, err)
		}
		w.removeArtifact(batch.UploadID)
		w.logger.Info("upload drained",
			zap.String("upload_id", batch.UploadID),
			zap.Int("rows", batch.TotalRecords),
		)
	}
	return nil
}

func (w *FarmTaskWorker) removeArtifact(uploadID string) {
	path := ingestion.ArtifactPath(w.uploadDir, uploadID)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("failed to remove validated records file",
			zap.String("upload_id", uploadID), zap.Error(err))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
