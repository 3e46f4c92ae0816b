package ingestion

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/queue"
)

// BatchJob is the payload of one queued micro-batch of validated rows.
// Errors and TotalRecords ride along so the consumer can rebuild the
// progress snapshot without another lookup.
type BatchJob struct {
	Data         []domain.RawRecord `json:"data"`
	UploadID     string             `json:"uploadId"`
	Errors       []domain.RowError  `json:"errors"`
	TotalRecords int                `json:"totalRecords"`
	UserRoles    []string           `json:"userRole"`
}

// Producer splits the validated-records artifact into batch jobs.
type Producer struct {
	queue     queue.Queue
	uploadDir string
	batchSize int
	logger    *zap.Logger
}

// NewProducer wires a batch job producer.
func NewProducer(q queue.Queue, uploadDir string, batchSize int, logger *zap.Logger) *Producer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Producer{
		queue:     q,
		uploadDir: uploadDir,
		batchSize: batchSize,
		logger:    logger.With(zap.String("component", "batch_producer")),
	}
}

// EnqueueFromArtifact re-reads the validated-records file for the
// upload, deduplicates it with the local row key, and enqueues one job
// per batch of rows.
func (p *Producer) EnqueueFromArtifact(ctx context.Context, uploadID string, errs []domain.RowError, totalRecords int, roles []string) error {
	data, err := os.ReadFile(ArtifactPath(p.uploadDir, uploadID))
	if err != nil {
		return fmt.Errorf("failed to read validated records for upload %s: %w", uploadID, err)
	}

	records, err := ParseRecords(data, FormatCSV, p.batchSize, true)
	if err != nil {
		return fmt.Errorf("failed to parse validated records for upload %s: %w", uploadID, err)
	}

	for start := 0; start < len(records); start += p.batchSize {
		end := start + p.batchSize
		if end > len(records) {
			end = len(records)
		}
		job := BatchJob{
			Data:         records[start:end],
			UploadID:     uploadID,
			Errors:       errs,
			TotalRecords: totalRecords,
			UserRoles:    roles,
		}
		if _, err := p.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue batch for upload %s: %w", uploadID, err)
		}
	}

	p.logger.Info("batches enqueued",
		zap.String("upload_id", uploadID),
		zap.Int("rows", len(records)),
		zap.Int("batch_size", p.batchSize),
	)
	return nil
}
