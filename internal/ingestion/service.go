package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/progress"
)

// ObjectUploader copies the raw uploaded file to object storage.
type ObjectUploader interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) error
}

// UploadOutcome carries everything the notifier needs to report an
// upload back to its owner.
type UploadOutcome struct {
	UserID   uuid.UUID
	FileName string
	Errors   []domain.RowError
	Records  []domain.RawRecord
	Headers  []string
}

// Notifier reports a finished intake (not the drained batches) to the
// uploading user.
type Notifier interface {
	NotifyUploadOutcome(ctx context.Context, outcome UploadOutcome) error
}

// Service orchestrates an upload end to end: structural checks, object
// storage copy, record validation, batch production and notification.
type Service struct {
	validator *RecordValidator
	producer  *Producer
	store     progress.Store
	uploader  ObjectUploader
	notifier  Notifier
	batchSize int
	logger    *zap.Logger
}

// NewService creates the upload service.
func NewService(
	validator *RecordValidator,
	producer *Producer,
	store progress.Store,
	uploader ObjectUploader,
	notifier Notifier,
	batchSize int,
	logger *zap.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		validator: validator,
		producer:  producer,
		store:     store,
		uploader:  uploader,
		notifier:  notifier,
		batchSize: batchSize,
		logger:    logger.With(zap.String("component", "upload_service")),
	}
}

// UploadInput is one incoming spreadsheet plus its uploader identity.
type UploadInput struct {
	FileName    string
	ContentType string
	Data        []byte
	UserID      uuid.UUID
	Username    string
	Roles       []string
}

// Upload validates and stages a spreadsheet, returning the upload ID
// clients poll for progress. Batches drain asynchronously; the mail
// notification is fire-and-forget.
func (s *Service) Upload(ctx context.Context, in UploadInput) (string, error) {
	format, err := DetectFormat(in.FileName, in.ContentType)
	if err != nil {
		return "", err
	}

	headers, err := ParseHeaders(in.Data, format)
	if err != nil {
		return "", err
	}
	if err := ValidateColumns(headers); err != nil {
		return "", err
	}

	records, err := ParseRecords(in.Data, format, s.batchSize, false)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrEmptyFile
	}

	objectName := fmt.Sprintf("uploads/%s_%s-%s", in.Username, time.Now().Format("2006-01-02_15-04-05"), in.FileName)
	if err := s.uploader.Upload(ctx, objectName, in.Data, in.ContentType); err != nil {
		return "", fmt.Errorf("failed to store uploaded file: %w", err)
	}

	uploadID := uuid.NewString()
	if err := s.store.Set(ctx, uploadID, domain.ProgressSnapshot{
		Progress:      0,
		Errors:        []domain.RowError{},
		RowProgressed: 0,
		UserID:        in.UserID,
		FileName:      in.FileName,
	}); err != nil {
		return "", err
	}

	for i, record := range records {
		records[i] = domain.RedactForRole(record, in.Roles)
	}

	result, err := s.validator.Validate(ctx, records, uploadID)
	if err != nil {
		return "", err
	}

	if !result.FullFileInvalid {
		if err := s.producer.EnqueueFromArtifact(ctx, uploadID, result.Errors, len(records), in.Roles); err != nil {
			return "", err
		}
	}

	if s.notifier != nil {
		outcome := UploadOutcome{
			UserID:   in.UserID,
			FileName: in.FileName,
			Errors:   result.Errors,
			Records:  records,
			Headers:  headers,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notifier.NotifyUploadOutcome(ctx, outcome); err != nil {
				s.logger.Error("failed to send upload notification",
					zap.String("upload_id", uploadID), zap.Error(err))
			}
		}()
	}

	return uploadID, nil
}

// Status reports upload progress. An unknown or expired upload ID
// reads as finished; callers needing a durable terminal state must
// track it outside the snapshot TTL.
func (s *Service) Status(ctx context.Context, uploadID string) (domain.UploadStatus, error) {
	snap, ok, err := s.store.Get(ctx, uploadID)
	if err != nil {
		return domain.UploadStatus{}, err
	}
	if !ok {
		return domain.UploadStatus{
			UploadID:   uploadID,
			Percentage: 100,
			Status:     domain.UploadStatusComplete,
		}, nil
	}

	if len(snap.Errors) > 0 {
		return domain.UploadStatus{
			UploadID:   uploadID,
			Percentage: snap.Progress,
			Status:     domain.UploadStatusFailed,
			Errors:     GroupRowErrors(snap.Errors),
		}, nil
	}

	status := domain.UploadStatusInProgress
	if snap.Progress == 100 {
		status = domain.UploadStatusComplete
	}
	return domain.UploadStatus{
		UploadID:   uploadID,
		Percentage: snap.Progress,
		Status:     status,
	}, nil
}
