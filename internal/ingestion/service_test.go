package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/progress"
	"github.com/agrifield/backend/internal/queue"
)

func newTestService(t *testing.T, q queue.Queue, store progress.Store, uploader ObjectUploader) *Service {
	t.Helper()
	farms, crops, users := testRepos()
	dir := t.TempDir()
	validator := NewRecordValidator(farms, crops, users, nil, store, dir, zap.NewNop())
	producer := NewProducer(q, dir, 2, zap.NewNop())
	return NewService(validator, producer, store, uploader, nil, 2, zap.NewNop())
}

func uploadInput(data string) UploadInput {
	return UploadInput{
		FileName:    "tasks.csv",
		ContentType: "text/csv",
		Data:        []byte(data),
		UserID:      uuid.New(),
		Username:    "planner1",
		Roles:       []string{"admin"},
	}
}

func TestUploadEnqueuesBatches(t *testing.T) {
	q := queue.NewMemoryQueue()
	store := progress.NewMemoryStore()
	uploader := &stubUploader{}
	service := newTestService(t, q, store, uploader)

	data := strings.Join([]string{
		"Category,Farm,Crop,Assigned Field User,Field User Id,Assigned Date,Details,Special Instructions,Priority",
		"Sowing,Green Acres,Wheat,John Doe,jdoe,12/31/2030,Sow east field,,critical",
		"Weeding,Green Acres,Wheat,John Doe,jdoe,12/31/2030,,,normal",
		"Irrigation,Green Acres,Wheat,John Doe,jdoe,12/31/2030,,,moderate",
	}, "\n")

	uploadID, err := service.Upload(context.Background(), uploadInput(data))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if uploadID == "" {
		t.Fatalf("expected an upload id")
	}

	if len(uploader.objects) != 1 {
		t.Fatalf("expected raw file copied to object storage, got %d objects", len(uploader.objects))
	}
	for name := range uploader.objects {
		if !strings.HasPrefix(name, "uploads/planner1_") {
			t.Fatalf("unexpected object name %q", name)
		}
	}

	// 3 valid rows with batch size 2 means 2 jobs.
	pending, err := q.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if pending != 2 {
		t.Fatalf("expected 2 queued batches, got %d", pending)
	}

	snap, ok, _ := store.Get(context.Background(), uploadID)
	if !ok {
		t.Fatalf("expected a progress snapshot")
	}
	if snap.FileName != "tasks.csv" {
		t.Fatalf("unexpected snapshot file name %q", snap.FileName)
	}
}

func TestUploadRedactsRestrictedRoles(t *testing.T) {
	q := queue.NewMemoryQueue()
	store := progress.NewMemoryStore()
	service := newTestService(t, q, store, &stubUploader{})

	data := strings.Join([]string{
		"Category,Farm,Crop,Assigned Field User,Field User Id,Assigned Date,Details,Special Instructions,Priority,Farm Address,Plot",
		"Sowing,Green Acres,Wheat,John Doe,jdoe,12/31/2030,,,normal,12 Ridge Road,A7",
	}, "\n")

	in := uploadInput(data)
	in.Roles = []string{domain.RolePlanner}
	if _, err := service.Upload(context.Background(), in); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	job, err := q.Claim(context.Background())
	if err != nil || job == nil {
		t.Fatalf("expected a queued batch, err=%v", err)
	}
	if strings.Contains(string(job.Payload), "Ridge Road") {
		t.Fatalf("expected farm profile columns redacted for planner role")
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	service := newTestService(t, queue.NewMemoryQueue(), progress.NewMemoryStore(), &stubUploader{})
	data := "Category,Farm,Crop,Assigned Field User,Field User Id,Assigned Date,Details,Special Instructions,Priority\n"
	if _, err := service.Upload(context.Background(), uploadInput(data)); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestUploadRejectsBadColumns(t *testing.T) {
	service := newTestService(t, queue.NewMemoryQueue(), progress.NewMemoryStore(), &stubUploader{})
	data := "Category,Farm\nSowing,Green Acres\n"
	_, err := service.Upload(context.Background(), uploadInput(data))
	var colErr *ColumnError
	if !errors.As(err, &colErr) {
		t.Fatalf("expected ColumnError, got %v", err)
	}
}

func TestUploadFullFileInvalidSkipsQueue(t *testing.T) {
	q := queue.NewMemoryQueue()
	service := newTestService(t, q, progress.NewMemoryStore(), &stubUploader{})

	data := strings.Join([]string{
		"Category,Farm,Crop,Assigned Field User,Field User Id,Assigned Date,Details,Special Instructions,Priority",
		"Sowing,Nowhere Farm,Wheat,John Doe,jdoe,12/31/2030,,,normal",
	}, "\n")

	if _, err := service.Upload(context.Background(), uploadInput(data)); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	pending, _ := q.Pending(context.Background())
	if pending != 0 {
		t.Fatalf("expected no batches for a fully invalid file, got %d", pending)
	}
}

func TestStatusUnknownUploadReadsComplete(t *testing.T) {
	service := newTestService(t, queue.NewMemoryQueue(), progress.NewMemoryStore(), &stubUploader{})
	status, err := service.Status(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Percentage != 100 || status.Status != domain.UploadStatusComplete {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatusReportsGroupedErrors(t *testing.T) {
	store := progress.NewMemoryStore()
	service := newTestService(t, queue.NewMemoryQueue(), store, &stubUploader{})

	uploadID := uuid.NewString()
	_ = store.Set(context.Background(), uploadID, domain.ProgressSnapshot{
		Progress: 50,
		Errors: []domain.RowError{
			{Row: 2, Errors: []string{"Farm doesn't exist at row 2"}},
			{Row: 2, Errors: []string{"Farm doesn't exist"}},
		},
	})

	status, err := service.Status(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Status != domain.UploadStatusFailed {
		t.Fatalf("expected failed status, got %q", status.Status)
	}
	if len(status.Errors) != 1 || status.Errors[0].Row != 2 {
		t.Fatalf("expected one grouped entry for row 2, got %v", status.Errors)
	}
	msgs := status.Errors[0].Errors
	if len(msgs) != 1 || msgs[0] != "Farm doesn't exist" {
		t.Fatalf("unexpected grouped errors: %v", status.Errors)
	}
}

func TestStatusInProgress(t *testing.T) {
	store := progress.NewMemoryStore()
	service := newTestService(t, queue.NewMemoryQueue(), store, &stubUploader{})

	uploadID := uuid.NewString()
	_ = store.Set(context.Background(), uploadID, domain.ProgressSnapshot{Progress: 40})

	status, err := service.Status(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Status != domain.UploadStatusInProgress || status.Percentage != 40 {
		t.Fatalf("unexpected status: %+v", status)
	}
}
