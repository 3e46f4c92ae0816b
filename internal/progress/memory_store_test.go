package progress

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/agrifield/backend/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	uploadID := uuid.NewString()

	if _, ok, err := store.Get(ctx, uploadID); ok || err != nil {
		t.Fatalf("expected missing snapshot, ok=%v err=%v", ok, err)
	}

	snap := domain.ProgressSnapshot{
		Progress:      42.5,
		RowProgressed: 10,
		UserID:        uuid.New(),
		FileName:      "tasks.csv",
	}
	if err := store.Set(ctx, uploadID, snap); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := store.Get(ctx, uploadID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Progress != 42.5 || got.FileName != "tasks.csv" {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	if err := store.Delete(ctx, uploadID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, uploadID); ok {
		t.Fatalf("expected snapshot deleted")
	}
}
