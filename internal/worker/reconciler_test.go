package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/eventlog"
	"github.com/agrifield/backend/internal/queue"
	"github.com/agrifield/backend/internal/repository"
)

type reconcilerFixture struct {
	tx         *fakeTxRunner
	farms      *fakeFarmRepo
	crops      *fakeCropRepo
	tasks      *fakeTaskRepo
	users      *fakeUserRepo
	farmTasks  *fakeFarmTaskRepo
	farmCrops  *fakeFarmCropRepo
	eventQueue *queue.MemoryQueue
	reconciler *Reconciler
}

func newReconcilerFixture() *reconcilerFixture {
	name := "John Doe"
	f := &reconcilerFixture{
		tx: &fakeTxRunner{},
		farms: &fakeFarmRepo{farms: map[string]domain.Farm{
			"Green Acres": {ID: uuid.New(), Name: "Green Acres"},
		}},
		crops: &fakeCropRepo{crops: map[string]domain.Crop{
			"Wheat": {ID: uuid.New(), Name: "Wheat"},
		}},
		tasks: &fakeTaskRepo{tasks: map[string]domain.Task{
			"Sowing": {ID: uuid.New(), Name: "Sowing"},
		}},
		users: &fakeUserRepo{users: map[string]domain.User{
			"jdoe": {ID: uuid.New(), Username: "jdoe", Name: &name},
		}},
		farmTasks:  &fakeFarmTaskRepo{duplicates: map[string]domain.FarmTask{}},
		farmCrops:  &fakeFarmCropRepo{},
		eventQueue: queue.NewMemoryQueue(),
	}
	events := eventlog.NewProducer(f.eventQueue, false, zap.NewNop())
	f.reconciler = NewReconciler(f.tx, f.farms, f.crops, f.tasks, f.users, f.farmTasks, f.farmCrops, events, zap.NewNop())
	return f
}

func batchRecord() domain.RawRecord {
	return domain.RawRecord{
		domain.FieldTask:              "Sowing",
		domain.FieldFarm:              "Green Acres",
		domain.FieldCrop:              "Wheat",
		domain.FieldAssignedFieldUser: "John Doe",
		domain.FieldUsername:          "jdoe",
		domain.FieldAssignedDate:      "12/31/2030",
		domain.FieldInstructions:      "Sow the east field",
		domain.FieldPriority:          "critical",
	}
}

func testSnapshot() domain.ProgressSnapshot {
	return domain.ProgressSnapshot{UserID: uuid.New(), FileName: "tasks.csv"}
}

func TestApplyInsertsFarmTaskAndPair(t *testing.T) {
	f := newReconcilerFixture()
	snap := testSnapshot()

	err := f.reconciler.Apply(context.Background(), []domain.RawRecord{batchRecord()}, snap, []string{"admin"})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if len(f.farmTasks.inserted) != 1 {
		t.Fatalf("expected 1 farm task inserted, got %d", len(f.farmTasks.inserted))
	}
	task := f.farmTasks.inserted[0]
	if task.Priority != domain.PriorityCritical {
		t.Fatalf("expected critical priority, got %s", task.Priority)
	}
	if task.TaskStatus != domain.TaskStatusNotStarted {
		t.Fatalf("expected not_started task status, got %s", task.TaskStatus)
	}
	if task.CreatedBy == nil || *task.CreatedBy != snap.UserID {
		t.Fatalf("expected created_by set to uploader")
	}
	if task.AssignedAt == nil || task.AssignedAt.Year() != 2030 {
		t.Fatalf("expected assigned date parsed, got %v", task.AssignedAt)
	}

	if len(f.farmCrops.inserted) != 1 {
		t.Fatalf("expected 1 farm-crop pair inserted, got %d", len(f.farmCrops.inserted))
	}

	// One commit, then audit entries for the tasks and the pair.
	pending, _ := f.eventQueue.Pending(context.Background())
	if pending != 2 {
		t.Fatalf("expected 2 audit entries, got %d", pending)
	}
}

func TestApplyCreatesMissingEntities(t *testing.T) {
	f := newReconcilerFixture()

	rec := batchRecord()
	rec[domain.FieldFarm] = "New Horizon"
	rec[domain.FieldCrop] = "Rice"
	rec[domain.FieldFarmAddress] = "12 Ridge Road"

	if err := f.reconciler.Apply(context.Background(), []domain.RawRecord{rec}, testSnapshot(), []string{"admin"}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if len(f.farms.inserted) != 1 || f.farms.inserted[0].Name != "New Horizon" {
		t.Fatalf("expected New Horizon inserted, got %v", f.farms.inserted)
	}
	if f.farms.inserted[0].Address == nil || *f.farms.inserted[0].Address != "12 Ridge Road" {
		t.Fatalf("expected farm address staged, got %v", f.farms.inserted[0].Address)
	}
	if len(f.crops.inserted) != 1 || f.crops.inserted[0].Name != "Rice" {
		t.Fatalf("expected Rice inserted, got %v", f.crops.inserted)
	}
}

func TestApplyRestrictedRoleCreatesNameOnlyFarms(t *testing.T) {
	f := newReconcilerFixture()

	rec := batchRecord()
	rec[domain.FieldFarm] = "New Horizon"
	rec[domain.FieldFarmAddress] = "12 Ridge Road"

	err := f.reconciler.Apply(context.Background(), []domain.RawRecord{rec}, testSnapshot(), []string{domain.RolePlanner})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if len(f.farms.inserted) != 1 {
		t.Fatalf("expected 1 farm inserted, got %d", len(f.farms.inserted))
	}
	if f.farms.inserted[0].Address != nil {
		t.Fatalf("expected restricted role to stage name-only farms")
	}
	if len(f.farms.updated) != 0 {
		t.Fatalf("expected no profile updates for restricted role, got %d", len(f.farms.updated))
	}
}

func TestApplyRefreshesExistingFarmProfile(t *testing.T) {
	f := newReconcilerFixture()

	rec := batchRecord()
	rec[domain.FieldFarmAddress] = "99 Valley Lane"

	if err := f.reconciler.Apply(context.Background(), []domain.RawRecord{rec}, testSnapshot(), []string{"admin"}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if len(f.farms.updated) != 1 {
		t.Fatalf("expected 1 farm profile update, got %d", len(f.farms.updated))
	}
	if f.farms.updated[0].Address == nil || *f.farms.updated[0].Address != "99 Valley Lane" {
		t.Fatalf("expected address refresh, got %v", f.farms.updated[0].Address)
	}
}

func TestApplyRenamesUser(t *testing.T) {
	f := newReconcilerFixture()

	rec := batchRecord()
	rec[domain.FieldAssignedFieldUser] = "Johnathan Doe"

	if err := f.reconciler.Apply(context.Background(), []domain.RawRecord{rec}, testSnapshot(), []string{"admin"}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if len(f.users.renamed) != 1 {
		t.Fatalf("expected 1 user rename, got %d", len(f.users.renamed))
	}
	if *f.users.renamed[0].Name != "Johnathan Doe" {
		t.Fatalf("unexpected new name %q", *f.users.renamed[0].Name)
	}
}

func TestApplyUpdatesDuplicate(t *testing.T) {
	f := newReconcilerFixture()
	rec := batchRecord()

	farm := f.farms.farms["Green Acres"]
	task := f.tasks.tasks["Sowing"]
	user := f.users.users["jdoe"]
	crop := f.crops.crops["Wheat"]
	userID, cropID := user.ID, crop.ID
	assigned, _ := time.Parse("1/2/2006", "12/31/2030")
	existing := domain.FarmTask{ID: uuid.New(), FarmID: farm.ID, TaskID: task.ID}
	f.farmTasks.duplicates[dupKey(repository.DuplicateProbe{
		FarmID:     farm.ID,
		TaskID:     task.ID,
		UserID:     &userID,
		CropID:     &cropID,
		AssignedAt: &assigned,
	})] = existing

	if err := f.reconciler.Apply(context.Background(), []domain.RawRecord{rec}, testSnapshot(), []string{"admin"}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if len(f.farmTasks.inserted) != 0 {
		t.Fatalf("expected no inserts for a duplicate, got %d", len(f.farmTasks.inserted))
	}
	if len(f.farmTasks.updates) != 1 {
		t.Fatalf("expected duplicate update, got %d", len(f.farmTasks.updates))
	}
	patch := f.farmTasks.updates[0]
	if patch.Instructions == nil || *patch.Instructions != "Sow the east field" {
		t.Fatalf("expected instructions refreshed, got %v", patch.Instructions)
	}
	if patch.Priority == nil || *patch.Priority != domain.PriorityCritical {
		t.Fatalf("expected priority refreshed, got %v", patch.Priority)
	}
}

func TestApplySkipsExistingFarmCropPairs(t *testing.T) {
	f := newReconcilerFixture()
	farm := f.farms.farms["Green Acres"]
	crop := f.crops.crops["Wheat"]
	f.farmCrops.existing = map[string]struct{}{
		repository.PairKey(farm.ID, crop.ID): {},
	}

	if err := f.reconciler.Apply(context.Background(), []domain.RawRecord{batchRecord()}, testSnapshot(), []string{"admin"}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(f.farmCrops.inserted) != 0 {
		t.Fatalf("expected no new pairs, got %d", len(f.farmCrops.inserted))
	}
}
