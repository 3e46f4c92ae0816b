// Package worker runs the queue consumers: the batch consumer that
// persists validated upload rows and the event-log consumer that
// drains audit entries into the database.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/eventlog"
	"github.com/agrifield/backend/internal/ingestion"
	"github.com/agrifield/backend/internal/repository"
)

// uploadEndpoint is the API surface recorded on audit entries produced
// by the batch consumer.
const uploadEndpoint = "/api/v1/farms/tasks/upload-csv"

// TxRunner executes a function inside a database transaction.
// *db.Connection satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Reconciler applies one batch of validated rows to the database:
// referenced entities are created or refreshed, then the farm tasks
// themselves are deduplicated and inserted, all in one transaction.
type Reconciler struct {
	tx        TxRunner
	farms     repository.FarmRepository
	crops     repository.CropRepository
	tasks     repository.TaskRepository
	users     repository.UserRepository
	farmTasks repository.FarmTaskRepository
	farmCrops repository.FarmCropRepository
	events    *eventlog.Producer
	logger    *zap.Logger
}

// NewReconciler wires a batch reconciler.
func NewReconciler(
	tx TxRunner,
	farms repository.FarmRepository,
	crops repository.CropRepository,
	tasks repository.TaskRepository,
	users repository.UserRepository,
	farmTasks repository.FarmTaskRepository,
	farmCrops repository.FarmCropRepository,
	events *eventlog.Producer,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		tx:        tx,
		farms:     farms,
		crops:     crops,
		tasks:     tasks,
		users:     users,
		farmTasks: farmTasks,
		farmCrops: farmCrops,
		events:    events,
		logger:    logger.With(zap.String("component", "batch_reconciler")),
	}
}

// stagedEntities are the referenced entities extracted from a batch,
// deduplicated on their unique field. First occurrence wins.
type stagedEntities struct {
	farms map[string]domain.Farm
	tasks map[string]struct{}
	crops map[string]struct{}
	users map[string]domain.User
}

func stageEntities(records []domain.RawRecord, restricted bool) stagedEntities {
	staged := stagedEntities{
		farms: make(map[string]domain.Farm),
		tasks: make(map[string]struct{}),
		crops: make(map[string]struct{}),
		users: make(map[string]domain.User),
	}
	for _, rec := range records {
		farmName := rec.Get(domain.FieldFarm)
		if farmName == "" {
			continue
		}
		if _, ok := staged.farms[farmName]; !ok {
			farm := domain.Farm{Name: farmName}
			if !restricted {
				farm.Address = nullable(rec.Get(domain.FieldFarmAddress))
				farm.Location = nullable(rec.Get(domain.FieldFarmLocation))
				farm.ImageURL = nullable(rec.Get(domain.FieldFarmImage))
				farm.Plot = nullable(rec.Get(domain.FieldPlot))
			}
			staged.farms[farmName] = farm
		}
		if taskName := rec.Get(domain.FieldTask); taskName != "" {
			staged.tasks[taskName] = struct{}{}
		}
		if cropName := rec.Get(domain.FieldCrop); cropName != "" {
			staged.crops[cropName] = struct{}{}
		}
		if username := rec.Get(domain.FieldUsername); username != "" {
			if _, ok := staged.users[username]; !ok {
				staged.users[username] = domain.User{
					Username: username,
					Name:     nullable(rec.Get(domain.FieldAssignedFieldUser)),
				}
			}
		}
	}
	return staged
}

// Apply persists one batch of rows for the upload described by snap.
// After the transaction commits an audit entry is produced for each
// recorded mutation.
func (r *Reconciler) Apply(ctx context.Context, records []domain.RawRecord, snap domain.ProgressSnapshot, roles []string) error {
	if len(records) == 0 {
		return nil
	}
	restricted := domain.IsRestrictedRole(roles)
	var changes []eventlog.Change

	err := r.tx.WithTx(ctx, func(tx pgx.Tx) error {
		staged := stageEntities(records, restricted)

		farmMap, err := r.reconcileFarms(ctx, tx, staged.farms, restricted, &changes)
		if err != nil {
			return err
		}
		taskMap, err := r.reconcileTasks(ctx, tx, staged.tasks)
		if err != nil {
			return err
		}
		cropMap, err := r.reconcileCrops(ctx, tx, staged.crops)
		if err != nil {
			return err
		}
		userMap, err := r.reconcileUsers(ctx, tx, staged.users, &changes)
		if err != nil {
			return err
		}

		var newTasks []domain.FarmTask
		var pairs []domain.FarmCrop
		pairSeen := make(map[string]struct{})

		for _, rec := range records {
			farm, okFarm := farmMap[rec.Get(domain.FieldFarm)]
			task, okTask := taskMap[rec.Get(domain.FieldTask)]
			if !okFarm || !okTask {
				continue
			}

			var userID, cropID *uuid.UUID
			if username := rec.Get(domain.FieldUsername); username != "" {
				if u, ok := userMap[username]; ok {
					id := u.ID
					userID = &id
				}
			}
			if cropName := rec.Get(domain.FieldCrop); cropName != "" {
				if c, ok := cropMap[cropName]; ok {
					id := c.ID
					cropID = &id
				}
			}

			var assignedAt *time.Time
			if raw := rec.Get(domain.FieldAssignedDate); raw != "" {
				if t, ok := ingestion.ParseAssignedDate(raw); ok {
					assignedAt = &t
				}
			}

			existing, err := r.farmTasks.FindDuplicate(ctx, tx, repository.DuplicateProbe{
				FarmID:     farm.ID,
				TaskID:     task.ID,
				UserID:     userID,
				CropID:     cropID,
				AssignedAt: assignedAt,
			})
			if err != nil {
				return fmt.Errorf("failed to probe duplicate farm task: %w", err)
			}

			priority, ok := domain.ParsePriority(rec.Get(domain.FieldPriority))
			if !ok {
				priority = domain.PriorityNormal
			}

			if existing != nil {
				instructions := rec.Get(domain.FieldInstructions)
				remarks := rec.Get(domain.FieldRemarks)
				updated, err := r.farmTasks.Update(ctx, tx, existing.ID, repository.FarmTaskPatch{
					Instructions: &instructions,
					Remarks:      &remarks,
					Priority:     &priority,
				})
				if err != nil {
					return fmt.Errorf("failed to update duplicate farm task: %w", err)
				}
				id := existing.ID
				changes = append(changes, eventlog.Change{
					Resource:   domain.ResourceFarmTasks,
					ResourceID: &id,
					OldData:    existing,
					NewData:    updated,
				})
				continue
			}

			createdBy := snap.UserID
			newTasks = append(newTasks, domain.FarmTask{
				FarmID:       farm.ID,
				TaskID:       task.ID,
				UserID:       userID,
				CropID:       cropID,
				AssignedAt:   assignedAt,
				Instructions: nullable(rec.Get(domain.FieldInstructions)),
				Remarks:      nullable(rec.Get(domain.FieldRemarks)),
				Priority:     priority,
				Status:       domain.PublishStatusPublished,
				TaskStatus:   domain.TaskStatusNotStarted,
				CreatedBy:    &createdBy,
			})
			if cropID != nil {
				key := repository.PairKey(farm.ID, *cropID)
				if _, seen := pairSeen[key]; !seen {
					pairSeen[key] = struct{}{}
					pairs = append(pairs, domain.FarmCrop{FarmID: farm.ID, CropID: *cropID})
				}
			}
		}

		if len(newTasks) > 0 {
			created, err := r.farmTasks.InsertBulk(ctx, tx, newTasks)
			if err != nil {
				return fmt.Errorf("failed to insert farm tasks: %w", err)
			}
			changes = append(changes, eventlog.Change{
				Resource: domain.ResourceFarmTasks,
				NewData:  created,
			})
		}

		if len(pairs) > 0 {
			existingPairs, err := r.farmCrops.ExistingPairs(ctx, tx, pairs)
			if err != nil {
				return fmt.Errorf("failed to load farm-crop pairs: %w", err)
			}
			var toInsert []domain.FarmCrop
			for _, pair := range pairs {
				if _, ok := existingPairs[repository.PairKey(pair.FarmID, pair.CropID)]; !ok {
					toInsert = append(toInsert, pair)
				}
			}
			if len(toInsert) > 0 {
				created, err := r.farmCrops.InsertBulk(ctx, tx, toInsert)
				if err != nil {
					return fmt.Errorf("failed to insert farm-crop pairs: %w", err)
				}
				changes = append(changes, eventlog.Change{
					Resource: domain.ResourceFarmCrops,
					NewData:  created,
				})
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if len(changes) > 0 {
		userID := snap.UserID
		r.events.Log(ctx, eventlog.Request{
			UserID:   &userID,
			Endpoint: uploadEndpoint,
			Method:   http.MethodPost,
			Payload:  map[string]any{"file": map[string]any{"originalname": snap.FileName}},
		}, changes...)
	}
	return nil
}

// reconcileFarms refreshes the profile of known farms (unless the
// uploader's role strips profile columns) and creates the unknown ones.
func (r *Reconciler) reconcileFarms(ctx context.Context, q repository.Querier, staged map[string]domain.Farm, restricted bool, changes *[]eventlog.Change) (map[string]domain.Farm, error) {
	names := sortedKeys(staged)
	if len(names) == 0 {
		return map[string]domain.Farm{}, nil
	}
	existing, err := r.farms.MapByNames(ctx, q, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load farms: %w", err)
	}

	var missing []domain.Farm
	for _, name := range names {
		incoming := staged[name]
		cur, ok := existing[name]
		if !ok {
			missing = append(missing, incoming)
			continue
		}
		if restricted {
			continue
		}
		updated, err := r.farms.UpdateProfile(ctx, q, cur.ID, incoming)
		if err != nil {
			return nil, fmt.Errorf("failed to update farm %q: %w", name, err)
		}
		id := cur.ID
		*changes = append(*changes, eventlog.Change{
			Resource:   domain.ResourceFarms,
			ResourceID: &id,
			OldData:    cur,
			NewData:    updated,
		})
		existing[name] = updated
	}

	if len(missing) > 0 {
		created, err := r.farms.InsertBulk(ctx, q, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to insert farms: %w", err)
		}
		for _, f := range created {
			existing[f.Name] = f
		}
	}
	return existing, nil
}

func (r *Reconciler) reconcileTasks(ctx context.Context, q repository.Querier, staged map[string]struct{}) (map[string]domain.Task, error) {
	names := sortedKeys(staged)
	if len(names) == 0 {
		return map[string]domain.Task{}, nil
	}
	existing, err := r.tasks.MapByNames(ctx, q, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	var missing []domain.Task
	for _, name := range names {
		if _, ok := existing[name]; !ok {
			missing = append(missing, domain.Task{Name: name})
		}
	}
	if len(missing) > 0 {
		created, err := r.tasks.InsertBulk(ctx, q, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to insert tasks: %w", err)
		}
		for _, t := range created {
			existing[t.Name] = t
		}
	}
	return existing, nil
}

func (r *Reconciler) reconcileCrops(ctx context.Context, q repository.Querier, staged map[string]struct{}) (map[string]domain.Crop, error) {
	names := sortedKeys(staged)
	if len(names) == 0 {
		return map[string]domain.Crop{}, nil
	}
	existing, err := r.crops.MapByNames(ctx, q, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load crops: %w", err)
	}
	var missing []domain.Crop
	for _, name := range names {
		if _, ok := existing[name]; !ok {
			missing = append(missing, domain.Crop{Name: name})
		}
	}
	if len(missing) > 0 {
		created, err := r.crops.InsertBulk(ctx, q, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to insert crops: %w", err)
		}
		for _, c := range created {
			existing[c.Name] = c
		}
	}
	return existing, nil
}

// reconcileUsers refreshes display names of known users. Rows naming
// unknown users never reach the consumer; validation rejects them.
func (r *Reconciler) reconcileUsers(ctx context.Context, q repository.Querier, staged map[string]domain.User, changes *[]eventlog.Change) (map[string]domain.User, error) {
	usernames := sortedKeys(staged)
	if len(usernames) == 0 {
		return map[string]domain.User{}, nil
	}
	existing, err := r.users.MapByUsernames(ctx, q, usernames)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, username := range usernames {
		cur, ok := existing[username]
		if !ok {
			continue
		}
		incoming := staged[username]
		if incoming.Name == nil || (cur.Name != nil && *cur.Name == *incoming.Name) {
			continue
		}
		updated, err := r.users.UpdateName(ctx, q, cur.ID, incoming.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to update user %q: %w", username, err)
		}
		id := cur.ID
		*changes = append(*changes, eventlog.Change{
			Resource:   domain.ResourceUsers,
			ResourceID: &id,
			OldData:    cur,
			NewData:    updated,
		})
		existing[username] = updated
	}
	return existing, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
