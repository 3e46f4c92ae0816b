package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/repository"
)

// fakeTxRunner runs the transaction body directly. failures counts
// down: while positive, WithTx fails with err before the body runs.
type fakeTxRunner struct {
	failures int
	err      error
	calls    int
}

func (f *fakeTxRunner) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return fn(nil)
}

type fakeFarmRepo struct {
	farms    map[string]domain.Farm
	inserted []domain.Farm
	updated  []domain.Farm
}

func (s *fakeFarmRepo) Create(context.Context, domain.Farm) (domain.Farm, error) {
	return domain.Farm{}, nil
}

func (s *fakeFarmRepo) GetByID(context.Context, uuid.UUID) (domain.Farm, error) {
	return domain.Farm{}, repository.ErrNotFound
}

func (s *fakeFarmRepo) List(context.Context) ([]domain.Farm, error) { return nil, nil }

func (s *fakeFarmRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *fakeFarmRepo) MapByNames(_ context.Context, _ repository.Querier, names []string) (map[string]domain.Farm, error) {
	out := make(map[string]domain.Farm)
	for _, name := range names {
		if farm, ok := s.farms[name]; ok {
			out[name] = farm
		}
	}
	return out, nil
}

func (s *fakeFarmRepo) InsertBulk(_ context.Context, _ repository.Querier, farms []domain.Farm) ([]domain.Farm, error) {
	created := make([]domain.Farm, len(farms))
	for i, farm := range farms {
		farm.ID = uuid.New()
		created[i] = farm
		s.farms[farm.Name] = farm
	}
	s.inserted = append(s.inserted, created...)
	return created, nil
}

func (s *fakeFarmRepo) UpdateProfile(_ context.Context, _ repository.Querier, id uuid.UUID, farm domain.Farm) (domain.Farm, error) {
	farm.ID = id
	s.updated = append(s.updated, farm)
	s.farms[farm.Name] = farm
	return farm, nil
}

type fakeCropRepo struct {
	crops    map[string]domain.Crop
	inserted []domain.Crop
}

func (s *fakeCropRepo) Create(context.Context, domain.Crop) (domain.Crop, error) {
	return domain.Crop{}, nil
}

func (s *fakeCropRepo) GetByID(context.Context, uuid.UUID) (domain.Crop, error) {
	return domain.Crop{}, repository.ErrNotFound
}

func (s *fakeCropRepo) List(context.Context) ([]domain.Crop, error) { return nil, nil }

func (s *fakeCropRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *fakeCropRepo) MapByNames(_ context.Context, _ repository.Querier, names []string) (map[string]domain.Crop, error) {
	out := make(map[string]domain.Crop)
	for _, name := range names {
		if crop, ok := s.crops[name]; ok {
			out[name] = crop
		}
	}
	return out, nil
}

func (s *fakeCropRepo) InsertBulk(_ context.Context, _ repository.Querier, crops []domain.Crop) ([]domain.Crop, error) {
	created := make([]domain.Crop, len(crops))
	for i, crop := range crops {
		crop.ID = uuid.New()
		created[i] = crop
		s.crops[crop.Name] = crop
	}
	s.inserted = append(s.inserted, created...)
	return created, nil
}

type fakeTaskRepo struct {
	tasks    map[string]domain.Task
	inserted []domain.Task
}

func (s *fakeTaskRepo) Create(context.Context, domain.Task) (domain.Task, error) {
	return domain.Task{}, nil
}

func (s *fakeTaskRepo) GetByID(context.Context, uuid.UUID) (domain.Task, error) {
	return domain.Task{}, repository.ErrNotFound
}

func (s *fakeTaskRepo) List(context.Context) ([]domain.Task, error) { return nil, nil }

func (s *fakeTaskRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *fakeTaskRepo) MapByNames(_ context.Context, _ repository.Querier, names []string) (map[string]domain.Task, error) {
	out := make(map[string]domain.Task)
	for _, name := range names {
		if task, ok := s.tasks[name]; ok {
			out[name] = task
		}
	}
	return out, nil
}

func (s *fakeTaskRepo) InsertBulk(_ context.Context, _ repository.Querier, tasks []domain.Task) ([]domain.Task, error) {
	created := make([]domain.Task, len(tasks))
	for i, task := range tasks {
		task.ID = uuid.New()
		created[i] = task
		s.tasks[task.Name] = task
	}
	s.inserted = append(s.inserted, created...)
	return created, nil
}

type fakeUserRepo struct {
	users   map[string]domain.User
	renamed []domain.User
}

func (s *fakeUserRepo) GetByID(context.Context, uuid.UUID) (domain.User, error) {
	return domain.User{}, repository.ErrNotFound
}

func (s *fakeUserRepo) List(context.Context) ([]domain.User, error) { return nil, nil }

func (s *fakeUserRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *fakeUserRepo) MapByUsernames(_ context.Context, _ repository.Querier, usernames []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User)
	for _, username := range usernames {
		if user, ok := s.users[username]; ok {
			out[username] = user
		}
	}
	return out, nil
}

func (s *fakeUserRepo) UpdateName(_ context.Context, _ repository.Querier, id uuid.UUID, name *string) (domain.User, error) {
	for username, user := range s.users {
		if user.ID == id {
			user.Name = name
			s.users[username] = user
			s.renamed = append(s.renamed, user)
			return user, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

type fakeFarmTaskRepo struct {
	duplicates map[string]domain.FarmTask
	inserted   []domain.FarmTask
	updates    []repository.FarmTaskPatch
	insertErr  error
}

func dupKey(probe repository.DuplicateProbe) string {
	key := probe.FarmID.String() + "|" + probe.TaskID.String()
	if probe.UserID != nil {
		key += "|" + probe.UserID.String()
	}
	if probe.CropID != nil {
		key += "|" + probe.CropID.String()
	}
	if probe.AssignedAt != nil {
		key += "|" + probe.AssignedAt.Format("2006-01-02")
	}
	return key
}

func (s *fakeFarmTaskRepo) Create(_ context.Context, _ repository.Querier, task domain.FarmTask) (domain.FarmTask, error) {
	task.ID = uuid.New()
	s.inserted = append(s.inserted, task)
	return task, nil
}

func (s *fakeFarmTaskRepo) GetByID(context.Context, uuid.UUID) (domain.FarmTask, error) {
	return domain.FarmTask{}, repository.ErrNotFound
}

func (s *fakeFarmTaskRepo) View(context.Context, uuid.UUID) (domain.FarmTaskDetail, error) {
	return domain.FarmTaskDetail{}, repository.ErrNotFound
}

func (s *fakeFarmTaskRepo) List(context.Context, repository.FarmTaskFilter, repository.FarmTaskSort, int, int) ([]domain.FarmTaskDetail, int, error) {
	return nil, 0, nil
}

func (s *fakeFarmTaskRepo) Update(_ context.Context, _ repository.Querier, id uuid.UUID, patch repository.FarmTaskPatch) (domain.FarmTask, error) {
	s.updates = append(s.updates, patch)
	return domain.FarmTask{ID: id}, nil
}

func (s *fakeFarmTaskRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *fakeFarmTaskRepo) FindDuplicate(_ context.Context, _ repository.Querier, probe repository.DuplicateProbe) (*domain.FarmTask, error) {
	if task, ok := s.duplicates[dupKey(probe)]; ok {
		return &task, nil
	}
	return nil, nil
}

func (s *fakeFarmTaskRepo) InsertBulk(_ context.Context, _ repository.Querier, tasks []domain.FarmTask) ([]domain.FarmTask, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	created := make([]domain.FarmTask, len(tasks))
	for i, task := range tasks {
		task.ID = uuid.New()
		created[i] = task
	}
	s.inserted = append(s.inserted, created...)
	return created, nil
}

func (s *fakeFarmTaskRepo) ListIncompleteDue(context.Context, time.Time) ([]domain.FarmTask, error) {
	return nil, nil
}

func (s *fakeFarmTaskRepo) ShiftIncompleteTo(context.Context, time.Time, time.Time) ([]domain.FarmTask, error) {
	return nil, nil
}

type fakeFarmCropRepo struct {
	existing map[string]struct{}
	inserted []domain.FarmCrop
}

func (s *fakeFarmCropRepo) ExistingPairs(_ context.Context, _ repository.Querier, pairs []domain.FarmCrop) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, pair := range pairs {
		key := repository.PairKey(pair.FarmID, pair.CropID)
		if _, ok := s.existing[key]; ok {
			out[key] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeFarmCropRepo) InsertBulk(_ context.Context, _ repository.Querier, pairs []domain.FarmCrop) ([]domain.FarmCrop, error) {
	created := make([]domain.FarmCrop, len(pairs))
	for i, pair := range pairs {
		pair.ID = uuid.New()
		created[i] = pair
		if s.existing == nil {
			s.existing = make(map[string]struct{})
		}
		s.existing[repository.PairKey(pair.FarmID, pair.CropID)] = struct{}{}
	}
	s.inserted = append(s.inserted, created...)
	return created, nil
}

func (s *fakeFarmCropRepo) FindOrCreate(_ context.Context, _ repository.Querier, farmID, cropID uuid.UUID) (domain.FarmCrop, bool, error) {
	key := repository.PairKey(farmID, cropID)
	if _, ok := s.existing[key]; ok {
		return domain.FarmCrop{FarmID: farmID, CropID: cropID}, false, nil
	}
	pair := domain.FarmCrop{ID: uuid.New(), FarmID: farmID, CropID: cropID}
	if s.existing == nil {
		s.existing = make(map[string]struct{})
	}
	s.existing[key] = struct{}{}
	s.inserted = append(s.inserted, pair)
	return pair, true, nil
}

type fakeEventLogRepo struct {
	entries   []domain.EventLogEntry
	bulkErr   error
	singleErr error
}

func (s *fakeEventLogRepo) Insert(_ context.Context, entry domain.EventLogEntry) error {
	if s.singleErr != nil {
		return s.singleErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeEventLogRepo) InsertBulk(_ context.Context, entries []domain.EventLogEntry) error {
	if s.bulkErr != nil {
		return s.bulkErr
	}
	s.entries = append(s.entries, entries...)
	return nil
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }
