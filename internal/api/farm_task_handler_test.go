package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/auth"
	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/eventlog"
	"github.com/agrifield/backend/internal/queue"
	"github.com/agrifield/backend/internal/repository"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(pgx.Tx) error) error { return fn(nil) }

type stubFarmTaskRepo struct {
	byID      map[uuid.UUID]domain.FarmTask
	duplicate *domain.FarmTask
	created   []domain.FarmTask
	patched   []repository.FarmTaskPatch
	listed    []domain.FarmTaskDetail
	total     int
}

func (s *stubFarmTaskRepo) Create(_ context.Context, _ repository.Querier, task domain.FarmTask) (domain.FarmTask, error) {
	task.ID = uuid.New()
	s.created = append(s.created, task)
	return task, nil
}

func (s *stubFarmTaskRepo) GetByID(_ context.Context, id uuid.UUID) (domain.FarmTask, error) {
	if task, ok := s.byID[id]; ok {
		return task, nil
	}
	return domain.FarmTask{}, repository.ErrNotFound
}

func (s *stubFarmTaskRepo) View(_ context.Context, id uuid.UUID) (domain.FarmTaskDetail, error) {
	if task, ok := s.byID[id]; ok {
		return domain.FarmTaskDetail{FarmTask: task}, nil
	}
	return domain.FarmTaskDetail{}, repository.ErrNotFound
}

func (s *stubFarmTaskRepo) List(context.Context, repository.FarmTaskFilter, repository.FarmTaskSort, int, int) ([]domain.FarmTaskDetail, int, error) {
	return s.listed, s.total, nil
}

func (s *stubFarmTaskRepo) Update(_ context.Context, _ repository.Querier, id uuid.UUID, patch repository.FarmTaskPatch) (domain.FarmTask, error) {
	s.patched = append(s.patched, patch)
	task := s.byID[id]
	if patch.TaskStatus != nil {
		task.TaskStatus = *patch.TaskStatus
	}
	return task, nil
}

func (s *stubFarmTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.byID, id)
	return nil
}

func (s *stubFarmTaskRepo) FindDuplicate(context.Context, repository.Querier, repository.DuplicateProbe) (*domain.FarmTask, error) {
	return s.duplicate, nil
}

func (s *stubFarmTaskRepo) InsertBulk(context.Context, repository.Querier, []domain.FarmTask) ([]domain.FarmTask, error) {
	return nil, nil
}

func (s *stubFarmTaskRepo) ListIncompleteDue(context.Context, time.Time) ([]domain.FarmTask, error) {
	return nil, nil
}

func (s *stubFarmTaskRepo) ShiftIncompleteTo(context.Context, time.Time, time.Time) ([]domain.FarmTask, error) {
	return nil, nil
}

type stubFarmCropRepo struct {
	pairs []domain.FarmCrop
}

func (s *stubFarmCropRepo) ExistingPairs(context.Context, repository.Querier, []domain.FarmCrop) (map[string]struct{}, error) {
	return nil, nil
}

func (s *stubFarmCropRepo) InsertBulk(context.Context, repository.Querier, []domain.FarmCrop) ([]domain.FarmCrop, error) {
	return nil, nil
}

func (s *stubFarmCropRepo) FindOrCreate(_ context.Context, _ repository.Querier, farmID, cropID uuid.UUID) (domain.FarmCrop, bool, error) {
	pair := domain.FarmCrop{ID: uuid.New(), FarmID: farmID, CropID: cropID}
	s.pairs = append(s.pairs, pair)
	return pair, true, nil
}

func newHandlerFixture() (*stubFarmTaskRepo, *stubFarmCropRepo, *FarmTaskHandler) {
	tasks := &stubFarmTaskRepo{byID: map[uuid.UUID]domain.FarmTask{}}
	crops := &stubFarmCropRepo{}
	events := eventlog.NewProducer(queue.NewMemoryQueue(), false, zap.NewNop())
	h := NewFarmTaskHandler(passthroughTx{}, tasks, crops, events, zap.NewNop())
	return tasks, crops, h
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	identity := auth.Identity{UserID: uuid.New(), Username: "jdoe", Roles: []string{"admin"}}
	return req.WithContext(auth.ContextWithIdentity(req.Context(), identity))
}

func TestCreateFarmTask(t *testing.T) {
	tasks, crops, h := newHandlerFixture()

	body, _ := json.Marshal(map[string]any{
		"farm_id":  uuid.New(),
		"task_id":  uuid.New(),
		"crop_id":  uuid.New(),
		"priority": "critical",
	})
	rec := httptest.NewRecorder()
	h.Create(rec, authedRequest(http.MethodPost, "/api/v1/farms/tasks/", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(tasks.created) != 1 {
		t.Fatalf("expected 1 task created, got %d", len(tasks.created))
	}
	if tasks.created[0].TaskStatus != domain.TaskStatusNotStarted {
		t.Fatalf("expected not_started, got %s", tasks.created[0].TaskStatus)
	}
	if len(crops.pairs) != 1 {
		t.Fatalf("expected farm-crop pair registered, got %d", len(crops.pairs))
	}
}

func TestCreateFarmTaskDuplicate(t *testing.T) {
	tasks, _, h := newHandlerFixture()
	dup := domain.FarmTask{ID: uuid.New()}
	tasks.duplicate = &dup

	body, _ := json.Marshal(map[string]any{"farm_id": uuid.New(), "task_id": uuid.New()})
	rec := httptest.NewRecorder()
	h.Create(rec, authedRequest(http.MethodPost, "/api/v1/farms/tasks/", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] != "Farm Task already exist" {
		t.Fatalf("unexpected error %q", resp["error"])
	}
}

func TestCreateFarmTaskUnauthorized(t *testing.T) {
	_, _, h := newHandlerFixture()
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/farms/tasks/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func routeWithID(h http.HandlerFunc, method, path string, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, path, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUpdateRejectsRevertingCompletedTask(t *testing.T) {
	tasks, _, h := newHandlerFixture()
	id := uuid.New()
	tasks.byID[id] = domain.FarmTask{ID: id, TaskStatus: domain.TaskStatusCompleted}

	body, _ := json.Marshal(map[string]any{"task_status": domain.TaskStatusNotStarted})
	req := authedRequest(http.MethodPatch, "/api/v1/farms/tasks/"+id.String(), body)
	rec := routeWithID(h.Update, http.MethodPatch, "/api/v1/farms/tasks/{id}", req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateMarksTaskCompleted(t *testing.T) {
	tasks, _, h := newHandlerFixture()
	id := uuid.New()
	tasks.byID[id] = domain.FarmTask{ID: id, TaskStatus: domain.TaskStatusNotStarted}

	body, _ := json.Marshal(map[string]any{"task_status": domain.TaskStatusCompleted})
	req := authedRequest(http.MethodPatch, "/api/v1/farms/tasks/"+id.String(), body)
	rec := routeWithID(h.Update, http.MethodPatch, "/api/v1/farms/tasks/{id}", req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(tasks.patched) != 1 || tasks.patched[0].TaskStatus == nil {
		t.Fatalf("expected task status patch")
	}
}

func TestIndexReturnsEnvelope(t *testing.T) {
	tasks, _, h := newHandlerFixture()
	tasks.listed = []domain.FarmTaskDetail{{FarmTask: domain.FarmTask{ID: uuid.New()}}}
	tasks.total = 1

	rec := httptest.NewRecorder()
	h.Index(rec, authedRequest(http.MethodGet, "/api/v1/farms/tasks/?page=2&limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Page != 2 || resp.Limit != 5 {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestIndexDownloadReturnsWorkbook(t *testing.T) {
	tasks, _, h := newHandlerFixture()
	tasks.listed = []domain.FarmTaskDetail{{FarmTask: domain.FarmTask{ID: uuid.New()}, TaskName: "Sowing", FarmName: "Green Acres"}}

	rec := httptest.NewRecorder()
	h.Index(rec, authedRequest(http.MethodGet, "/api/v1/farms/tasks/?action=download", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}
