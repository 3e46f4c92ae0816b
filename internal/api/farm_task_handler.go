package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/auth"
	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/eventlog"
	"github.com/agrifield/backend/internal/ingestion"
	"github.com/agrifield/backend/internal/repository"
)

const farmTaskEndpoint = "/api/v1/farms/tasks/"

// txRunner executes a function inside a database transaction.
// *db.Connection satisfies it.
type txRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// FarmTaskHandler serves the farm-task CRUD and listing endpoints.
type FarmTaskHandler struct {
	tx        txRunner
	farmTasks repository.FarmTaskRepository
	farmCrops repository.FarmCropRepository
	events    *eventlog.Producer
	logger    *zap.Logger
}

// NewFarmTaskHandler wires the farm-task handler.
func NewFarmTaskHandler(
	tx txRunner,
	farmTasks repository.FarmTaskRepository,
	farmCrops repository.FarmCropRepository,
	events *eventlog.Producer,
	logger *zap.Logger,
) *FarmTaskHandler {
	return &FarmTaskHandler{
		tx:        tx,
		farmTasks: farmTasks,
		farmCrops: farmCrops,
		events:    events,
		logger:    logger.With(zap.String("component", "farm_task_handler")),
	}
}

type farmTaskRequest struct {
	FarmID       uuid.UUID  `json:"farm_id"`
	TaskID       uuid.UUID  `json:"task_id"`
	UserID       *uuid.UUID `json:"user_id"`
	CropID       *uuid.UUID `json:"crop_id"`
	AssignedAt   *time.Time `json:"assigned_at"`
	Instructions *string    `json:"instructions"`
	Remarks      *string    `json:"remarks"`
	Priority     string     `json:"priority"`
}

// Create inserts a single farm task, rejecting duplicates of the
// farm + task + user + crop + date key and registering the farm-crop
// pair when a crop is named.
func (h *FarmTaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req farmTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.FarmID == uuid.Nil || req.TaskID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "farm_id and task_id are required")
		return
	}
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid priority")
		return
	}

	var created domain.FarmTask
	var changes []eventlog.Change
	err := h.tx.WithTx(r.Context(), func(tx pgx.Tx) error {
		dup, err := h.farmTasks.FindDuplicate(r.Context(), tx, repository.DuplicateProbe{
			FarmID:     req.FarmID,
			TaskID:     req.TaskID,
			UserID:     req.UserID,
			CropID:     req.CropID,
			AssignedAt: req.AssignedAt,
		})
		if err != nil {
			return err
		}
		if dup != nil {
			return errDuplicateFarmTask
		}

		userID := identity.UserID
		created, err = h.farmTasks.Create(r.Context(), tx, domain.FarmTask{
			FarmID:       req.FarmID,
			TaskID:       req.TaskID,
			UserID:       req.UserID,
			CropID:       req.CropID,
			AssignedAt:   req.AssignedAt,
			Instructions: req.Instructions,
			Remarks:      req.Remarks,
			Priority:     priority,
			Status:       domain.PublishStatusPublished,
			TaskStatus:   domain.TaskStatusNotStarted,
			CreatedBy:    &userID,
		})
		if err != nil {
			return err
		}
		id := created.ID
		changes = append(changes, eventlog.Change{
			Resource:   domain.ResourceFarmTasks,
			ResourceID: &id,
			NewData:    created,
		})

		if req.CropID != nil {
			pair, madePair, err := h.farmCrops.FindOrCreate(r.Context(), tx, req.FarmID, *req.CropID)
			if err != nil {
				return err
			}
			if madePair {
				pairID := pair.ID
				changes = append(changes, eventlog.Change{
					Resource:   domain.ResourceFarmCrops,
					ResourceID: &pairID,
					NewData:    pair,
				})
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateFarmTask) {
			writeError(w, http.StatusBadRequest, "Farm Task already exist")
			return
		}
		h.logger.Error("failed to create farm task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.logChanges(r, identity.UserID, http.MethodPost, map[string]any{
		"farm_id": req.FarmID.String(),
		"task_id": req.TaskID.String(),
	}, changes)
	writeJSON(w, http.StatusCreated, created)
}

var errDuplicateFarmTask = errors.New("duplicate farm task")

type farmTaskUpdateRequest struct {
	FarmID       *uuid.UUID            `json:"farm_id"`
	TaskID       *uuid.UUID            `json:"task_id"`
	UserID       *uuid.UUID            `json:"user_id"`
	CropID       *uuid.UUID            `json:"crop_id"`
	AssignedAt   *time.Time            `json:"assigned_at"`
	Instructions *string               `json:"instructions"`
	Remarks      *string               `json:"remarks"`
	Priority     *string               `json:"priority"`
	Status       *domain.PublishStatus `json:"status"`
	TaskStatus   *string               `json:"task_status"`
}

// Update patches a farm task. Completed tasks keep their status, and
// the update may not collide with an existing farm + task + user +
// crop + date combination.
func (h *FarmTaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid farm task id")
		return
	}

	var req farmTaskUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	current, err := h.farmTasks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Farm Task not found")
			return
		}
		h.logger.Error("failed to load farm task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	patch := repository.FarmTaskPatch{
		FarmID:       req.FarmID,
		TaskID:       req.TaskID,
		UserID:       req.UserID,
		CropID:       req.CropID,
		AssignedAt:   req.AssignedAt,
		Instructions: req.Instructions,
		Remarks:      req.Remarks,
		Status:       req.Status,
	}
	if req.Priority != nil {
		priority, ok := domain.ParsePriority(*req.Priority)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid priority")
			return
		}
		patch.Priority = &priority
	}
	if req.TaskStatus != nil {
		switch *req.TaskStatus {
		case domain.TaskStatusNotStarted, domain.TaskStatusNotCompleted, domain.TaskStatusCompleted:
		default:
			writeError(w, http.StatusBadRequest, "Invalid task status")
			return
		}
		if current.TaskStatus == domain.TaskStatusCompleted && *req.TaskStatus != domain.TaskStatusCompleted {
			writeError(w, http.StatusBadRequest, "Completed task status cannot be changed")
			return
		}
		patch.TaskStatus = req.TaskStatus
	}

	var updated domain.FarmTask
	var changes []eventlog.Change
	err = h.tx.WithTx(r.Context(), func(tx pgx.Tx) error {
		probe := repository.DuplicateProbe{
			FarmID:     current.FarmID,
			TaskID:     current.TaskID,
			UserID:     current.UserID,
			CropID:     current.CropID,
			AssignedAt: current.AssignedAt,
			ExcludeID:  &id,
		}
		if req.FarmID != nil {
			probe.FarmID = *req.FarmID
		}
		if req.TaskID != nil {
			probe.TaskID = *req.TaskID
		}
		if req.UserID != nil {
			probe.UserID = req.UserID
		}
		if req.CropID != nil {
			probe.CropID = req.CropID
		}
		if req.AssignedAt != nil {
			probe.AssignedAt = req.AssignedAt
		}
		dup, err := h.farmTasks.FindDuplicate(r.Context(), tx, probe)
		if err != nil {
			return err
		}
		if dup != nil {
			return errDuplicateFarmTask
		}

		updated, err = h.farmTasks.Update(r.Context(), tx, id, patch)
		if err != nil {
			return err
		}
		changes = append(changes, eventlog.Change{
			Resource:   domain.ResourceFarmTasks,
			ResourceID: &id,
			OldData:    current,
			NewData:    updated,
		})

		if req.CropID != nil {
			pair, madePair, err := h.farmCrops.FindOrCreate(r.Context(), tx, probe.FarmID, *req.CropID)
			if err != nil {
				return err
			}
			if madePair {
				pairID := pair.ID
				changes = append(changes, eventlog.Change{
					Resource:   domain.ResourceFarmCrops,
					ResourceID: &pairID,
					NewData:    pair,
				})
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateFarmTask) {
			writeError(w, http.StatusBadRequest, "Farm Task already exist")
			return
		}
		h.logger.Error("failed to update farm task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.logChanges(r, identity.UserID, http.MethodPatch, map[string]any{"id": id.String()}, changes)
	writeJSON(w, http.StatusOK, updated)
}

// View returns one farm task joined with its referenced names.
func (h *FarmTaskHandler) View(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid farm task id")
		return
	}
	detail, err := h.farmTasks.View(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Farm Task not found")
			return
		}
		h.logger.Error("failed to view farm task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Delete removes a farm task and records the deleted row.
func (h *FarmTaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid farm task id")
		return
	}

	current, err := h.farmTasks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Farm Task not found")
			return
		}
		h.logger.Error("failed to load farm task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if err := h.farmTasks.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete farm task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.logChanges(r, identity.UserID, http.MethodDelete, map[string]any{"id": id.String()}, []eventlog.Change{{
		Resource:   domain.ResourceFarmTasks,
		ResourceID: &id,
		OldData:    current,
	}})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Farm Task deleted successfully"})
}

// Index lists farm tasks with filters, sorting and pagination. With
// action=download the filtered set is returned as an XLSX workbook
// instead of JSON.
func (h *FarmTaskHandler) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.FarmTaskFilter{
		Farm:       q.Get("farm"),
		Task:       q.Get("task"),
		Crop:       q.Get("crop"),
		UserName:   q.Get("user_name"),
		Username:   q.Get("username"),
		Priority:   q.Get("priority"),
		TaskStatus: q.Get("task_status"),
		Status:     q.Get("status"),
	}
	if raw := q.Get("assigned_start"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid assigned_start, want YYYY-MM-DD")
			return
		}
		filter.AssignedStart = &t
	}
	if raw := q.Get("assigned_end"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid assigned_end, want YYYY-MM-DD")
			return
		}
		filter.AssignedEnd = &t
	}

	sort := repository.FarmTaskSort{
		Column:    q.Get("sort_by"),
		Direction: q.Get("sort_dir"),
	}

	if q.Get("action") == "download" {
		details, _, err := h.farmTasks.List(r.Context(), filter, sort, 0, 0)
		if err != nil {
			h.logger.Error("failed to list farm tasks for download", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		workbook, err := ingestion.BuildExportWorkbook(details)
		if err != nil {
			h.logger.Error("failed to build export workbook", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		filename := fmt.Sprintf("farm_tasks_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(workbook)
		return
	}

	page := intParam(q.Get("page"), 1)
	limit := intParam(q.Get("limit"), 10)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	details, total, err := h.farmTasks.List(r.Context(), filter, sort, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list farm tasks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if details == nil {
		details = []domain.FarmTaskDetail{}
	}
	writeJSON(w, http.StatusOK, listResponse{Data: details, Total: total, Page: page, Limit: limit})
}

func (h *FarmTaskHandler) logChanges(r *http.Request, userID uuid.UUID, method string, payload map[string]any, changes []eventlog.Change) {
	h.events.Log(r.Context(), eventlog.Request{
		UserID:   &userID,
		Endpoint: farmTaskEndpoint,
		Method:   method,
		Payload:  payload,
	}, changes...)
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
