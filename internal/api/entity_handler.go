package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/auth"
	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/eventlog"
	"github.com/agrifield/backend/internal/repository"
)

// EntityHandler serves the thin CRUD endpoints for farms, crops, task
// categories and users. User accounts are issued by the identity
// service; this surface only reads and removes them.
type EntityHandler struct {
	farms  repository.FarmRepository
	crops  repository.CropRepository
	tasks  repository.TaskRepository
	users  repository.UserRepository
	events *eventlog.Producer
	logger *zap.Logger
}

// NewEntityHandler wires the entity handler.
func NewEntityHandler(
	farms repository.FarmRepository,
	crops repository.CropRepository,
	tasks repository.TaskRepository,
	users repository.UserRepository,
	events *eventlog.Producer,
	logger *zap.Logger,
) *EntityHandler {
	return &EntityHandler{
		farms:  farms,
		crops:  crops,
		tasks:  tasks,
		users:  users,
		events: events,
		logger: logger.With(zap.String("component", "entity_handler")),
	}
}

type farmRequest struct {
	Name     string  `json:"name"`
	Address  *string `json:"address"`
	Location *string `json:"location"`
	Plot     *string `json:"plot"`
	ImageURL *string `json:"image_url"`
}

// CreateFarm inserts a farm.
func (h *EntityHandler) CreateFarm(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req farmRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Farm name is required")
		return
	}

	created, err := h.farms.Create(r.Context(), domain.Farm{
		Name:     req.Name,
		Address:  req.Address,
		Location: req.Location,
		Plot:     req.Plot,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		h.logger.Error("failed to create farm", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.log(r, identity.UserID, http.MethodPost, "/api/v1/farms/", eventlog.Change{
		Resource:   domain.ResourceFarms,
		ResourceID: &created.ID,
		NewData:    created,
	})
	writeJSON(w, http.StatusCreated, created)
}

// ListFarms returns every farm.
func (h *EntityHandler) ListFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := h.farms.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list farms", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if farms == nil {
		farms = []domain.Farm{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": farms})
}

// GetFarm returns one farm by ID.
func (h *EntityHandler) GetFarm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid farm id")
		return
	}
	farm, err := h.farms.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Farm not found")
			return
		}
		h.logger.Error("failed to get farm", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, farm)
}

// DeleteFarm removes a farm.
func (h *EntityHandler) DeleteFarm(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, "Farm", domain.ResourceFarms, "/api/v1/farms/", func(id uuid.UUID) (any, error) {
		farm, err := h.farms.GetByID(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return farm, h.farms.Delete(r.Context(), id)
	})
}

type nameRequest struct {
	Name string `json:"name"`
}

// CreateCrop inserts a crop.
func (h *EntityHandler) CreateCrop(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Crop name is required")
		return
	}

	created, err := h.crops.Create(r.Context(), domain.Crop{Name: req.Name})
	if err != nil {
		h.logger.Error("failed to create crop", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.log(r, identity.UserID, http.MethodPost, "/api/v1/crops/", eventlog.Change{
		Resource:   domain.ResourceCrops,
		ResourceID: &created.ID,
		NewData:    created,
	})
	writeJSON(w, http.StatusCreated, created)
}

// ListCrops returns every crop.
func (h *EntityHandler) ListCrops(w http.ResponseWriter, r *http.Request) {
	crops, err := h.crops.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list crops", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if crops == nil {
		crops = []domain.Crop{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": crops})
}

// DeleteCrop removes a crop.
func (h *EntityHandler) DeleteCrop(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, "Crop", domain.ResourceCrops, "/api/v1/crops/", func(id uuid.UUID) (any, error) {
		crop, err := h.crops.GetByID(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return crop, h.crops.Delete(r.Context(), id)
	})
}

// CreateTask inserts a task category. Only the closed set of category
// names is accepted.
func (h *EntityHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if !domain.IsAllowedTaskName(req.Name) {
		writeError(w, http.StatusBadRequest, "Category doesn't exist")
		return
	}

	created, err := h.tasks.Create(r.Context(), domain.Task{Name: req.Name})
	if err != nil {
		h.logger.Error("failed to create task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.log(r, identity.UserID, http.MethodPost, "/api/v1/tasks/", eventlog.Change{
		Resource:   domain.ResourceTasks,
		ResourceID: &created.ID,
		NewData:    created,
	})
	writeJSON(w, http.StatusCreated, created)
}

// ListTasks returns every task category.
func (h *EntityHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tasks})
}

// DeleteTask removes a task category.
func (h *EntityHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, "Task", domain.ResourceTasks, "/api/v1/tasks/", func(id uuid.UUID) (any, error) {
		task, err := h.tasks.GetByID(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return task, h.tasks.Delete(r.Context(), id)
	})
}

// ListUsers returns every user.
func (h *EntityHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users})
}

// GetUser returns one user by ID.
func (h *EntityHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("failed to get user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser removes a user.
func (h *EntityHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, "User", domain.ResourceUsers, "/api/v1/users/", func(id uuid.UUID) (any, error) {
		user, err := h.users.GetByID(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return user, h.users.Delete(r.Context(), id)
	})
}

// deleteEntity is the shared load-delete-log flow for the thin CRUD.
func (h *EntityHandler) deleteEntity(w http.ResponseWriter, r *http.Request, label, resource, endpoint string, remove func(uuid.UUID) (any, error)) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+label+" id")
		return
	}

	old, err := remove(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, label+" not found")
			return
		}
		h.logger.Error("failed to delete "+label, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.log(r, identity.UserID, http.MethodDelete, endpoint, eventlog.Change{
		Resource:   resource,
		ResourceID: &id,
		OldData:    old,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": label + " deleted successfully"})
}

func (h *EntityHandler) log(r *http.Request, userID uuid.UUID, method, endpoint string, changes ...eventlog.Change) {
	h.events.Log(r.Context(), eventlog.Request{
		UserID:   &userID,
		Endpoint: endpoint,
		Method:   method,
	}, changes...)
}
