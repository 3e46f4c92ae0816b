package repository

import (
	"context"
	"time"

	"github.com/agrifield/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx both *pgxpool.Pool and pgx.Tx satisfy.
// Repository methods that must run inside a batch transaction take one
// explicitly; the rest use the pool the repository was built with.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FarmRepository defines the interface for farm operations
type FarmRepository interface {
	Create(ctx context.Context, farm domain.Farm) (domain.Farm, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Farm, error)
	List(ctx context.Context) ([]domain.Farm, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MapByNames(ctx context.Context, q Querier, names []string) (map[string]domain.Farm, error)
	InsertBulk(ctx context.Context, q Querier, farms []domain.Farm) ([]domain.Farm, error)
	UpdateProfile(ctx context.Context, q Querier, id uuid.UUID, farm domain.Farm) (domain.Farm, error)
}

// CropRepository defines the interface for crop operations
type CropRepository interface {
	Create(ctx context.Context, crop domain.Crop) (domain.Crop, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Crop, error)
	List(ctx context.Context) ([]domain.Crop, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MapByNames(ctx context.Context, q Querier, names []string) (map[string]domain.Crop, error)
	InsertBulk(ctx context.Context, q Querier, crops []domain.Crop) ([]domain.Crop, error)
}

// TaskRepository defines the interface for task category operations
type TaskRepository interface {
	Create(ctx context.Context, task domain.Task) (domain.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MapByNames(ctx context.Context, q Querier, names []string) (map[string]domain.Task, error)
	InsertBulk(ctx context.Context, q Querier, tasks []domain.Task) ([]domain.Task, error)
}

// UserRepository defines the interface for user operations
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MapByUsernames(ctx context.Context, q Querier, usernames []string) (map[string]domain.User, error)
	UpdateName(ctx context.Context, q Querier, id uuid.UUID, name *string) (domain.User, error)
}

// FarmTaskFilter narrows a farm-task listing. Zero values are skipped.
type FarmTaskFilter struct {
	Farm          string
	Task          string
	Crop          string
	UserName      string
	Username      string
	AssignedStart *time.Time
	AssignedEnd   *time.Time
	Priority      string
	TaskStatus    string
	Status        string
}

// FarmTaskSort orders a listing. Column is one of farm, task, crop,
// user, assigned_at, created_at.
type FarmTaskSort struct {
	Column    string
	Direction string
}

// FarmTaskPatch carries the mutable fields of a farm task update.
// Nil pointers leave the column untouched.
type FarmTaskPatch struct {
	FarmID       *uuid.UUID
	TaskID       *uuid.UUID
	UserID       *uuid.UUID
	CropID       *uuid.UUID
	AssignedAt   *time.Time
	Instructions *string
	Remarks      *string
	Priority     *domain.Priority
	Status       *domain.PublishStatus
	TaskStatus   *string
}

// DuplicateProbe identifies the logical farm-task key checked before
// insertion: farm + task + user + crop + calendar date of assignment.
type DuplicateProbe struct {
	FarmID     uuid.UUID
	TaskID     uuid.UUID
	UserID     *uuid.UUID
	CropID     *uuid.UUID
	AssignedAt *time.Time
	ExcludeID  *uuid.UUID
}

// FarmTaskRepository defines the interface for farm-task operations
type FarmTaskRepository interface {
	Create(ctx context.Context, q Querier, task domain.FarmTask) (domain.FarmTask, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.FarmTask, error)
	View(ctx context.Context, id uuid.UUID) (domain.FarmTaskDetail, error)
	List(ctx context.Context, filter FarmTaskFilter, sort FarmTaskSort, limit, offset int) ([]domain.FarmTaskDetail, int, error)
	Update(ctx context.Context, q Querier, id uuid.UUID, patch FarmTaskPatch) (domain.FarmTask, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindDuplicate(ctx context.Context, q Querier, probe DuplicateProbe) (*domain.FarmTask, error)
	InsertBulk(ctx context.Context, q Querier, tasks []domain.FarmTask) ([]domain.FarmTask, error)
	ListIncompleteDue(ctx context.Context, cutoff time.Time) ([]domain.FarmTask, error)
	ShiftIncompleteTo(ctx context.Context, cutoff, to time.Time) ([]domain.FarmTask, error)
}

// FarmCropRepository defines the interface for farm-crop associations
type FarmCropRepository interface {
	ExistingPairs(ctx context.Context, q Querier, pairs []domain.FarmCrop) (map[string]struct{}, error)
	InsertBulk(ctx context.Context, q Querier, pairs []domain.FarmCrop) ([]domain.FarmCrop, error)
	FindOrCreate(ctx context.Context, q Querier, farmID, cropID uuid.UUID) (domain.FarmCrop, bool, error)
}

// EventLogRepository stores audit entries drained from the event queue.
type EventLogRepository interface {
	Insert(ctx context.Context, entry domain.EventLogEntry) error
	InsertBulk(ctx context.Context, entries []domain.EventLogEntry) error
}

// PairKey keys a farm-crop association for set membership checks.
func PairKey(farmID, cropID uuid.UUID) string {
	return farmID.String() + "-" + cropID.String()
}
