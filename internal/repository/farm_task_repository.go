package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrifield/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const farmTaskColumns = "id, farm_id, task_id, user_id, crop_id, assigned_at, instructions, remarks, priority, status, task_status, created_by, created_at, updated_at"

type farmTaskRepository struct {
	pool *pgxpool.Pool
}

// NewFarmTaskRepository creates a PostgreSQL-backed farm-task repository
func NewFarmTaskRepository(pool *pgxpool.Pool) FarmTaskRepository {
	return &farmTaskRepository{pool: pool}
}

func scanFarmTask(row pgx.Row) (domain.FarmTask, error) {
	var t domain.FarmTask
	err := row.Scan(
		&t.ID, &t.FarmID, &t.TaskID, &t.UserID, &t.CropID, &t.AssignedAt,
		&t.Instructions, &t.Remarks, &t.Priority, &t.Status, &t.TaskStatus,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (r *farmTaskRepository) Create(ctx context.Context, q Querier, task domain.FarmTask) (domain.FarmTask, error) {
	if task.Priority == "" {
		task.Priority = domain.PriorityNormal
	}
	if task.Status == "" {
		task.Status = domain.PublishStatusPublished
	}
	if task.TaskStatus == "" {
		task.TaskStatus = domain.TaskStatusNotStarted
	}
	row := q.QueryRow(ctx, `
		INSERT INTO farms_tasks (farm_id, task_id, user_id, crop_id, assigned_at, instructions, remarks, priority, status, task_status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+farmTaskColumns,
		task.FarmID, task.TaskID, task.UserID, task.CropID, task.AssignedAt,
		task.Instructions, task.Remarks, task.Priority, task.Status, task.TaskStatus, task.CreatedBy,
	)
	created, err := scanFarmTask(row)
	if err != nil {
		return domain.FarmTask{}, fmt.Errorf("failed to create farm task: %w", err)
	}
	return created, nil
}

func (r *farmTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FarmTask, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+farmTaskColumns+` FROM farms_tasks WHERE id = $1`, id)
	task, err := scanFarmTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FarmTask{}, ErrNotFound
		}
		return domain.FarmTask{}, fmt.Errorf("failed to get farm task: %w", err)
	}
	return task, nil
}

const farmTaskDetailSelect = `
	SELECT ft.id, ft.farm_id, ft.task_id, ft.user_id, ft.crop_id, ft.assigned_at,
	       ft.instructions, ft.remarks, ft.priority, ft.status, ft.task_status,
	       ft.created_by, ft.created_at, ft.updated_at,
	       t.name, f.name, f.address, f.location, f.image_url, f.plot,
	       c.name, u.name, u.username
	FROM farms_tasks ft
	JOIN tasks t ON t.id = ft.task_id
	JOIN farms f ON f.id = ft.farm_id
	LEFT JOIN crops c ON c.id = ft.crop_id
	LEFT JOIN users u ON u.id = ft.user_id`

func scanFarmTaskDetail(rows pgx.Rows, extra ...any) (domain.FarmTaskDetail, error) {
	var d domain.FarmTaskDetail
	dest := []any{
		&d.ID, &d.FarmID, &d.TaskID, &d.UserID, &d.CropID, &d.AssignedAt,
		&d.Instructions, &d.Remarks, &d.Priority, &d.Status, &d.TaskStatus,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
		&d.TaskName, &d.FarmName, &d.FarmAddress, &d.FarmLocation, &d.FarmImage, &d.FarmPlot,
		&d.CropName, &d.UserName, &d.Username,
	}
	dest = append(dest, extra...)
	err := rows.Scan(dest...)
	return d, err
}

func (r *farmTaskRepository) View(ctx context.Context, id uuid.UUID) (domain.FarmTaskDetail, error) {
	rows, err := r.pool.Query(ctx, farmTaskDetailSelect+` WHERE ft.id = $1`, id)
	if err != nil {
		return domain.FarmTaskDetail{}, fmt.Errorf("failed to view farm task: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.FarmTaskDetail{}, fmt.Errorf("failed to view farm task: %w", err)
		}
		return domain.FarmTaskDetail{}, ErrNotFound
	}
	detail, err := scanFarmTaskDetail(rows)
	if err != nil {
		return domain.FarmTaskDetail{}, fmt.Errorf("failed to scan farm task: %w", err)
	}
	return detail, nil
}

var farmTaskSortColumns = map[string]string{
	"farm":        "f.name",
	"task":        "t.name",
	"crop":        "c.name",
	"user":        "u.name",
	"assigned_at": "ft.assigned_at",
	"created_at":  "ft.created_at",
}

func (r *farmTaskRepository) List(ctx context.Context, filter FarmTaskFilter, sort FarmTaskSort, limit, offset int) ([]domain.FarmTaskDetail, int, error) {
	var conds []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Farm != "" {
		add("f.name = $%d", filter.Farm)
	}
	if filter.Task != "" {
		add("t.name = $%d", filter.Task)
	}
	if filter.Crop != "" {
		add("c.name = $%d", filter.Crop)
	}
	if filter.UserName != "" {
		add("u.name = $%d", filter.UserName)
	}
	if filter.Username != "" {
		add("u.username = $%d", filter.Username)
	}
	if filter.AssignedStart != nil && filter.AssignedEnd != nil {
		add("ft.assigned_at >= $%d", *filter.AssignedStart)
		add("ft.assigned_at <= $%d", *filter.AssignedEnd)
	}
	if filter.Priority != "" {
		add("ft.priority = $%d", strings.ToLower(filter.Priority))
	}
	if filter.TaskStatus != "" {
		add("ft.task_status = $%d", strings.ToLower(filter.TaskStatus))
	}
	if filter.Status != "" {
		add("ft.status = $%d", strings.ToLower(filter.Status))
	}

	query := farmTaskDetailSelect
	countQuery := `SELECT COUNT(*) FROM farms_tasks ft
	JOIN tasks t ON t.id = ft.task_id
	JOIN farms f ON f.id = ft.farm_id
	LEFT JOIN crops c ON c.id = ft.crop_id
	LEFT JOIN users u ON u.id = ft.user_id`
	if len(conds) > 0 {
		where := " WHERE " + strings.Join(conds, " AND ")
		query += where
		countQuery += where
	}

	orderBy := "ft.created_at"
	direction := "DESC"
	if sort.Column != "" {
		col, ok := farmTaskSortColumns[sort.Column]
		if !ok {
			return nil, 0, fmt.Errorf("invalid sorting column: %s", sort.Column)
		}
		orderBy = col
		if strings.EqualFold(sort.Direction, "asc") {
			direction = "ASC"
		}
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderBy, direction)

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var total int
	countArgs := args
	if limit > 0 {
		countArgs = args[:len(args)-2]
	}
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count farm tasks: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list farm tasks: %w", err)
	}
	defer rows.Close()

	var details []domain.FarmTaskDetail
	for rows.Next() {
		detail, err := scanFarmTaskDetail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan farm task: %w", err)
		}
		details = append(details, detail)
	}
	return details, total, rows.Err()
}

func (r *farmTaskRepository) Update(ctx context.Context, q Querier, id uuid.UUID, patch FarmTaskPatch) (domain.FarmTask, error) {
	var sets []string
	args := []any{id}

	set := func(col string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.FarmID != nil {
		set("farm_id", *patch.FarmID)
	}
	if patch.TaskID != nil {
		set("task_id", *patch.TaskID)
	}
	if patch.UserID != nil {
		set("user_id", *patch.UserID)
	}
	if patch.CropID != nil {
		set("crop_id", *patch.CropID)
	}
	if patch.AssignedAt != nil {
		set("assigned_at", *patch.AssignedAt)
	}
	if patch.Instructions != nil {
		set("instructions", *patch.Instructions)
	}
	if patch.Remarks != nil {
		set("remarks", *patch.Remarks)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.TaskStatus != nil {
		set("task_status", *patch.TaskStatus)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	row := q.QueryRow(ctx,
		"UPDATE farms_tasks SET "+strings.Join(sets, ", ")+" WHERE id = $1 RETURNING "+farmTaskColumns,
		args...,
	)
	updated, err := scanFarmTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FarmTask{}, ErrNotFound
		}
		return domain.FarmTask{}, fmt.Errorf("failed to update farm task: %w", err)
	}
	return updated, nil
}

func (r *farmTaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM farms_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete farm task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDuplicate probes for an existing assignment of the same task on
// the same farm, user, crop and calendar date. Returns nil when no
// duplicate exists.
func (r *farmTaskRepository) FindDuplicate(ctx context.Context, q Querier, probe DuplicateProbe) (*domain.FarmTask, error) {
	conds := []string{"farm_id = $1", "task_id = $2"}
	args := []any{probe.FarmID, probe.TaskID}

	var assignedDate any
	if probe.AssignedAt != nil {
		assignedDate = probe.AssignedAt.Format("2006-01-02")
	}
	args = append(args, assignedDate)
	conds = append(conds, fmt.Sprintf("DATE(assigned_at) IS NOT DISTINCT FROM $%d::date", len(args)))

	if probe.UserID != nil {
		args = append(args, *probe.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if probe.CropID != nil {
		args = append(args, *probe.CropID)
		conds = append(conds, fmt.Sprintf("crop_id = $%d", len(args)))
	}
	if probe.ExcludeID != nil {
		args = append(args, *probe.ExcludeID)
		conds = append(conds, fmt.Sprintf("id <> $%d", len(args)))
	}

	row := q.QueryRow(ctx,
		"SELECT "+farmTaskColumns+" FROM farms_tasks WHERE "+strings.Join(conds, " AND ")+" LIMIT 1",
		args...,
	)
	existing, err := scanFarmTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to probe duplicate farm task: %w", err)
	}
	return &existing, nil
}

func (r *farmTaskRepository) InsertBulk(ctx context.Context, q Querier, tasks []domain.FarmTask) ([]domain.FarmTask, error) {
	created := make([]domain.FarmTask, 0, len(tasks))
	for _, task := range tasks {
		inserted, err := r.Create(ctx, q, task)
		if err != nil {
			return nil, err
		}
		created = append(created, inserted)
	}
	return created, nil
}

func (r *farmTaskRepository) ListIncompleteDue(ctx context.Context, cutoff time.Time) ([]domain.FarmTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+farmTaskColumns+` FROM farms_tasks
		WHERE assigned_at <= $1 AND task_status IN ($2, $3)`,
		cutoff, domain.TaskStatusNotStarted, domain.TaskStatusNotCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete farm tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.FarmTask
	for rows.Next() {
		task, err := scanFarmTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan farm task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *farmTaskRepository) ShiftIncompleteTo(ctx context.Context, cutoff, to time.Time) ([]domain.FarmTask, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE farms_tasks SET assigned_at = $2, task_status = $3, updated_at = now()
		WHERE assigned_at <= $1 AND task_status IN ($4, $3)
		RETURNING `+farmTaskColumns,
		cutoff, to, domain.TaskStatusNotCompleted, domain.TaskStatusNotStarted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to shift farm tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.FarmTask
	for rows.Next() {
		task, err := scanFarmTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan farm task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
