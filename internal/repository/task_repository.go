package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/agrifield/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = "id, name, created_at, updated_at"

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a PostgreSQL-backed task category repository
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *taskRepository) Create(ctx context.Context, task domain.Task) (domain.Task, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (name) VALUES ($1)
		RETURNING `+taskColumns,
		task.Name,
	)
	created, err := scanTask(row)
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return created, nil
}

func (r *taskRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (r *taskRepository) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepository) MapByNames(ctx context.Context, q Querier, names []string) (map[string]domain.Task, error) {
	out := make(map[string]domain.Task, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tasks by name: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out[task.Name] = task
	}
	return out, rows.Err()
}

func (r *taskRepository) InsertBulk(ctx context.Context, q Querier, tasks []domain.Task) ([]domain.Task, error) {
	var created []domain.Task
	for _, task := range tasks {
		row := q.QueryRow(ctx, `
			INSERT INTO tasks (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
			RETURNING `+taskColumns,
			task.Name,
		)
		inserted, err := scanTask(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to insert task %q: %w", task.Name, err)
		}
		created = append(created, inserted)
	}
	return created, nil
}
