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

const userColumns = "id, name, username, email, phone_number, profile_image, address, created_by, status, created_at, updated_at"

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a PostgreSQL-backed user repository
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Username, &u.Email, &u.PhoneNumber,
		&u.ProfileImage, &u.Address, &u.CreatedBy, &u.Status,
		&u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) MapByUsernames(ctx context.Context, q Querier, usernames []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE username = ANY($1)`, usernames)
	if err != nil {
		return nil, fmt.Errorf("failed to look up users by username: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out[user.Username] = user
	}
	return out, rows.Err()
}

func (r *userRepository) UpdateName(ctx context.Context, q Querier, id uuid.UUID, name *string) (domain.User, error) {
	row := q.QueryRow(ctx, `
		UPDATE users SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, name,
	)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	return updated, nil
}
