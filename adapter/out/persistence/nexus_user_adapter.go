// Package persistence implements the relational repositories over
// sqlx/pgx.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/apperr"
)

// UserRepository implements out.UserRepository.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) out.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, display_name, push_token, created_at, updated_at
		FROM users
		WHERE id = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.DisplayName)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error {
	query := `UPDATE users SET push_token = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("update push token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (r *UserRepository) ListUsersWithPushToken(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, email, display_name, push_token, created_at, updated_at
		FROM users
		WHERE push_token IS NOT NULL AND push_token <> ''`

	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list pushable users: %w", err)
	}

	users := make([]*domain.User, len(rows))
	for i, row := range rows {
		users[i] = row.toDomain()
	}
	return users, nil
}

type userRow struct {
	ID          uuid.UUID      `db:"id"`
	Email       string         `db:"email"`
	DisplayName sql.NullString `db:"display_name"`
	PushToken   sql.NullString `db:"push_token"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *userRow) toDomain() *domain.User {
	user := &domain.User{
		ID:        r.ID,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.DisplayName.Valid {
		user.DisplayName = &r.DisplayName.String
	}
	if r.PushToken.Valid {
		user.PushToken = &r.PushToken.String
	}
	return user
}

// asDataIntegrity maps FK and unique violations to the shared error
// code so the services can run their auto-provision retry.
func asDataIntegrity(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "23505": // foreign_key_violation, unique_violation
			return apperr.DataIntegrity(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
