package out

import (
	"context"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// UserRepository defines the interface for user persistence
type UserRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// CreateUser inserts the row if missing; it is the auto-provision
	// path and must be idempotent on id.
	CreateUser(ctx context.Context, user *domain.User) error
	UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error
	// ListUsersWithPushToken feeds the briefing scheduler.
	ListUsersWithPushToken(ctx context.Context) ([]*domain.User, error)
}
