package port

import (
	"context"
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// FindByIdentifier looks a user up by phone or email. A nil orgID searches every organization.
	FindByIdentifier(ctx context.Context, kind domain.IdentifierKind, identifier string, orgID *int64) (*domain.User, error)
	Update(ctx context.Context, id string, patch domain.UserPatch) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	// IncrementLoginAttempts atomically bumps the counter and sets locked_until to lockUntil
	// once the new value reaches threshold. It returns the updated record.
	IncrementLoginAttempts(ctx context.Context, id string, threshold int, lockUntil time.Time) (*domain.User, error)
	ResetLoginAttempts(ctx context.Context, id string, loginAt time.Time) error
}
