package staff

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines the persistence interface for staff accounts.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*User, int, error)
}
