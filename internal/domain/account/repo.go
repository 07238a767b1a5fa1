package account

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists accounts. Lookups return pgx.ErrNoRows when the
// user does not exist.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
