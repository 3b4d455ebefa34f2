package account

import "context"

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	// FindByEmailOrPhone returns the first user, active or not, matching
	// either value. Empty values are ignored.
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}
