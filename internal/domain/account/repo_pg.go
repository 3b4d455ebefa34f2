package account

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, name, email, phone, password_hash, role, active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role,
		&u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func uniqueConflict(err error) error {
	switch {
	case db.IsUniqueViolation(err, "users_email_key"):
		return apperr.Conflict("user with this email already exists")
	case db.IsUniqueViolation(err, "users_phone_key"):
		return apperr.Conflict("user with this phone already exists")
	}
	return nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (name, email, phone, password_hash, role, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at`,
		u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.Active,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if conflict := uniqueConflict(err); conflict != nil {
		return conflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (r *userRepoPG) FindByEmailOrPhone(ctx context.Context, email, phone string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `
		SELECT `+userCols+` FROM users
		WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2)
		ORDER BY id
		LIMIT 1`, email, phone))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user", email+phone)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET name=$2, email=$3, phone=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Name, u.Email, u.Phone,
	).Scan(&u.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("user", u.ID)
	}
	if conflict := uniqueConflict(err); conflict != nil {
		return conflict
	}
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user", id)
	}
	return nil
}
