package postgres

import (
	"context"
	"fmt"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/eventdesk/server/internal/fault"
	"github.com/jackc/pgx/v5"
)

var _ users.Repository = (*UserRepository)(nil)

type UserRepository struct {
	pool *connPool
	tx   pgx.Tx
}

const userColumns = `id, email, first_name, last_name, role, password_hash, profile_image, created_at, updated_at`

func scanUser(row pgx.Row) (users.User, error) {
	var (
		u            users.User
		role         string
		passwordHash *string
		profileImage *string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role, &passwordHash, &profileImage, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return users.User{}, err
	}
	u.Role = auth.Role(role)
	u.PasswordHash = derefString(passwordHash)
	u.ProfileImage = derefString(profileImage)
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, params users.CreateParams) (users.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
INSERT INTO users (email, first_name, last_name, role, password_hash, profile_image)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
RETURNING `+userColumns,
		params.Email, params.FirstName, params.LastName, string(params.Role), params.PasswordHash, params.ProfileImage,
	)
	user, err := scanUser(row)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return users.User{}, users.ErrEmailTaken
		}
		return users.User{}, fault.Store("create user", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (users.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.one(row, "get user")
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (users.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return r.one(row, "get user by email")
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		if isMissingRow(err) {
			return users.ErrUserNotFound
		}
		return fault.Store("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateProfileImage(ctx context.Context, id, image string) (users.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
UPDATE users SET profile_image = $2, updated_at = now()
 WHERE id = $1
RETURNING `+userColumns, id, image)
	return r.one(row, "update profile image")
}

func (r *UserRepository) one(row pgx.Row, op string) (users.User, error) {
	user, err := scanUser(row)
	if err != nil {
		if isMissingRow(err) {
			return users.User{}, users.ErrUserNotFound
		}
		return users.User{}, fault.Store(op, fmt.Errorf("scan user: %w", err))
	}
	return user, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
