package users

import (
	"context"
	"time"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/fault"
)

var (
	ErrUserNotFound       = fault.New(fault.KindAuth, "user_not_found", "user not found")
	ErrEmailTaken         = fault.New(fault.KindConflict, "email_taken", "email is already registered")
	ErrInvalidCredentials = fault.New(fault.KindAuth, "invalid_credentials", "invalid email or password")
	ErrWrongPassword      = fault.New(fault.KindValidation, "wrong_password", "current password is incorrect")
	ErrNoPassword         = fault.New(fault.KindValidation, "password_not_set", "account signs in with an external provider")
)

// User is an account. PasswordHash is empty for accounts created through the
// external identity provider.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         auth.Role `json:"role"`
	ProfileImage string    `json:"profile_image,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName is the name shown to other users.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}

type CreateParams struct {
	Email        string
	FirstName    string
	LastName     string
	Role         auth.Role
	PasswordHash string
	ProfileImage string
}

// Repository is the persistence contract for accounts. Implementations return
// ErrUserNotFound for missing rows and ErrEmailTaken on unique violations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfileImage(ctx context.Context, id, image string) (User, error)
}

// Notifier delivers account notices. Delivery failures are logged by the
// service and never fail the triggering operation.
type Notifier interface {
	SendPasswordChanged(ctx context.Context, to, name string) error
}

// Session is an authenticated user with a freshly issued token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type SignupInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Role      string `json:"role" validate:"omitempty,oneof=participant organizer"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// ExternalProfile is the identity returned by the OAuth provider.
type ExternalProfile struct {
	Email     string
	FirstName string
	LastName  string
	Picture   string
}
