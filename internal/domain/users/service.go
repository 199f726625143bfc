package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/fault"
	"github.com/eventdesk/server/internal/validation"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for password hashes.
const BcryptCost = 12

type Service struct {
	repo     Repository
	tokens   *auth.TokenManager
	notifier Notifier
	validate *validator.Validate
	hashCost int
	logger   zerolog.Logger
}

func NewService(repo Repository, tokens *auth.TokenManager, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		validate: validation.New(),
		hashCost: BcryptCost,
		logger:   logger.With().Str("component", "users").Logger(),
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// Signup creates a participant or organizer account and signs it in.
func (s *Service) Signup(ctx context.Context, input SignupInput) (Session, error) {
	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validation.Check(s.validate, input); err != nil {
		return Session{}, err
	}

	role := auth.RoleParticipant
	if input.Role != "" {
		parsed, err := auth.ParseRole(input.Role)
		if err != nil {
			return Session{}, err
		}
		role = parsed
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return Session{}, err
	}

	user, err := s.repo.Create(ctx, CreateParams{
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		return Session{}, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user signed up")
	return s.IssueSession(user)
}

// Login checks email and password. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, input LoginInput) (Session, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validation.Check(s.validate, input); err != nil {
		return Session{}, err
	}

	user, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if user.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.IssueSession(user)
}

// IssueSession signs a token for user.
func (s *Service) IssueSession(user User) (Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ErrUserNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// ChangePassword replaces the password after checking the current one. The
// notice email is best effort.
func (s *Service) ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) error {
	if err := validation.Check(s.validate, input); err != nil {
		return err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == "" {
		return ErrNoPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := s.hash(input.NewPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("password changed")
	if s.notifier != nil {
		if err := s.notifier.SendPasswordChanged(ctx, user.Email, user.DisplayName()); err != nil {
			s.logger.Error().Err(fault.Dependency("send password changed email", err)).Str("user_id", user.ID).Msg("notification failed")
		}
	}
	return nil
}

// SetProfileImage stores a reference to an uploaded image.
func (s *Service) SetProfileImage(ctx context.Context, userID, image string) (User, error) {
	if strings.TrimSpace(image) == "" {
		return User{}, fault.Validation("profile_image", "is required")
	}
	return s.repo.UpdateProfileImage(ctx, userID, image)
}

// ResolveExternal returns the account for an external identity, creating a
// moderator without a password on first login.
func (s *Service) ResolveExternal(ctx context.Context, profile ExternalProfile) (User, error) {
	email := normalizeEmail(profile.Email)
	if email == "" {
		return User{}, fault.Validation("email", "is required")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	user, err = s.repo.Create(ctx, CreateParams{
		Email:        email,
		FirstName:    strings.TrimSpace(profile.FirstName),
		LastName:     strings.TrimSpace(profile.LastName),
		Role:         auth.RoleModerator,
		ProfileImage: profile.Picture,
	})
	if errors.Is(err, ErrEmailTaken) {
		// Lost a race with a concurrent first login.
		return s.repo.GetByEmail(ctx, email)
	}
	if err != nil {
		return User{}, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("external account created")
	return user, nil
}

// BootstrapAdmin creates the initial admin account if the email is unused.
// It reports whether an account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (User, bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, false, fault.Validation("", "admin email and password are required")
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, false, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return User{}, false, err
	}
	user, err := s.repo.Create(ctx, CreateParams{
		Email:        email,
		FirstName:    "Admin",
		Role:         auth.RoleAdmin,
		PasswordHash: hash,
	})
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

func (s *Service) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
