package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/fault"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[string]User{}}
}

func (r *memoryRepo) Create(_ context.Context, params CreateParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == params.Email {
			return User{}, ErrEmailTaken
		}
	}
	r.seq++
	now := time.Now()
	user := User{
		ID:           fmt.Sprintf("user-%d", r.seq),
		Email:        params.Email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         params.Role,
		PasswordHash: params.PasswordHash,
		ProfileImage: params.ProfileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepo) GetByEmail(_ context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *memoryRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	r.users[id] = user
	return nil
}

func (r *memoryRepo) UpdateProfileImage(_ context.Context, id, image string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	user.ProfileImage = image
	r.users[id] = user
	return user, nil
}

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) SendPasswordChanged(_ context.Context, to, _ string) error {
	n.sent = append(n.sent, to)
	return n.err
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingNotifier) {
	t.Helper()
	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour, "test")
	require.NoError(t, err)
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, tokens, notifier, zerolog.Nop()).WithHashCost(bcrypt.MinCost)
	return svc, repo, notifier
}

func validSignup() SignupInput {
	return SignupInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "  Ada@Example.com ",
		Password:  "correct-horse",
	}
}

func TestSignupAndLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Equal(t, "ada@example.com", session.User.Email)
	require.Equal(t, auth.RoleParticipant, session.User.Role)

	login, err := svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, session.User.ID, login.User.ID)
}

func TestSignupOrganizerRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	input := validSignup()
	input.Role = "organizer"

	session, err := svc.Signup(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, auth.RoleOrganizer, session.User.Role)
}

func TestSignupRejectsPrivilegedRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	input := validSignup()
	input.Role = "admin"

	_, err := svc.Signup(context.Background(), input)
	require.Equal(t, fault.KindValidation, fault.KindOf(err))
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := map[string]func(*SignupInput){
		"missing first name": func(in *SignupInput) { in.FirstName = " " },
		"bad email":          func(in *SignupInput) { in.Email = "nope" },
		"short password":     func(in *SignupInput) { in.Password = "short" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := validSignup()
			mutate(&input)
			_, err := svc.Signup(context.Background(), input)
			require.Equal(t, fault.KindValidation, fault.KindOf(err))
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), validSignup())
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginFailures(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "whatever"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginExternalAccountHasNoPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.ResolveExternal(ctx, ExternalProfile{Email: "mod@example.com"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "mod@example.com", Password: "anything"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	session, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, session.User.ID, ChangePasswordInput{CurrentPassword: "wrong", NewPassword: "another-secret"})
	require.ErrorIs(t, err, ErrWrongPassword)

	err = svc.ChangePassword(ctx, session.User.ID, ChangePasswordInput{CurrentPassword: "correct-horse"})
	require.Equal(t, fault.KindValidation, fault.KindOf(err))

	err = svc.ChangePassword(ctx, session.User.ID, ChangePasswordInput{CurrentPassword: "correct-horse", NewPassword: "another-secret"})
	require.NoError(t, err)
	require.Equal(t, []string{"ada@example.com"}, notifier.sent)

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "another-secret"})
	require.NoError(t, err)
}

func TestChangePasswordNotifierFailureIsNotFatal(t *testing.T) {
	svc, _, notifier := newTestService(t)
	notifier.err = errors.New("smtp down")
	ctx := context.Background()
	session, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, session.User.ID, ChangePasswordInput{CurrentPassword: "correct-horse", NewPassword: "another-secret"})
	require.NoError(t, err)
}

func TestChangePasswordExternalAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.ResolveExternal(ctx, ExternalProfile{Email: "mod@example.com"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, ChangePasswordInput{CurrentPassword: "x", NewPassword: "another-secret"})
	require.ErrorIs(t, err, ErrNoPassword)
}

func TestResolveExternalCreatesModeratorOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.ResolveExternal(ctx, ExternalProfile{Email: "Mod@Example.com", FirstName: "Mo", Picture: "https://img.example.com/a.png"})
	require.NoError(t, err)
	require.Equal(t, auth.RoleModerator, first.Role)
	require.Empty(t, first.PasswordHash)
	require.Equal(t, "https://img.example.com/a.png", first.ProfileImage)

	second, err := svc.ResolveExternal(ctx, ExternalProfile{Email: "mod@example.com"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestSetProfileImage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	_, err = svc.SetProfileImage(ctx, session.User.ID, "")
	require.Equal(t, fault.KindValidation, fault.KindOf(err))

	updated, err := svc.SetProfileImage(ctx, session.User.ID, "/uploads/abc.png")
	require.NoError(t, err)
	require.Equal(t, "/uploads/abc.png", updated.ProfileImage)
}

func TestGetUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.Equal(t, fault.KindAuth, fault.KindOf(err))
}

func TestBootstrapAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	admin, created, err := svc.BootstrapAdmin(ctx, "root@example.com", "bootstrap-secret")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, auth.RoleAdmin, admin.Role)

	again, created, err := svc.BootstrapAdmin(ctx, "root@example.com", "bootstrap-secret")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, admin.ID, again.ID)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", User{FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	require.Equal(t, "a@example.com", User{Email: "a@example.com"}.DisplayName())
}
