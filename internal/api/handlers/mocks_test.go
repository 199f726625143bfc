package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eventdesk/server/internal/api/middleware"
	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/auth/oauth"
	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/domain/participations"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Signup(ctx context.Context, input users.SignupInput) (users.Session, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(users.Session), args.Error(1)
}

func (m *MockAccountService) Login(ctx context.Context, input users.LoginInput) (users.Session, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(users.Session), args.Error(1)
}

func (m *MockAccountService) IssueSession(user users.User) (users.Session, error) {
	args := m.Called(user)
	return args.Get(0).(users.Session), args.Error(1)
}

func (m *MockAccountService) ResolveExternal(ctx context.Context, profile users.ExternalProfile) (users.User, error) {
	args := m.Called(ctx, profile)
	return args.Get(0).(users.User), args.Error(1)
}

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) AuthURL(state string) string {
	return "https://idp.example.com/auth?state=" + state
}

func (m *MockIdentityProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityProvider) FetchProfile(ctx context.Context, accessToken string) (oauth.Profile, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0).(oauth.Profile), args.Error(1)
}

type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) Create(ctx context.Context, actor auth.Principal, input events.CreateInput) (events.Event, error) {
	args := m.Called(ctx, actor, input)
	return args.Get(0).(events.Event), args.Error(1)
}

func (m *MockEventService) Get(ctx context.Context, id string, viewer *auth.Principal) (events.Event, error) {
	args := m.Called(ctx, id, viewer)
	return args.Get(0).(events.Event), args.Error(1)
}

func (m *MockEventService) Publish(ctx context.Context, actor auth.Principal, id string) (events.Event, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(events.Event), args.Error(1)
}

func (m *MockEventService) Cancel(ctx context.Context, actor auth.Principal, id string) (events.Event, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(events.Event), args.Error(1)
}

func (m *MockEventService) Complete(ctx context.Context, actor auth.Principal, id string) (events.Event, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(events.Event), args.Error(1)
}

func (m *MockEventService) ListPublic(ctx context.Context, filters events.Filters, page events.Page) (events.ListResult[events.Event], error) {
	args := m.Called(ctx, filters, page)
	return args.Get(0).(events.ListResult[events.Event]), args.Error(1)
}

func (m *MockEventService) ListByOrganizer(ctx context.Context, actor auth.Principal, page events.Page) (events.ListResult[events.Event], error) {
	args := m.Called(ctx, actor, page)
	return args.Get(0).(events.ListResult[events.Event]), args.Error(1)
}

func (m *MockEventService) ListJoined(ctx context.Context, actor auth.Principal, page events.Page) (events.ListResult[events.Joined], error) {
	args := m.Called(ctx, actor, page)
	return args.Get(0).(events.ListResult[events.Joined]), args.Error(1)
}

type MockRegistrationService struct {
	mock.Mock
}

func (m *MockRegistrationService) Join(ctx context.Context, eventID string, member users.User) (participations.Participation, error) {
	args := m.Called(ctx, eventID, member)
	return args.Get(0).(participations.Participation), args.Error(1)
}

func (m *MockRegistrationService) Leave(ctx context.Context, eventID, userID string) error {
	args := m.Called(ctx, eventID, userID)
	return args.Error(0)
}

func (m *MockRegistrationService) Ticket(ctx context.Context, eventID, userID string) (participations.Ticket, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Get(0).(participations.Ticket), args.Error(1)
}

func (m *MockRegistrationService) CheckIn(ctx context.Context, payload string) (participations.Attendee, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(participations.Attendee), args.Error(1)
}

func (m *MockRegistrationService) Roster(ctx context.Context, actor auth.Principal, eventID string) ([]participations.Attendee, error) {
	args := m.Called(ctx, actor, eventID)
	return args.Get(0).([]participations.Attendee), args.Error(1)
}

type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) ChangePassword(ctx context.Context, userID string, input users.ChangePasswordInput) error {
	args := m.Called(ctx, userID, input)
	return args.Error(0)
}

func (m *MockProfileService) SetProfileImage(ctx context.Context, userID, image string) (users.User, error) {
	args := m.Called(ctx, userID, image)
	return args.Get(0).(users.User), args.Error(1)
}

// stubImages records the bytes it was handed.
type stubImages struct {
	path     string
	err      error
	received []byte
}

func (s *stubImages) SaveImage(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.received = data
	return s.path, s.err
}

var (
	participant = users.User{ID: "user-1", Email: "pat@example.com", FirstName: "Pat", LastName: "Lee", Role: auth.RoleParticipant}
	organizer   = users.User{ID: "user-2", Email: "org@example.com", FirstName: "Olu", LastName: "Ade", Role: auth.RoleOrganizer}
)

func asUser(r *http.Request, user users.User) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), user))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
