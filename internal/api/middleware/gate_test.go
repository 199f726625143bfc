package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/stretchr/testify/require"
)

const gateSecret = "0123456789abcdef0123456789abcdef"

type stubUsers map[string]users.User

func (s stubUsers) Get(_ context.Context, id string) (users.User, error) {
	user, ok := s[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return user, nil
}

func newTestGate(t *testing.T) (*Gate, *auth.TokenManager) {
	t.Helper()
	tokens, err := auth.NewTokenManager(gateSecret, time.Hour, "eventdesk")
	require.NoError(t, err)
	lookup := stubUsers{
		"u-part": {ID: "u-part", Email: "p@example.org", Role: auth.RoleParticipant},
		"u-org":  {ID: "u-org", Email: "o@example.org", Role: auth.RoleOrganizer},
	}
	return NewGate(tokens, lookup, "eventdesk_session", "test"), tokens
}

func issue(t *testing.T, tokens *auth.TokenManager, userID string) string {
	t.Helper()
	token, _, err := tokens.Issue(userID)
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGateRequire(t *testing.T) {
	gate, tokens := newTestGate(t)
	expired := tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	stale, _, err := expired.Issue("u-part")
	require.NoError(t, err)

	tests := []struct {
		name       string
		roles      []auth.Role
		setup      func(r *http.Request)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing token",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "missing_token",
		},
		{
			name:       "garbage token",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_token",
		},
		{
			name:       "expired token",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+stale) },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "expired_token",
		},
		{
			name:       "unknown user",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+issue(t, tokens, "ghost")) },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "user_not_found",
		},
		{
			name:       "wrong role",
			roles:      []auth.Role{auth.RoleOrganizer, auth.RoleAdmin},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+issue(t, tokens, "u-part")) },
			wantStatus: http.StatusForbidden,
			wantCode:   "forbidden",
		},
		{
			name:  "session cookie",
			roles: []auth.Role{auth.RoleOrganizer},
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "eventdesk_session", Value: issue(t, tokens, "u-org")})
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "any role",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+issue(t, tokens, "u-part")) },
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := gate.Require(tt.roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				user, ok := CurrentUser(r.Context())
				require.True(t, ok)
				require.NotEmpty(t, user.ID)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantStatus == http.StatusOK, called)
			if tt.wantCode == "" {
				return
			}
			body := decodeBody(t, rec)
			require.Equal(t, false, body["success"])
			require.Equal(t, tt.wantCode, body["error"])
			if tt.wantStatus == http.StatusUnauthorized {
				require.Equal(t, false, body["authenticated"])
			}
		})
	}
}

func TestGateOptional(t *testing.T) {
	gate, tokens := newTestGate(t)

	var seen *users.User
	handler := gate.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := CurrentUser(r.Context()); ok {
			seen = &user
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/x", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, seen)

	req := httptest.NewRequest(http.MethodGet, "/events/x", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, "u-org"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "u-org", seen.ID)

	req = httptest.NewRequest(http.MethodGet, "/events/x", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentPrincipal(t *testing.T) {
	_, ok := CurrentPrincipal(context.Background())
	require.False(t, ok)

	ctx := WithUser(context.Background(), users.User{ID: "u-1", Role: auth.RoleAdmin})
	principal, ok := CurrentPrincipal(ctx)
	require.True(t, ok)
	require.Equal(t, "u-1", principal.UserID)
	require.True(t, principal.IsAdmin())
}
