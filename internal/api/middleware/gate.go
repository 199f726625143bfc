package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/eventdesk/server/internal/api/problem"
	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/domain/users"
)

type contextKey string

const userKey contextKey = "user"

// UserLookup resolves a verified token subject to an account.
type UserLookup interface {
	Get(ctx context.Context, id string) (users.User, error)
}

// Gate authenticates requests with a bearer token or the session cookie and
// optionally restricts them to a set of roles.
type Gate struct {
	tokens     *auth.TokenManager
	users      UserLookup
	cookieName string
	env        string
}

func NewGate(tokens *auth.TokenManager, lookup UserLookup, cookieName, env string) *Gate {
	return &Gate{tokens: tokens, users: lookup, cookieName: cookieName, env: env}
}

// Require rejects requests without a valid session with 401 and requests
// whose user holds none of roles with 403. No roles means any signed-in user.
func (g *Gate) Require(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := auth.Roles(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := g.authenticate(r)
			if err != nil {
				problem.Write(w, r, err, g.env, problem.WithAuthenticated(false))
				return
			}
			if !allowed.Allows(user.Role) {
				problem.Write(w, r, auth.ErrForbidden, g.env)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// Optional attaches the user when the request carries a valid session and
// passes anonymous requests through untouched. A presented but invalid
// token is still rejected.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.authenticate(r)
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			next.ServeHTTP(w, r)
		case err != nil:
			problem.Write(w, r, err, g.env, problem.WithAuthenticated(false))
		default:
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		}
	})
}

func (g *Gate) authenticate(r *http.Request) (users.User, error) {
	if g.tokens == nil || g.users == nil {
		return users.User{}, auth.ErrInvalidToken
	}
	token, err := auth.TokenFromRequest(r, g.cookieName)
	if err != nil {
		return users.User{}, err
	}
	identity, err := g.tokens.Verify(token)
	if err != nil {
		return users.User{}, err
	}
	return g.users.Get(r.Context(), identity.UserID)
}

func WithUser(ctx context.Context, user users.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// CurrentUser returns the user attached by the gate.
func CurrentUser(ctx context.Context) (users.User, bool) {
	user, ok := ctx.Value(userKey).(users.User)
	return user, ok
}

// CurrentPrincipal is CurrentUser reduced to what domain services check.
func CurrentPrincipal(ctx context.Context) (auth.Principal, bool) {
	user, ok := CurrentUser(ctx)
	if !ok {
		return auth.Principal{}, false
	}
	return auth.Principal{UserID: user.ID, Role: user.Role}, true
}
