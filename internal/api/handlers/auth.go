package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"time"

	"github.com/eventdesk/server/internal/api/middleware"
	"github.com/eventdesk/server/internal/api/problem"
	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/auth/oauth"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/eventdesk/server/internal/fault"
	"github.com/rs/zerolog"
)

const oauthStateCookie = "eventdesk_oauth_state"

var errOAuthDisabled = fault.New(fault.KindNotFound, "oauth_disabled", "external sign-in is not configured")

// AccountService is the part of users.Service the auth endpoints use.
type AccountService interface {
	Signup(ctx context.Context, input users.SignupInput) (users.Session, error)
	Login(ctx context.Context, input users.LoginInput) (users.Session, error)
	IssueSession(user users.User) (users.Session, error)
	ResolveExternal(ctx context.Context, profile users.ExternalProfile) (users.User, error)
}

// IdentityProvider runs the OAuth authorization-code flow.
type IdentityProvider interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (oauth.Profile, error)
}

type AuthHandler struct {
	accounts   AccountService
	provider   IdentityProvider
	stateKey   []byte
	cookieName string
	successURL string
	env        string
	logger     zerolog.Logger
}

// NewAuthHandler builds the auth endpoints. provider may be nil, in which
// case the OAuth routes answer 404.
func NewAuthHandler(accounts AccountService, provider IdentityProvider, stateKey []byte, cookieName, successURL, env string, logger zerolog.Logger) *AuthHandler {
	if successURL == "" {
		successURL = "/"
	}
	return &AuthHandler{
		accounts:   accounts,
		provider:   provider,
		stateKey:   stateKey,
		cookieName: cookieName,
		successURL: successURL,
		env:        env,
		logger:     logger.With().Str("handler", "auth").Logger(),
	}
}

type meResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         auth.Role `json:"role"`
	ProfileImage string    `json:"profile_image"`
}

func newMeResponse(user users.User) meResponse {
	return meResponse{
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         user.Role,
		ProfileImage: user.ProfileImage,
	}
}

type sessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      meResponse `json:"user"`
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input users.SignupInput
	if err := decodeJSON(r, &input); err != nil {
		problem.Write(w, r, err, h.env)
		return
	}

	session, err := h.accounts.Signup(r.Context(), input)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}

	h.setSessionCookie(w, session)
	writeData(w, http.StatusCreated, "account created", h.sessionBody(session))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input users.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		problem.Write(w, r, err, h.env)
		return
	}

	session, err := h.accounts.Login(r.Context(), input)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}

	h.setSessionCookie(w, session)
	writeData(w, http.StatusOK, "signed in", h.sessionBody(session))
}

// Logout handles POST /auth/logout. Tokens are stateless, so this only
// drops the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	writeData(w, http.StatusOK, "signed out", nil)
}

// Me handles GET /auth/me behind the gate.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		problem.Write(w, r, auth.ErrMissingToken, h.env, problem.WithAuthenticated(false))
		return
	}
	authenticated := true
	writeJSON(w, http.StatusOK, envelope{Success: true, Authenticated: &authenticated, Data: newMeResponse(user)})
}

// OAuthLogin handles GET /auth/oauth/login by redirecting to the provider
// with a state value that is also kept in a signed cookie.
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		problem.Write(w, r, errOAuthDisabled, h.env)
		return
	}

	state, err := oauth.GenerateState()
	if err != nil {
		problem.Write(w, r, fault.Dependency("generate oauth state", err), h.env)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    auth.SignValue(h.stateKey, state),
		Path:     "/auth/oauth",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// OAuthCallback handles GET /auth/oauth/callback. Any failure sends the
// browser back to the frontend with an error parameter.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		problem.Write(w, r, errOAuthDisabled, h.env)
		return
	}
	query := r.URL.Query()

	if !h.validState(r, query.Get("state")) {
		h.logger.Warn().Msg("oauth state mismatch")
		h.redirectFailure(w, r, "oauth_failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn().Str("error", errParam).Str("description", query.Get("error_description")).Msg("provider returned oauth error")
		h.redirectFailure(w, r, "oauth_denied")
		return
	}

	accessToken, err := h.provider.ExchangeCode(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to exchange oauth code")
		h.redirectFailure(w, r, "oauth_failed")
		return
	}

	profile, err := h.provider.FetchProfile(r.Context(), accessToken)
	if err != nil {
		h.logger.Warn().Err(err).Msg("external profile rejected")
		h.redirectFailure(w, r, fault.CodeOf(err))
		return
	}

	user, err := h.accounts.ResolveExternal(r.Context(), users.ExternalProfile{
		Email:     profile.Email,
		FirstName: profile.GivenName,
		LastName:  profile.FamilyName,
		Picture:   profile.Picture,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to resolve external account")
		h.redirectFailure(w, r, "oauth_failed")
		return
	}

	session, err := h.accounts.IssueSession(user)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue session")
		h.redirectFailure(w, r, "oauth_failed")
		return
	}

	h.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("signed in with external provider")
	h.setSessionCookie(w, session)
	http.Redirect(w, r, h.successURL, http.StatusFound)
}

func (h *AuthHandler) validState(r *http.Request, received string) bool {
	if received == "" {
		return false
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		return false
	}
	expected, ok := auth.VerifySignedValue(h.stateKey, cookie.Value)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

func (h *AuthHandler) redirectFailure(w http.ResponseWriter, r *http.Request, code string) {
	if code == "" {
		code = "oauth_failed"
	}
	target, err := url.Parse(h.successURL)
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	values := target.Query()
	values.Set("error", code)
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session users.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) sessionBody(session users.Session) sessionResponse {
	return sessionResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: newMeResponse(session.User)}
}

func (h *AuthHandler) secureCookies() bool {
	return h.env == "production"
}
