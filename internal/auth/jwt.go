package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eventdesk/server/internal/fault"
	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum signing secret size accepted at startup.
const MinSecretLength = 32

var (
	ErrMissingToken = fault.New(fault.KindAuth, "missing_token", "missing token")
	ErrInvalidToken = fault.New(fault.KindAuth, "invalid_token", "invalid token")
	ErrExpiredToken = fault.New(fault.KindAuth, "expired_token", "token expired")

	ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")
)

// Claims carries the subject identity. Older clients minted tokens with the
// user id under "userId" or "user_id"; those are still accepted.
// TODO: drop the legacy fields once tokens minted before the rename expire.
type Claims struct {
	UserID       string `json:"id,omitempty"`
	LegacyUserID string `json:"userId,omitempty"`
	SnakeUserID  string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the first non-empty of id, userId and user_id.
func (c *Claims) SubjectID() string {
	for _, candidate := range []string{c.UserID, c.LegacyUserID, c.SnakeUserID} {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}

// Identity is the verified content of a token.
type Identity struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	now      func() time.Time
}

func NewTokenManager(secret string, lifetime time.Duration, issuer string) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if lifetime <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}
	return &TokenManager{
		secret:   []byte(secret),
		lifetime: lifetime,
		issuer:   issuer,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of the manager that reads time from now.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	clone := *m
	clone.now = now
	return &clone
}

// Lifetime reports how long issued tokens stay valid.
func (m *TokenManager) Lifetime() time.Duration {
	return m.lifetime
}

// Issue signs a token for userID and returns it with its expiry.
func (m *TokenManager) Issue(userID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, ErrInvalidToken
	}

	now := m.now()
	expiresAt := now.Add(m.lifetime)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and extracts the subject identity.
func (m *TokenManager) Verify(tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	},
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	subject := claims.SubjectID()
	if subject == "" {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{UserID: subject}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// TokenFromHeader extracts the token from an "Authorization: Bearer" value.
func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}

// TokenFromRequest looks for a bearer token first and falls back to the
// session cookie.
func TokenFromRequest(r *http.Request, cookieName string) (string, error) {
	if r == nil {
		return "", ErrMissingToken
	}
	if token, err := TokenFromHeader(r.Header.Get("Authorization")); err == nil && token != "" {
		return token, nil
	}
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
			return strings.TrimSpace(cookie.Value), nil
		}
	}
	return "", ErrMissingToken
}
