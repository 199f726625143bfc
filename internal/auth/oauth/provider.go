// Package oauth implements the authorization-code flow against an OpenID
// Connect style provider. Google's endpoints are the defaults.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eventdesk/server/internal/config"
	"github.com/eventdesk/server/internal/fault"
)

const (
	DefaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL    = "https://oauth2.googleapis.com/token"
	DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var (
	ErrDomainNotAllowed = fault.New(fault.KindForbidden, "domain_not_allowed", "this account is not allowed to sign in")
	ErrEmailUnverified  = fault.New(fault.KindForbidden, "email_unverified", "the provider has not verified this email address")
)

// Profile is the subset of the userinfo document the server uses.
type Profile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	HostedDomain  string `json:"hd"`
}

// Client handles OAuth 2.0 authentication with the configured provider.
type Client struct {
	config     config.OAuthConfig
	httpClient *http.Client
}

// NewClient fills in default endpoints for any that cfg leaves empty.
func NewClient(cfg config.OAuthConfig) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL builds the consent screen URL. state must come from GenerateState
// and be checked on callback.
func (c *Client) AuthURL(state string) string {
	params := url.Values{
		"client_id":     {c.config.ClientID},
		"redirect_uri":  {c.config.CallbackURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	if len(c.config.AllowedDomains) == 1 {
		params.Set("hd", c.config.AllowedDomains[0])
	}
	sep := "?"
	if strings.Contains(c.config.AuthURL, "?") {
		sep = "&"
	}
	return c.config.AuthURL + sep + params.Encode()
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fault.Validation("code", "is required")
	}

	data := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.config.CallbackURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fault.Dependency("exchange oauth code", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fault.Dependency("exchange oauth code", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fault.Dependency("decode oauth token", err)
	}
	if tokenResp.Error != "" {
		return "", fault.Dependency("exchange oauth code", fmt.Errorf("%s - %s", tokenResp.Error, tokenResp.ErrorDesc))
	}
	if tokenResp.AccessToken == "" {
		return "", fault.Dependency("exchange oauth code", fmt.Errorf("no access token in response"))
	}
	return tokenResp.AccessToken, nil
}

// FetchProfile loads the userinfo document and applies the verified-email
// and allowed-domain rules.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.UserInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fault.Dependency("fetch oauth profile", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Profile{}, fault.Dependency("fetch oauth profile", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fault.Dependency("decode oauth profile", err)
	}
	profile.Email = strings.TrimSpace(profile.Email)
	if profile.Email == "" || !profile.EmailVerified {
		return Profile{}, ErrEmailUnverified
	}
	if !c.domainAllowed(profile) {
		return Profile{}, ErrDomainNotAllowed
	}
	return profile, nil
}

// domainAllowed accepts every account when no domains are configured.
func (c *Client) domainAllowed(profile Profile) bool {
	if len(c.config.AllowedDomains) == 0 {
		return true
	}
	domain := profile.HostedDomain
	if domain == "" {
		if at := strings.LastIndexByte(profile.Email, '@'); at >= 0 {
			domain = profile.Email[at+1:]
		}
	}
	for _, allowed := range c.config.AllowedDomains {
		if strings.EqualFold(domain, allowed) {
			return true
		}
	}
	return false
}

// GenerateState returns a random value for the state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
