package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eventdesk/server/internal/api/handlers"
	"github.com/eventdesk/server/internal/api/middleware"
	"github.com/eventdesk/server/internal/audit"
	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/auth/oauth"
	"github.com/eventdesk/server/internal/config"
	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/domain/participations"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/eventdesk/server/internal/email"
	"github.com/eventdesk/server/internal/metrics"
	"github.com/eventdesk/server/internal/storage/postgres"
	"github.com/eventdesk/server/internal/uploads"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// BuildInfo is the build metadata reported by /version and /readyz.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// Routes holds everything the HTTP surface mounts.
type Routes struct {
	Auth    *handlers.AuthHandler
	Events  *handlers.EventsHandler
	Users   *handlers.UsersHandler
	Health  *handlers.HealthChecker
	Gate    *middleware.Gate
	Limiter *middleware.RateLimiter
	Audit   *audit.Logger

	// Uploads serves stored images under UploadPrefix.
	Uploads        http.Handler
	UploadPrefix   string
	MaxUploadBytes int64
}

// Router is the assembled HTTP handler plus the background work it owns.
type Router struct {
	Handler http.Handler
	limiter *middleware.RateLimiter
}

// Close stops rate limiter cleanup.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Stop()
	}
}

// NewRouter builds the services on top of pool and mounts them.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool, build BuildInfo) (*Router, error) {
	repo, err := postgres.NewRepository(pool, postgres.WithAcquireTimeout(cfg.Database.AcquireTimeout))
	if err != nil {
		return nil, fmt.Errorf("repository init: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	stateKey, err := auth.DeriveOAuthStateKey([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("derive oauth state key: %w", err)
	}

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return nil, fmt.Errorf("email service: %w", err)
	}
	images, err := uploads.NewStore(cfg.Uploads)
	if err != nil {
		return nil, fmt.Errorf("uploads store: %w", err)
	}

	usersService := users.NewService(repo.Users(), tokens, mailer, logger)
	eventsService := events.NewService(repo.Events(), logger)
	registrations := participations.NewService(repo.Participations(), mailer, logger)

	var provider handlers.IdentityProvider
	if cfg.OAuth.Enabled() {
		provider = oauth.NewClient(cfg.OAuth)
	} else {
		logger.Info().Msg("oauth not configured, external sign-in disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	routes := Routes{
		Auth:           handlers.NewAuthHandler(usersService, provider, stateKey, cfg.Auth.CookieName, cfg.OAuth.SuccessURL, cfg.Environment, logger),
		Events:         handlers.NewEventsHandler(eventsService, registrations, cfg.Environment),
		Users:          handlers.NewUsersHandler(usersService, images, cfg.Environment),
		Health:         handlers.NewHealthChecker(repo, build.Version, build.GitCommit),
		Gate:           middleware.NewGate(tokens, usersService, cfg.Auth.CookieName, cfg.Environment),
		Limiter:        limiter,
		Audit:          audit.NewLogger(logger, auditActor, middleware.GetRequestID),
		Uploads:        images.Handler(),
		UploadPrefix:   images.PublicPrefix(),
		MaxUploadBytes: images.MaxBytes(),
	}

	return &Router{Handler: NewHandler(cfg, logger, routes, build), limiter: limiter}, nil
}

// NewHandler mounts routes behind the global middleware chain.
func NewHandler(cfg config.Config, logger zerolog.Logger, routes Routes, build BuildInfo) http.Handler {
	gate := routes.Gate
	limit := routes.Limiter.Tier
	jsonBody := middleware.JSONRequestSize()
	audited := routes.Audit.Middleware

	anyone := gate.Require()
	organizers := gate.Require(auth.RoleOrganizer, auth.RoleAdmin)

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", routes.Health.Readyz())
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /openapi.json", OpenAPIHandler())
	mux.Handle("GET /version", VersionHandler(build))
	if routes.Uploads != nil && routes.UploadPrefix != "" {
		mux.Handle("GET "+routes.UploadPrefix, routes.Uploads)
	}

	// auth
	mux.Handle("POST /auth/signup", chain(routes.Auth.Signup, limit(middleware.TierLogin), jsonBody))
	mux.Handle("POST /auth/login", chain(routes.Auth.Login, limit(middleware.TierLogin), jsonBody))
	mux.Handle("POST /auth/logout", http.HandlerFunc(routes.Auth.Logout))
	mux.Handle("GET /auth/me", chain(routes.Auth.Me, anyone))
	mux.Handle("GET /auth/oauth/login", chain(routes.Auth.OAuthLogin, limit(middleware.TierLogin)))
	mux.Handle("GET /auth/oauth/callback", chain(routes.Auth.OAuthCallback, limit(middleware.TierLogin)))

	// events
	mux.Handle("GET /events/public", chain(routes.Events.ListPublic, limit(middleware.TierPublic)))
	mux.Handle("GET /events/my-events", chain(routes.Events.ListMine, organizers))
	mux.Handle("GET /events/my-participations", chain(routes.Events.ListJoined, anyone))
	mux.Handle("POST /events/check-in", chain(routes.Events.CheckIn, limit(middleware.TierCheckIn), jsonBody, audited("event.check_in", "participation")))
	mux.Handle("POST /events", chain(routes.Events.Create, organizers, jsonBody))
	mux.Handle("GET /events/{id}", chain(routes.Events.Get, limit(middleware.TierPublic), gate.Optional))
	mux.Handle("POST /events/{id}/publish", chain(routes.Events.Publish, organizers, audited("event.publish", "event")))
	mux.Handle("POST /events/{id}/cancel", chain(routes.Events.Cancel, organizers, audited("event.cancel", "event")))
	mux.Handle("POST /events/{id}/complete", chain(routes.Events.Complete, organizers, audited("event.complete", "event")))
	mux.Handle("POST /events/{id}/join", chain(routes.Events.Join, anyone))
	mux.Handle("DELETE /events/{id}/join", chain(routes.Events.Leave, anyone))
	mux.Handle("GET /events/{id}/ticket", chain(routes.Events.Ticket, anyone))
	mux.Handle("GET /events/{id}/participants", chain(routes.Events.Participants, anyone, audited("event.roster_view", "event")))

	// users
	mux.Handle("PUT /users/me/password", chain(routes.Users.ChangePassword, anyone, jsonBody))
	mux.Handle("POST /users/me/profile-image", chain(routes.Users.UploadProfileImage, anyone, middleware.UploadRequestSize(routes.MaxUploadBytes)))

	// Wrapped inside out, so CorrelationID runs first. Tracing and metrics
	// must pass the mux the same request it stamps with the matched pattern.
	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.SecurityHeaders(cfg.Environment == "production")(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler
}

func auditActor(ctx context.Context) (string, string, bool) {
	principal, ok := middleware.CurrentPrincipal(ctx)
	return principal.UserID, string(principal.Role), ok
}

// chain wraps h so the first middleware runs first.
func chain(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}
