package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventdesk/server/internal/api"
	"github.com/eventdesk/server/internal/config"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/eventdesk/server/internal/metrics"
	"github.com/eventdesk/server/internal/storage/postgres"
	"github.com/eventdesk/server/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	host string
	port int
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the EventDesk HTTP server",
		Long: `Start the EventDesk HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (and --config if provided)
- Apply pending migrations when DATABASE_MIGRATE_ON_START is set
- Bootstrap the admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug --log-format console`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			opts.apply(&cfg)
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	return cmd
}

// apply overrides the configured listen address with any flags given.
func (o *serveOptions) apply(cfg *config.Config) {
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("environment", cfg.Environment).Msg("starting eventdesk server")

	metrics.Init(Version, GitCommit, BuildDate)
	logger.Info().Str("version", Version).Msg("metrics initialized")

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(stopCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	if cfg.Database.MigrateOnStart {
		if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.Open(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool, postgres.WithAcquireTimeout(cfg.Database.AcquireTimeout))
	if err != nil {
		return err
	}
	dbCollector := metrics.NewDBCollector(pool, repo)
	collectorCtx, collectorCancel := context.WithCancel(ctx)
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := bootstrapAdmin(bootstrapCtx, cfg, repo, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootstrapCancel()

	router, err := api.NewRouter(cfg, logger, pool, api.BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	})
	if err != nil {
		return fmt.Errorf("router init: %w", err)
	}
	defer router.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	return gracefulShutdown(ctx, server, serveErr, logger)
}

// bootstrapAdmin creates the configured admin account on first start.
func bootstrapAdmin(ctx context.Context, cfg config.Config, repo *postgres.Repository, logger zerolog.Logger) error {
	email, password := cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword
	if email == "" || password == "" {
		logger.Debug().Msg("admin bootstrap not configured; skipping")
		return nil
	}

	user, created, err := users.NewService(repo.Users(), nil, nil, logger).BootstrapAdmin(ctx, email, password)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	// Email is PII; keep it out of production logs.
	event := logger.Info().Str("user_id", user.ID)
	if cfg.Environment != "production" {
		event = event.Str("email", user.Email)
	}
	event.Msg("bootstrapped admin user")
	return nil
}

func gracefulShutdown(ctx context.Context, server *http.Server, serveErr <-chan error, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-serveErr:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-stop:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
