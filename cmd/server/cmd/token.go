package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	userID   string
	lifetime time.Duration
	force    bool
}

var errProductionToken = errors.New("refusing to mint tokens in production without --force")

func newTokenCommand(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		Long: `Sign a session token for an existing user ID with JWT_SECRET.

The token is accepted anywhere a login token is, so use it for local testing
and operations scripts only.

Example:
  server token --user 3f1c2a9e-7b4d-4f8e-9a61-0c5d2e8b7a10
  curl -H "Authorization: Bearer $(server token --user ...)" http://localhost:8080/auth/me`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			token, expiresAt, err := issueToken(cfg, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			cmd.PrintErrf("expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", "", "user ID the token is issued for (required)")
	cmd.Flags().DurationVar(&opts.lifetime, "lifetime", 0, "token lifetime (default: JWT_EXPIRY_HOURS)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "allow issuing tokens when ENVIRONMENT=production")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func issueToken(cfg config.Config, opts *tokenOptions) (string, time.Time, error) {
	if cfg.Environment == "production" && !opts.force {
		return "", time.Time{}, errProductionToken
	}
	if _, err := uuid.Parse(opts.userID); err != nil {
		return "", time.Time{}, fmt.Errorf("invalid --user %q: must be a UUID", opts.userID)
	}

	lifetime := cfg.Auth.TokenLifetime
	if opts.lifetime > 0 {
		lifetime = opts.lifetime
	}
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, lifetime, cfg.Auth.Issuer)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokens.Issue(opts.userID)
}
