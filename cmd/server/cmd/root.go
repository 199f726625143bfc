package cmd

import (
	"fmt"
	"os"

	"github.com/eventdesk/server/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the CLI. It is called by main.main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCommand(opts)

	root := &cobra.Command{
		Use:   "server",
		Short: "EventDesk server - event registration and check-in backend",
		Long: `EventDesk server publishes events, takes registrations up to each event's
capacity and checks participants in from their ticket codes.

Configuration comes from environment variables (and an optional .env file),
optionally overlaid by a YAML file given with --config.`,
		SilenceUsage: true,
		// Serve when no subcommand is given.
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file overlaid on the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(serve)
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newTokenCommand(opts))
	root.AddCommand(newHealthcheckCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// loadConfig reads the environment, applies --config and then the logging
// flags.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.configPath != "" {
		cfg, err = config.ApplyFile(cfg, o.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}
