package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/gifteo/internal/config"
	"github.com/sakif/gifteo/internal/server"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gifteo",
		Short:         "Gifteo wishlist backend",
		Long:          "Gifteo backend. Configuration is read from environment variables (PORT, DB_PATH, APP_ENV, ...).",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newNotifyCommand(), newMigrateCommand())
	return root
}

// setup loads the configuration and builds the logger every command uses.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, cfg.NewLogger(os.Stdout), nil
}

func newServeCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily notification scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			// Start blocks until the signal context is cancelled.
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port (overrides PORT)")
	return cmd
}

func newNotifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Run today's notification jobs once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer srv.Close()

			start := time.Now()
			if err := srv.Scheduler().RunOnce(cmd.Context()); err != nil {
				return fmt.Errorf("notification run: %w", err)
			}
			logger.Info("notification run complete", slog.Duration("duration", time.Since(start)))
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and refresh global holidays",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			db, err := server.OpenDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}
