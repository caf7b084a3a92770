// Package cli provides the knowctl operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/app"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/config"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/services"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool
	tenant  string
)

// Services are what the commands operate on. Tests set them directly.
type Services struct {
	Sources   *services.SourceService
	Retrieval *services.RetrievalService
	Settings  *services.SettingsService
}

var (
	svc         *Services
	application *app.App
)

// NewRootCmd builds the command tree. A nil s connects using the environment.
func NewRootCmd(s *Services) *cobra.Command {
	svc = s
	root := &cobra.Command{
		Use:           "knowctl",
		Short:         "Operate the knowledge ingestion pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if svc != nil || cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			cfg := config.LoadConfig()
			level := cfg.LogLevel
			if verbose {
				level = slog.LevelDebug
			}
			logger, closeLog := config.SetupLogger(cfg.LogFile, level)
			cobra.OnFinalize(func() { _ = closeLog() })

			a, err := app.NewApp(context.Background(), cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			application = a
			svc = &Services{Sources: a.Sources, Retrieval: a.Retrieval, Settings: a.Settings}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if application != nil {
				if err := application.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close: %v\n", err)
				}
				application = nil
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVarP(&tenant, "tenant", "t", os.Getenv("KNOWCTL_TENANT"), "tenant id")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newReindexCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newSettingsCmd())
	return root
}

// Execute runs knowctl against the configured environment.
func Execute() error {
	return NewRootCmd(nil).Execute()
}

func requireTenant() error {
	if tenant == "" {
		return fmt.Errorf("--tenant (or KNOWCTL_TENANT) is required")
	}
	return nil
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
