// Package cli implements the perimeter command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/freekieb7/go-perimeter/internal/app"
	"github.com/freekieb7/go-perimeter/internal/config"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "perimeter",
		Short: "Perimeter guards a site behind shareable access tokens",
		Long: `Perimeter sends visitors without a valid access token to a gateway page,
records every accepted token and lets administrators issue, extend and
revoke tokens from the command line or the admin API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the command line and exits non-zero on failure.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(hashAPIKeyCmd)
}

// open loads the configuration from the environment and connects the
// container. Callers must Close it.
func open(cmd *cobra.Command) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := app.NewLogger(cfg, cmd.ErrOrStderr())
	return app.New(cmd.Context(), cfg, logger)
}
