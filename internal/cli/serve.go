package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagSkipMigrate bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the perimeter HTTP server",
		Long: `
Starts the perimeter. Pending migrations are applied first unless
--skip-migrate is given. The server stops gracefully on SIGINT or SIGTERM.

Usage:
  $ DB_URL=postgres://perimeter@localhost/perimeter perimeter serve
`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&flagSkipMigrate, "skip-migrate", false, "Do not apply pending migrations on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	cmd.SetContext(ctx)

	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if !flagSkipMigrate {
		if err := c.Migrate(ctx); err != nil {
			return err
		}
	}

	return c.Run(ctx, cmd.Root().Version)
}
