package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Migrate(cmd.Context()); err != nil {
		return err
	}

	version, err := c.Database.Version(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database schema at version %d\n", version)
	return nil
}
