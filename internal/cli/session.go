package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage visitor sessions",
	}

	sessionSweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions",
		Long: `Delete every session whose expiry has passed. The server does this on
its own every SESSION_SWEEP_INTERVAL; use this when that is disabled.`,
		Args: cobra.NoArgs,
		RunE: runSessionSweep,
	}
)

func init() {
	sessionCmd.AddCommand(sessionSweepCmd)
}

func runSessionSweep(cmd *cobra.Command, args []string) error {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.SweepSessions(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired sessions\n", n)
	return nil
}
