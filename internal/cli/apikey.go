package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashAPIKeyCmd = &cobra.Command{
	Use:   "hash-api-key <key>",
	Short: "Print a bcrypt hash of an admin API key for API_KEY_HASH",
	Args:  cobra.ExactArgs(1),
	RunE:  runHashAPIKey,
}

func runHashAPIKey(cmd *cobra.Command, args []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}
