package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis token cache",
	}

	cacheFlushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Evict every cached token",
		Args:  cobra.NoArgs,
		RunE:  runCacheFlush,
	}
)

func init() {
	cacheCmd.AddCommand(cacheFlushCmd)
}

func runCacheFlush(cmd *cobra.Command, args []string) error {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if c.TokenCache == nil {
		return errors.New("the Redis cache is disabled, there is nothing to flush")
	}

	n, err := c.TokenCache.Flush(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Evicted %d cached tokens\n", n)
	return nil
}
