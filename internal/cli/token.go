package cli

import (
	"fmt"
	"time"

	"github.com/freekieb7/go-perimeter/internal/token"
	"github.com/spf13/cobra"
)

var (
	flagTokenValue     string
	flagTokenDays      int
	flagTokenExpiresOn string
	flagTokenCreatedBy string
	flagExtendDays     int
	flagUsageLimit     int

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	tokenCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Issue a new access token",
		Long: `
Issues an active access token. Without --token a random value is generated;
without --days or --expires-on the configured default validity applies.

Usage:
  $ perimeter token create --days 30 --created-by ops
  $ perimeter token create --token preview-2026 --expires-on 2026-12-31
`,
		Args: cobra.NoArgs,
		RunE: runTokenCreate,
	}

	tokenListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every access token with its state",
		Args:  cobra.NoArgs,
		RunE:  runTokenList,
	}

	tokenDeactivateCmd = &cobra.Command{
		Use:   "deactivate <token>",
		Short: "Revoke an access token without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: mutateToken(func(cmd *cobra.Command, s *token.Service, value string) (token.Token, error) {
			return s.Deactivate(cmd.Context(), value)
		}),
	}

	tokenActivateCmd = &cobra.Command{
		Use:   "activate <token>",
		Short: "Re-activate a deactivated access token",
		Args:  cobra.ExactArgs(1),
		RunE: mutateToken(func(cmd *cobra.Command, s *token.Service, value string) (token.Token, error) {
			return s.Activate(cmd.Context(), value)
		}),
	}

	tokenExtendCmd = &cobra.Command{
		Use:   "extend <token>",
		Short: "Set an access token to expire a number of days from today",
		Args:  cobra.ExactArgs(1),
		RunE: mutateToken(func(cmd *cobra.Command, s *token.Service, value string) (token.Token, error) {
			return s.Extend(cmd.Context(), value, flagExtendDays)
		}),
	}

	tokenPurgeCmd = &cobra.Command{
		Use:   "purge <token>",
		Short: "Delete an access token and its usage history",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokenPurge,
	}

	tokenUsageCmd = &cobra.Command{
		Use:   "usage <token>",
		Short: "Show the most recent uses of an access token",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokenUsage,
	}
)

func init() {
	tokenCreateCmd.Flags().StringVar(&flagTokenValue, "token", "", "Token value (generated when empty)")
	tokenCreateCmd.Flags().IntVar(&flagTokenDays, "days", 0, "Days from today until the token expires")
	tokenCreateCmd.Flags().StringVar(&flagTokenExpiresOn, "expires-on", "", "Expiry date as YYYY-MM-DD")
	tokenCreateCmd.Flags().StringVar(&flagTokenCreatedBy, "created-by", "", "Who the token was issued by")
	tokenCreateCmd.MarkFlagsMutuallyExclusive("days", "expires-on")

	tokenExtendCmd.Flags().IntVar(&flagExtendDays, "days", 7, "Days from today until the token expires")

	tokenUsageCmd.Flags().IntVar(&flagUsageLimit, "limit", 20, "Maximum number of records to show")

	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenDeactivateCmd)
	tokenCmd.AddCommand(tokenActivateCmd)
	tokenCmd.AddCommand(tokenExtendCmd)
	tokenCmd.AddCommand(tokenPurgeCmd)
	tokenCmd.AddCommand(tokenUsageCmd)
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	params := token.CreateParams{
		Value:         flagTokenValue,
		ExpiresInDays: flagTokenDays,
		CreatedBy:     flagTokenCreatedBy,
	}
	if flagTokenExpiresOn != "" {
		params.ExpiresOn, err = time.Parse(time.DateOnly, flagTokenExpiresOn)
		if err != nil {
			return fmt.Errorf("invalid --expires-on %q, want YYYY-MM-DD", flagTokenExpiresOn)
		}
	}

	t, err := c.Tokens.CreateAccessToken(cmd.Context(), params)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), c.Tokens.Clock().Status(t))
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	statuses, err := c.Tokens.List(cmd.Context())
	if err != nil {
		return err
	}

	data := make([][]any, 0, len(statuses))
	for _, s := range statuses {
		data = append(data, []any{
			s.Token.Value,
			s.State.String(),
			s.Token.ExpiresOn.Format(time.DateOnly),
			s.DaysRemaining,
			s.Token.CreatedBy,
		})
	}
	printTable(cmd.OutOrStdout(), []string{"Token", "State", "Expires On", "Days Left", "Created By"}, data)
	return nil
}

func mutateToken(fn func(cmd *cobra.Command, s *token.Service, value string) (token.Token, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := open(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		t, err := fn(cmd, c.Tokens, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), c.Tokens.Clock().Status(t))
		return nil
	}
}

func runTokenPurge(cmd *cobra.Command, args []string) error {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Tokens.Purge(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token %s purged\n", token.MaskValue(args[0]))
	return nil
}

func runTokenUsage(cmd *cobra.Command, args []string) error {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	records, err := c.Tokens.Usage(cmd.Context(), args[0], flagUsageLimit)
	if err != nil {
		return err
	}

	loc := c.Tokens.Clock().Location()
	data := make([][]any, 0, len(records))
	for _, u := range records {
		data = append(data, []any{
			u.Timestamp.In(loc).Format(time.DateTime),
			u.ClientIP,
			u.Email,
			u.Name,
			u.ClientUserAgent,
		})
	}
	printTable(cmd.OutOrStdout(), []string{"Time", "Client IP", "Email", "Name", "User Agent"}, data)
	return nil
}
