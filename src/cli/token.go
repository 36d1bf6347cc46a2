package cli

import (
	"budgee-automation/src/config"
	"budgee-automation/src/middleware"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewTokenCommand issues a bearer token for local testing of the API.
func NewTokenCommand(_ *RootOptions) *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user must be a positive user id")
			}
			cfg := config.Load()
			token, err := middleware.IssueToken(cfg.JWTSecret, userID, ttl)
			if err != nil {
				return fmt.Errorf("JWT_SECRET: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id to put in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
