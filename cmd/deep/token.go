package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/deep/internal/api"
	"github.com/hyperengineering/deep/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user",
	Long: "Signs a bearer token for an existing user with the configured JWT secret.\n" +
		"The user must exist in the database.",
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and DEEP_DB_PATH)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0,
		"Token lifetime (defaults to auth.token_ttl)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadUnvalidated()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" && !cfg.DevMode {
		return fmt.Errorf("DEEP_JWT_SECRET is required to issue tokens")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := db.GetUser(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("user %s: %w", args[0], err)
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.Auth.TokenTTL)
	}

	token, err := api.IssueToken(jwtSecret(cfg), user.ID, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
