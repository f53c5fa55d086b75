package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/deep/internal/types"
)

var (
	userDisplayName string
	userJSONOutput  bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserCreate,
}

func init() {
	userCreateCmd.Flags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and DEEP_DB_PATH)")
	userCreateCmd.Flags().StringVar(&userDisplayName, "display-name", "",
		"Display name of the user")
	userCreateCmd.Flags().BoolVar(&userJSONOutput, "json", false,
		"Output in JSON format")

	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	u := &types.User{Username: args[0], DisplayName: userDisplayName}
	if err := db.CreateUser(cmd.Context(), u); err != nil {
		return fmt.Errorf("create user %q: %w", args[0], err)
	}

	if userJSONOutput {
		return printJSON(cmd.OutOrStdout(), u)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Username, u.ID)
	return nil
}
