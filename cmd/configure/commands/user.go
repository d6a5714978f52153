package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/services/auth"
	"github.com/spf13/cobra"
)

// NewUserCmd creates the user command with its create and show subcommands
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserShowCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var username, email, password string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username = strings.TrimSpace(username)
			email = strings.TrimSpace(email)
			if username == "" || email == "" || password == "" {
				return fmt.Errorf("--username, --email and --password are required")
			}

			cfg, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
			if err != nil {
				return fmt.Errorf("create token issuer: %w", err)
			}
			svc := auth.NewService(database.NewUserRepository(db), tokens, cliLogger(verbose))

			session, err := svc.Register(context.Background(), username, email, password)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created user %s (%s)\n", session.User.Username, session.User.ID)
			fmt.Fprintf(out, "Token (expires %s): %s\n", session.ExpiresAt.Format("2006-01-02 15:04"), session.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (at least 8 characters)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	return cmd
}

func newUserShowCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			user, err := lookupUser(context.Background(), db, username)
			if err != nil {
				return err
			}
			return writeUser(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Username")
	return cmd
}
