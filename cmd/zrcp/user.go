package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/auth"
)

func newUserCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API accounts",
	}
	cmd.AddCommand(newUserCreateCmd(c))
	return cmd
}

func newUserCreateCmd(c *cli) *cobra.Command {
	var (
		req           auth.CreateUserRequest
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account that can obtain API tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return errors.New("--password-stdin is required")
			}
			passwordBytes, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			req.Username = args[0]
			req.Password = strings.TrimSpace(string(passwordBytes))

			ctx := cmd.Context()
			repo, closeRepo, err := c.cfg.BuildRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			authService, err := c.cfg.BuildAuthService(repo, c.logger)
			if err != nil {
				return err
			}

			user, err := authService.CreateUser(ctx, req)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			role := "user"
			if user.IsStaff {
				role = "staff"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%d)\n", role, user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().BoolVar(&req.IsStaff, "staff", false, "allow the account to write content")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	return cmd
}
