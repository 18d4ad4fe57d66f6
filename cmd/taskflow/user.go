package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(userAddCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.auth.Register(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(u)
			}
			fmt.Printf("Created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Password, at least 6 characters")
	for _, f := range []string{"email", "name", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
