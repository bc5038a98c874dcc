package main

import (
	"fmt"

	"inkwell/api/internal/authpw"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "manage user accounts",
}

func createUserCmd() *cobra.Command {
	var email string
	var password string
	var name string
	var role string

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a user account",
		Example: "inkwell-api user create -e admin@example.com -p <password> -n Admin -r admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			user, err := authpw.NewService(st).SignUp(cmd.Context(), authpw.SignUpRequest{
				Email:       email,
				Password:    password,
				DisplayName: name,
				Role:        role,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,
				"email":   user.Email,
				"role":    user.Role,
			}).Info("user created")
			return nil
		},
	}

	command.Flags().StringVarP(&email, "email", "e", "", "account email")
	command.Flags().StringVarP(&password, "password", "p", "", "account password")
	command.Flags().StringVarP(&name, "name", "n", "", "display name")
	command.Flags().StringVarP(&role, "role", "r", "editor", "role: admin, editor or viewer")
	_ = command.MarkFlagRequired("email")
	_ = command.MarkFlagRequired("password")
	_ = command.MarkFlagRequired("name")

	return command
}
