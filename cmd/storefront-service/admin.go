package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	var email, firstName, lastName string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account; the password is read from ADMIN_PASSWORD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("ADMIN_PASSWORD")
			if password == "" {
				return errors.New("ADMIN_PASSWORD is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			pg, err := db.New(cmd.Context(), cfg.Postgres)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pg.Close()

			created, err := admin.NewService(admin.NewRepository(pg.Pool)).CreateAdmin(cmd.Context(), &admin.Admin{
				Email:     email,
				FirstName: firstName,
				LastName:  lastName,
			}, password)
			if err != nil {
				return err
			}

			log.Info().Stringer("admin_id", created.ID).Str("email", created.Email).Msg("Admin created")
			return nil
		},
	}

	create.Flags().StringVar(&email, "email", "", "admin email address")
	create.Flags().StringVar(&firstName, "first-name", "", "first name")
	create.Flags().StringVar(&lastName, "last-name", "", "last name")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}
