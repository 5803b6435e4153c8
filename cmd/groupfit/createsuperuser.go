package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/app/runtime"
	"github.com/groupfit/server/internal/app/services/members"
	"github.com/groupfit/server/internal/app/storage/postgres"
	"github.com/groupfit/server/internal/platform/migrations"
)

var createSuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Create a superuser in the postgres store",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if strings.TrimSpace(email) == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if !strings.EqualFold(cfg.Database.Driver, "postgres") {
			return fmt.Errorf("createsuperuser needs the postgres driver; the memory store does not outlive this command")
		}
		db, err := runtime.OpenDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := migrations.Apply(db); err != nil {
				return err
			}
		}

		svc := members.New(postgres.New(db), auth.NewHasher(), log)
		m, err := svc.CreateSuperuser(context.Background(), email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created with id %d\n", m.Email, m.ID)
		return nil
	},
}

func init() {
	createSuperuserCmd.Flags().String("email", "", "Superuser email")
	createSuperuserCmd.Flags().String("password", "", "Superuser password (at least 8 characters)")
	rootCmd.AddCommand(createSuperuserCmd)
}
