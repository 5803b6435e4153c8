package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groupfit/server/internal/app/runtime"
	"github.com/groupfit/server/internal/platform/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back postgres schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := runtime.OpenDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if down, _ := cmd.Flags().GetBool("down"); down {
			if err := migrations.Rollback(db); err != nil {
				return err
			}
		} else if err := migrations.Apply(db); err != nil {
			return err
		}

		version, dirty, err := migrations.Version(db)
		if err != nil {
			return err
		}
		log.WithField("version", version).WithField("dirty", dirty).Info("migrations complete")
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("down", false, "Roll back every migration")
	rootCmd.AddCommand(migrateCmd)
}
