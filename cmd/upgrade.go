package cmd

import (
	"fmt"

	"github.com/haierkeys/onyx-note-sync/internal/upgrade"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	upgradeEnv := new(commonFlags)

	var upgradeCommand = &cobra.Command{
		Use:   "upgrade",
		Short: "Apply pending schema migrations to the local note database",
		Long: `Apply pending schema migrations to the local note database.

Already applied migrations are recorded in schema_version and skipped,
so running the command again is harmless. The sync engine runs the same
migrations on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadRuntime(upgradeEnv)
			if err != nil {
				return err
			}
			defer func() { _ = lg.Sync() }()

			db, err := openDatabase(cfg.Database, lg)
			if err != nil {
				return fmt.Errorf("initDatabase: %w", err)
			}
			defer func() {
				if sqlDB, e := db.DB(); e == nil {
					_ = sqlDB.Close()
				}
			}()

			n, err := upgrade.NewMigrationManager(db, lg).Run(cmd.Context())
			if err != nil {
				return err
			}
			lg.Info("database upgrade finished", zap.Int("applied", n))
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", n)
			return nil
		},
	}

	rootCmd.AddCommand(upgradeCommand)
	bindCommonFlags(upgradeCommand, upgradeEnv)
}
