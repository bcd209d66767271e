package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/persistence/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations. serve applies them on start as well;
this command is meant for deploy pipelines that migrate before rollout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *postgres.Migrator) error {
			applied, err := m.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *postgres.Migrator) error {
			migrations, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, mig := range migrations {
				applied := "-"
				if mig.IsApplied {
					applied = mig.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
			}
			return w.Flush()
		})
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *postgres.Migrator) error {
			if err := m.Rollback(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back the last migration")
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateRollbackCmd)
}

func withMigrator(cmd *cobra.Command, fn func(*postgres.Migrator) error) error {
	mgr, log, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), mgr.Get(), log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := fn(postgres.NewMigrator(db)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
