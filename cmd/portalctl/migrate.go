package main

import (
	"github.com/jobboard/campaign-portal/internal/db"
	"github.com/jobboard/campaign-portal/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply the embedded schema migrations. The API applies them at startup as
well; both take the same advisory lock, so running this during a rollout is safe.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, cleanup, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()
		return db.RunMigrations(cmd.Context(), e.pool, migrations.FS, e.log)
	},
}
