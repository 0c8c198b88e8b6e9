package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/avatarworld/internal/app"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()
			if err := app.Migrate(log, *configPath); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema up to date")
			return nil
		},
	}
}
