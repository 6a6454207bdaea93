package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			res, err := db.Migrate(cmd.Context(), cfg.DB.DSN(), dir, logger)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations complete",
				zap.Int("applied", res.Applied),
				zap.Int("skipped", res.Skipped),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding *.up.sql files")
	return cmd
}
