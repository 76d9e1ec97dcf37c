package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/playrival/rival-server/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return errors.New("DATABASE_URL is required")
			}

			pgCfg := postgres.DefaultConfig()
			pgCfg.DSN = dsn
			store, err := postgres.New(pgCfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.RunMigrations(context.Background()); err != nil {
				return err
			}

			logger.Info("migrations applied")
			return nil
		},
	}
}
