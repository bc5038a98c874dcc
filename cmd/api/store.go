package main

import (
	"context"
	"fmt"

	"inkwell/api/internal/config"
	"inkwell/api/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// openStore connects the configured backend and brings its schema up to date.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		logrus.WithField("path", cfg.SQLitePath).Info("store: using sqlite")
		return store.OpenSQLite(cfg.SQLitePath)
	case "postgres", "":
		db, err := store.Open(ctx, cfg.DatabaseURL, store.Pool{MaxOpenConns: cfg.DBMaxOpenConns})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		logrus.Info("store: using postgres")
		return store.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			logrus.WithField("driver", cfg.StoreDriver).Info("migrations applied")
			return nil
		},
	}
}
