package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/platform/postgres"
)

// setupAppDatabase opens the Postgres connection pool. It returns nil
// without error when no database URL is configured.
func setupAppDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	logger.Info("Database connection established")
	return db, nil
}
