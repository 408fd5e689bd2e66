package document

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/docextract/internal/config"
	"github.com/nikhilbhutani/docextract/internal/database"
)

// Open connects the Postgres store and applies pending migrations. Without a
// DATABASE_URL it falls back to an in-process MemoryStore and a nil pool.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, *pgxpool.Pool, error) {
	if cfg.URL == "" {
		slog.Warn("DATABASE_URL not set, documents are kept in memory")
		return NewMemoryStore(), nil, nil
	}

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := database.RunMigrations(ctx, pool, database.MigrationsFS(cfg.MigrationsPath)); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return NewPostgresStore(pool), pool, nil
}
