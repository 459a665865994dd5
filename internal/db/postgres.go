// Package db opens the Postgres pool backing the dedup store and applies
// schema migrations at startup.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darrenwatt/truthy/internal/config"
)

// Open builds the connection pool and proves connectivity with a bounded
// ping. A failure here is fatal upstream: the poll loop must not start
// without a reachable dedup store.
func Open(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies pending up-migrations from the migrations/ directory.
// Safe to run on every start; applied versions are skipped.
func Migrate(databaseURL string) error {
	m, err := migrate.New("file://migrations", migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// or postgresql:// connection string onto
// the pgx5:// scheme registered by golang-migrate's pgx/v5 driver.
func migrateURL(databaseURL string) string {
	rest := strings.TrimPrefix(databaseURL, "postgresql://")
	if rest == databaseURL {
		rest = strings.TrimPrefix(databaseURL, "postgres://")
	}
	return "pgx5://" + rest
}
