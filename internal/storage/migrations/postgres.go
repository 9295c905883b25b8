package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"kalshi-trader/internal/storage/postgres"
)

const postgresLedger = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// RunPostgresMigrations applies embedded scripts not yet recorded in
// schema_migrations, each in its own transaction, and returns the versions applied.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	list, err := scripts(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresLedger); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	done, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	seen := make(map[string]bool, len(done))
	for _, v := range done {
		seen[v] = true
	}

	var applied []string
	for _, s := range list {
		if seen[s.Version] {
			continue
		}
		if err := applyPostgres(ctx, pool, s); err != nil {
			return applied, err
		}
		applied = append(applied, s.Version)
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, s script) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", s.Name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, s.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", s.Name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, s.Version, s.Name); err != nil {
		return fmt.Errorf("record migration %s: %w", s.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", s.Name, err)
	}
	return nil
}
