package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/config"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
	chstore "kalshi-trader/internal/storage/clickhouse"
	"kalshi-trader/internal/storage/file"
	"kalshi-trader/internal/storage/memory"
	"kalshi-trader/internal/storage/migrations"
	pgstore "kalshi-trader/internal/storage/postgres"
)

// stores holds the persistence selected by the storage backend.
type stores struct {
	positions storage.PositionStore
	events    storage.EventLog
	cooldowns map[domain.SignalKind]storage.CooldownStore
	close     func()
}

// openStores creates the stores for cfg.Storage. Postgres and ClickHouse
// schemas are migrated on open. A configured ClickHouse DSN takes over the
// event log from the primary backend.
func openStores(ctx context.Context, cfg config.Storage, log zerolog.Logger) (*stores, error) {
	s := &stores{
		cooldowns: make(map[domain.SignalKind]storage.CooldownStore, len(domain.AllKinds)),
		close:     func() {},
	}

	switch cfg.Backend {
	case config.BackendMemory:
		s.positions = memory.NewPositionStore()
		s.events = memory.NewEventLog(cfg.EventLogCap)
		for _, kind := range domain.AllKinds {
			s.cooldowns[kind] = memory.NewCooldownStore()
		}

	case config.BackendFile:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		s.positions = file.NewPositionStore(filepath.Join(cfg.Dir, "positions.json"))
		events, err := file.NewEventLog(filepath.Join(cfg.Dir, "events.jsonl"), cfg.EventLogCap)
		if err != nil {
			return nil, err
		}
		s.events = events
		for _, kind := range domain.AllKinds {
			cd, err := file.NewCooldownStore(filepath.Join(cfg.Dir, "cooldowns_"+string(kind)+".json"))
			if err != nil {
				return nil, err
			}
			s.cooldowns[kind] = cd
		}

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		if len(applied) > 0 {
			log.Info().Strs("versions", applied).Msg("postgres migrations applied")
		}
		s.positions = pgstore.NewPositionStore(pool)
		s.events = pgstore.NewEventLog(pool, cfg.EventLogCap)
		for _, kind := range domain.AllKinds {
			s.cooldowns[kind] = pgstore.NewCooldownStore(pool, string(kind))
		}
		s.close = pool.Close

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		s.events = chstore.NewEventLog(conn)
		primary := s.close
		s.close = func() {
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Msg("close clickhouse")
			}
			primary()
		}
	}

	log.Info().Str("backend", cfg.Backend).Bool("clickhouse_events", cfg.ClickhouseDSN != "").Msg("storage ready")
	return s, nil
}
