// Package repository selects and opens the configured message store.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"variantree/internal/config"
	branchingRepo "variantree/internal/domain/repositories/branching"
	"variantree/internal/repository/pebblestore"
	"variantree/internal/repository/postgres"
	postgresBranching "variantree/internal/repository/postgres/branching"
)

// Store is a MessageStore that owns its underlying resources
type Store interface {
	branchingRepo.MessageStore
	Close() error
}

// postgresStore ties the pool's lifetime to the store
type postgresStore struct {
	branchingRepo.MessageStore
	pool *pgxpool.Pool
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Open opens the store selected by cfg.StoreDriver
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPebble:
		store, err := pebblestore.Open(cfg.PebblePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want %s or %s)", cfg.StoreDriver, config.DriverPostgres, config.DriverPebble)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the %s driver", config.DriverPostgres)
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected",
		"max_conns", postgres.MaxConns,
		"min_conns", postgres.MinConns,
	)

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, pool, tables); err != nil {
			pool.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
		logger.Info("schema applied", "table", tables.Messages)
	}

	store := postgresBranching.NewMessageStore(&postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	})
	return &postgresStore{MessageStore: store, pool: pool}, nil
}
