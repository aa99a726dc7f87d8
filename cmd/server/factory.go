package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/factory"
	"github.com/lychee-technology/facet/internal"
)

// newFieldManager builds the manager for the selected storage backend
// ("postgres" or "memory"). The pool is nil for the memory backend.
func newFieldManager(config *facet.Config, storage string) (facet.FieldManager, *pgxpool.Pool, error) {
	switch storage {
	case "memory":
		manager, err := factory.NewInMemoryFieldManager(config)
		return manager, nil, err
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", storage)
	}

	if err := internal.ValidatePostgresConfig(config.Database); err != nil {
		return nil, nil, err
	}

	pool, err := createDatabasePool(config.Database)
	if err != nil {
		return nil, nil, err
	}

	manager, err := factory.NewFieldManagerWithConfig(config, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return manager, pool, nil
}

// createDatabasePool creates a PostgreSQL connection pool
func createDatabasePool(config facet.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
		config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MinConns = int32(config.MaxIdleConns)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := internal.PingPostgres(context.Background(), pool, 5*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
