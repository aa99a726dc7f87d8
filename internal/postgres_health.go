package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facet"
)

const defaultHealthTimeout = 5 * time.Second

var sslModes = map[string]struct{}{
	"": {}, "disable": {}, "allow": {}, "prefer": {}, "require": {}, "verify-ca": {}, "verify-full": {},
}

// ValidatePostgresConfig checks the connection settings of the field store
// before a pool is opened.
func ValidatePostgresConfig(cfg facet.DatabaseConfig) error {
	switch {
	case cfg.Host == "":
		return &facet.ConfigError{Field: "database.host", Message: "is required"}
	case cfg.Port <= 0 || cfg.Port > 65535:
		return &facet.ConfigError{Field: "database.port", Message: fmt.Sprintf("%d is not a TCP port", cfg.Port)}
	case cfg.MaxConnections <= 0:
		return &facet.ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	if _, ok := sslModes[cfg.SSLMode]; !ok {
		return &facet.ConfigError{Field: "database.sslMode", Message: fmt.Sprintf("unknown sslmode %q", cfg.SSLMode)}
	}
	return nil
}

// Pinger is satisfied by *pgxpool.Pool and pgxmock pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FieldStorePool is what a readiness check needs from a pool.
type FieldStorePool interface {
	Pinger
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PingPostgres checks an existing pool. timeout may be 0 to use 5s.
func PingPostgres(ctx context.Context, pool Pinger, timeout time.Duration) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is not configured")
	}
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// MissingTables returns the configured field store tables that do not
// resolve in the database, in creation order.
func MissingTables(ctx context.Context, q FieldStorePool, names facet.TableNames) ([]string, error) {
	all := names.All()
	quoted := make([]string, len(all))
	for i, name := range all {
		quoted[i] = sanitizeIdentifier(name)
	}

	var missing []string
	err := q.QueryRow(ctx, `SELECT coalesce(array_agg(t.name ORDER BY t.ord), '{}')
		FROM unnest($1::text[]) WITH ORDINALITY AS t(name, ord)
		WHERE to_regclass(t.name) IS NULL`, quoted).Scan(&missing)
	if err != nil {
		return nil, fmt.Errorf("resolve field store tables: %w", err)
	}
	return missing, nil
}

// CheckFieldStore reports whether the pool answers and every table of the
// field store exists. /healthz reports its result.
func CheckFieldStore(ctx context.Context, pool FieldStorePool, names facet.TableNames, timeout time.Duration) error {
	if err := PingPostgres(ctx, pool, timeout); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	missing, err := MissingTables(ctx, pool, names)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("field store tables missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PostgresHealthCheck opens a short-lived pool on dsn and pings it. init-db
// runs it before the field store tables exist.
func PostgresHealthCheck(ctx context.Context, dsn string, timeout time.Duration) error {
	if dsn == "" {
		return fmt.Errorf("empty dsn")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	return PingPostgres(ctx, pool, timeout)
}
