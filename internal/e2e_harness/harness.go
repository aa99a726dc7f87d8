package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestHarness holds a throwaway Postgres for end-to-end tests.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGDSN       string
	PGDB        *sql.DB
	Pool        *pgxpool.Pool
}

// StartPostgres starts a postgres container and returns a DSN.
// It waits until Postgres is reachable. Caller is responsible for calling StopPostgres.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	h.PGContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", err
	}
	dsn := fmt.Sprintf("postgres://postgres:password@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	h.PGDSN = dsn

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return "", err
	}
	// The port opens before the server accepts queries.
	deadline := time.Now().Add(20 * time.Second)
	for {
		if err := db.PingContext(ctx); err == nil {
			h.PGDB = db
			return dsn, nil
		}
		if time.Now().After(deadline) {
			db.Close()
			return "", fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// ApplySchema creates the field store tables for names.
func (h *TestHarness) ApplySchema(ctx context.Context, names facet.TableNames) error {
	if h.PGDB == nil {
		return fmt.Errorf("postgres is not started")
	}
	for i, stmt := range internal.SchemaStatements(names) {
		if _, err := h.PGDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply statement %d: %w", i+1, err)
		}
	}
	return nil
}

// OpenPool opens a pgx pool on the running container.
func (h *TestHarness) OpenPool(ctx context.Context) (*pgxpool.Pool, error) {
	if h.PGDSN == "" {
		return nil, fmt.Errorf("postgres is not started")
	}
	pool, err := pgxpool.New(ctx, h.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := internal.PingPostgres(ctx, pool, 0); err != nil {
		pool.Close()
		return nil, err
	}
	h.Pool = pool
	return pool, nil
}

// StopPostgres closes the pool and DB handle and stops the container.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.Pool != nil {
		h.Pool.Close()
		h.Pool = nil
	}
	if h.PGDB != nil {
		h.PGDB.Close()
		h.PGDB = nil
	}
	if h.PGContainer != nil {
		if err := h.PGContainer.Terminate(ctx); err != nil {
			return err
		}
		h.PGContainer = nil
	}
	return nil
}
