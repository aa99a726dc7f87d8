package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal/filter"
	"go.uber.org/zap"
)

// pgPool is satisfied by *pgxpool.Pool and pgxmock pools.
type pgPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// pgExecutor is the statement surface shared by pgx.Tx and pgxmock pools.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var isoLevels = map[string]pgx.TxIsoLevel{
	"READ_COMMITTED":  pgx.ReadCommitted,
	"REPEATABLE_READ": pgx.RepeatableRead,
	"SERIALIZABLE":    pgx.Serializable,
}

const uniqueViolation = "23505"

// PostgresStore runs units of work as Postgres transactions.
type PostgresStore struct {
	pool       pgPool
	tables     sqlTables
	isoLevel   pgx.TxIsoLevel
	logQueries bool
}

func NewPostgresStore(pool pgPool, config *facet.Config) *PostgresStore {
	if config == nil {
		config = facet.DefaultConfig()
	}
	return &PostgresStore{
		pool:       pool,
		tables:     resolveTables(config.Database.TableNames),
		isoLevel:   isoLevels[config.Transaction.IsolationLevel],
		logQueries: config.Logging.LogQueries,
	}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.isoLevel})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	if err := fn(s.wrap(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadOnly runs fn in a read-only transaction that is always rolled back.
func (s *PostgresStore) ReadOnly(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	return fn(s.wrap(tx))
}

func (s *PostgresStore) wrap(q pgExecutor) *postgresTx {
	if s.logQueries {
		q = loggingExecutor{next: q}
	}
	return &postgresTx{q: q, tables: s.tables}
}

type loggingExecutor struct {
	next pgExecutor
}

func (l loggingExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	zap.S().Debugw("exec", "sql", sql, "args", len(args))
	return l.next.Exec(ctx, sql, args...)
}

func (l loggingExecutor) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	zap.S().Debugw("query", "sql", sql, "args", len(args))
	return l.next.Query(ctx, sql, args...)
}

func (l loggingExecutor) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	zap.S().Debugw("query row", "sql", sql, "args", len(args))
	return l.next.QueryRow(ctx, sql, args...)
}

// postgresTx implements Tx and ItemFilterer on top of one transaction.
type postgresTx struct {
	q      pgExecutor
	tables sqlTables
}

var (
	_ Tx           = (*postgresTx)(nil)
	_ ItemFilterer = (*postgresTx)(nil)
)

func (t *postgresTx) FilterItemIDs(ctx context.Context, p *filter.Predicate, scope filter.Scope) ([]uuid.UUID, error) {
	query, args, err := p.ToSQL(t.tables.filterTables(), scope)
	if err != nil {
		return nil, fmt.Errorf("render filter: %w", err)
	}
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filter: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
