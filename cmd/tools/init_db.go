package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal"
)

type connOptions struct {
	host     string
	port     int
	database string
	user     string
	password string
	sslMode  string
}

type initDBOptions struct {
	conn   connOptions
	tables facet.TableNames
}

func registerConnFlags(flags *flag.FlagSet, opts *connOptions) {
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "facet"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
}

func registerTableFlags(flags *flag.FlagSet, names *facet.TableNames) {
	defaults := facet.DefaultTableNames()
	flags.StringVar(&names.Fields, "fields-table", getenvDefault("FIELDS_TABLE", defaults.Fields), "field definitions table")
	flags.StringVar(&names.Schemas, "schemas-table", getenvDefault("SCHEMAS_TABLE", defaults.Schemas), "schemas table")
	flags.StringVar(&names.Collections, "collections-table", getenvDefault("COLLECTIONS_TABLE", defaults.Collections), "collections table")
	flags.StringVar(&names.Tags, "tags-table", getenvDefault("TAGS_TABLE", defaults.Tags), "tags table")
	flags.StringVar(&names.Items, "items-table", getenvDefault("ITEMS_TABLE", defaults.Items), "items table")
	flags.StringVar(&names.ItemTags, "item-tags-table", getenvDefault("ITEM_TAGS_TABLE", defaults.ItemTags), "item/tag relation table")
	flags.StringVar(&names.FieldValues, "field-values-table", getenvDefault("FIELD_VALUES_TABLE", defaults.FieldValues), "field values table")
	flags.StringVar(&names.Backups, "backups-table", getenvDefault("BACKUPS_TABLE", defaults.Backups), "field backups table")
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facet-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{}
	registerConnFlags(flags, &opts.conn)
	registerTableFlags(flags, &opts.tables)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	config := facet.DefaultConfig()
	config.Database.TableNames = opts.tables
	if err := config.Validate(); err != nil {
		return err
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	ctx := context.Background()
	dsn := buildConnString(opts.conn)

	if err := internal.PostgresHealthCheck(ctx, dsn, 0); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, opts.tables)
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func buildConnString(opts connOptions) string {
	hostPort := fmt.Sprintf("%s:%d", opts.host, opts.port)

	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   hostPort,
		Path:   "/" + opts.database,
	}

	q := url.Values{}
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func ensureTables(ctx context.Context, tx execer, names facet.TableNames) error {
	for i, stmt := range internal.SchemaStatements(names) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	for _, name := range names.All() {
		fmt.Printf("Ensured table: %s\n", name)
	}
	return nil
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
