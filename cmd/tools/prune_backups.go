package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/lychee-technology/facet"
)

type pruneOptions struct {
	conn      connOptions
	table     string
	retention time.Duration
	dryRun    bool
}

// sqlExecer is the database/sql surface used by pruning.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func runPruneBackups(args []string) error {
	flags := flag.NewFlagSet("prune-backups", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facet-tools prune-backups [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := pruneOptions{}
	registerConnFlags(flags, &opts.conn)
	flags.StringVar(&opts.table, "backups-table", getenvDefault("BACKUPS_TABLE", facet.DefaultTableNames().Backups), "field backups table")
	flags.DurationVar(&opts.retention, "retention", facet.DefaultConfig().Backup.Retention, "delete backups older than this")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "only count the backups that would be deleted")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.retention <= 0 {
		return fmt.Errorf("-retention must be positive")
	}

	db, err := sql.Open("postgres", buildConnString(opts.conn))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-opts.retention)
	n, err := pruneBackups(ctx, db, opts.table, cutoff, opts.dryRun)
	if err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Printf("Backups older than %s: %d\n", cutoff.Format(time.RFC3339), n)
	} else {
		fmt.Printf("Pruned backups older than %s: %d\n", cutoff.Format(time.RFC3339), n)
	}
	return nil
}

// pruneBackups deletes (or counts, when dryRun is set) backups created before cutoff.
func pruneBackups(ctx context.Context, db sqlExecer, table string, cutoff time.Time, dryRun bool) (int64, error) {
	quoted := quoteTable(table)
	if dryRun {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE created_at < $1`, quoted)
		if err := db.QueryRowContext(ctx, query, cutoff.UnixMilli()).Scan(&n); err != nil {
			return 0, fmt.Errorf("count backups: %w", err)
		}
		return n, nil
	}

	res, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, quoted), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete backups: %w", err)
	}
	return res.RowsAffected()
}

// quoteTable quotes each part of a possibly schema-qualified name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(strings.TrimSpace(part))
	}
	return strings.Join(parts, ".")
}
