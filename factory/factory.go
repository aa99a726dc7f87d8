package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal"
	"go.uber.org/zap"
)

// tableChecker is swapped out in tests.
var tableChecker = func(ctx context.Context, pool internal.FieldStorePool, names facet.TableNames) ([]string, error) {
	return internal.MissingTables(ctx, pool, names)
}

// NewFieldManagerWithConfig creates a FieldManager backed by Postgres. The
// tables named in config.Database.TableNames must already exist; create them
// with `tools init-db`.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/facet"
//	    "github.com/lychee-technology/facet/factory"
//	)
//
//	config := facet.DefaultConfig()
//	fm, err := factory.NewFieldManagerWithConfig(config, pool)
//	if err != nil {
//	    // handle error
//	}
func NewFieldManagerWithConfig(config *facet.Config, pool *pgxpool.Pool) (facet.FieldManager, error) {
	if config == nil {
		config = facet.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	missing, err := tableChecker(context.Background(), pool, config.Database.TableNames)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database tables: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required tables are missing in the database: %s", strings.Join(missing, ", "))
	}
	zap.S().Infow("field manager tables verified", "tables", len(config.Database.TableNames.All()))

	store := internal.NewPostgresStore(pool, config)
	return internal.NewFieldManager(store, config), nil
}

// NewInMemoryFieldManager creates a FieldManager that keeps everything in
// process memory. Useful for tests and local tooling.
func NewInMemoryFieldManager(config *facet.Config) (facet.FieldManager, error) {
	if config == nil {
		config = facet.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return internal.NewFieldManager(internal.NewMemoryStore(), config), nil
}
