package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init-db":
		if err := runInitDB(os.Args[2:]); err != nil {
			sugar.Fatalf("init-db: %v", err)
		}
	case "prune-backups":
		if err := runPruneBackups(os.Args[2:]); err != nil {
			sugar.Fatalf("prune-backups: %v", err)
		}
	case "values-schema":
		if err := runValuesSchema(os.Args[2:]); err != nil {
			sugar.Fatalf("values-schema: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: facet-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db         Create PostgreSQL tables and indexes for the field store")
	logger.Info("  prune-backups   Delete field backups older than the retention window")
	logger.Info("  values-schema   Print the JSON Schema of a values document for a set of field definitions")
}
