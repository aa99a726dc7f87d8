package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes a FieldManager over HTTP.
type Server struct {
	manager facet.FieldManager
	pool    internal.FieldStorePool
	tables  facet.TableNames
	mux     *http.ServeMux
}

// NewServer creates a new Server instance. pool may be nil for the in-memory
// backend; otherwise /healthz checks that the tables named in tables exist.
func NewServer(manager facet.FieldManager, pool internal.FieldStorePool, tables facet.TableNames) *Server {
	return &Server{
		manager: manager,
		pool:    pool,
		tables:  tables,
		mux:     http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("POST /api/v1/fields", s.handleCreateField)
	s.mux.HandleFunc("GET /api/v1/fields", s.handleListFields)
	s.mux.HandleFunc("GET /api/v1/fields/{id}", s.handleGetField)
	s.mux.HandleFunc("DELETE /api/v1/fields/{id}", s.handleDeleteField)

	s.mux.HandleFunc("POST /api/v1/schemas", s.handleCreateSchema)
	s.mux.HandleFunc("GET /api/v1/schemas/{id}", s.handleGetSchema)
	s.mux.HandleFunc("PUT /api/v1/schemas/{id}/fields", s.handleSetSchemaFields)

	s.mux.HandleFunc("POST /api/v1/collections", s.handleCreateCollection)
	s.mux.HandleFunc("PUT /api/v1/collections/{id}/default-schema", s.handleSetDefaultSchema)

	s.mux.HandleFunc("POST /api/v1/tags", s.handleCreateTag)
	s.mux.HandleFunc("DELETE /api/v1/tags/{id}", s.handleDeleteTag)

	s.mux.HandleFunc("POST /api/v1/items", s.handleCreateItem)
	s.mux.HandleFunc("POST /api/v1/items/filter", s.handleFilterItems)
	s.mux.HandleFunc("PUT /api/v1/items/{id}/category", s.handleSetCategory)
	s.mux.HandleFunc("GET /api/v1/items/{id}/fields", s.handleEffectiveFields)
	s.mux.HandleFunc("GET /api/v1/items/{id}/values", s.handleGetValues)
	s.mux.HandleFunc("PUT /api/v1/items/{id}/values", s.handleSetValues)
	s.mux.HandleFunc("GET /api/v1/items/{id}/backups", s.handleListBackups)
	s.mux.HandleFunc("POST /api/v1/items/{id}/category/{categoryId}/restore", s.handleRestore)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	config := loadConfig()

	if config.Metrics.Enabled {
		internal.RegisterTelemetryEmitter(newPrometheusEmitter(config.Metrics.Namespace).Emit)
	}

	manager, pool, err := newFieldManager(config, getEnv("STORAGE", "postgres"))
	if err != nil {
		sugar.Fatalf("failed to create field manager: %v", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	var storePool internal.FieldStorePool
	if pool != nil {
		storePool = pool
	}
	server := NewServer(manager, storePool, config.Database.TableNames)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// loadConfig overlays environment variables on the default configuration.
func loadConfig() *facet.Config {
	config := facet.DefaultConfig()

	config.Database.Host = getEnv("DB_HOST", config.Database.Host)
	config.Database.Port = getEnvInt("DB_PORT", config.Database.Port)
	config.Database.Database = getEnv("DB_NAME", "facet")
	config.Database.Username = getEnv("DB_USER", "postgres")
	config.Database.Password = getEnv("DB_PASSWORD", "")
	config.Database.SSLMode = getEnv("DB_SSL_MODE", config.Database.SSLMode)
	config.Database.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", config.Database.MaxConnections)
	config.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", config.Database.MaxIdleConns)
	config.Database.ConnMaxLifetime = time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
	config.Database.ConnMaxIdleTime = time.Duration(getEnvInt("DB_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second
	config.Database.Timeout = time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 30)) * time.Second

	tables := &config.Database.TableNames
	tables.Fields = getEnv("FIELDS_TABLE", tables.Fields)
	tables.Schemas = getEnv("SCHEMAS_TABLE", tables.Schemas)
	tables.Collections = getEnv("COLLECTIONS_TABLE", tables.Collections)
	tables.Tags = getEnv("TAGS_TABLE", tables.Tags)
	tables.Items = getEnv("ITEMS_TABLE", tables.Items)
	tables.ItemTags = getEnv("ITEM_TAGS_TABLE", tables.ItemTags)
	tables.FieldValues = getEnv("FIELD_VALUES_TABLE", tables.FieldValues)
	tables.Backups = getEnv("BACKUPS_TABLE", tables.Backups)

	config.Fields.CascadeDelete = getEnvBool("FIELDS_CASCADE_DELETE", config.Fields.CascadeDelete)
	config.Backup.Retention = time.Duration(getEnvInt("BACKUP_RETENTION_HOURS", int(config.Backup.Retention/time.Hour))) * time.Hour
	config.Filter.MaxCriteria = getEnvInt("FILTER_MAX_CRITERIA", config.Filter.MaxCriteria)
	config.Filter.Parallelism = getEnvInt("FILTER_PARALLELISM", config.Filter.Parallelism)
	config.Filter.EnablePushdown = getEnvBool("FILTER_PUSHDOWN", config.Filter.EnablePushdown)
	config.Transaction.IsolationLevel = getEnv("TX_ISOLATION_LEVEL", config.Transaction.IsolationLevel)
	config.Logging.LogQueries = getEnvBool("LOG_QUERIES", config.Logging.LogQueries)
	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", config.Metrics.Enabled)
	config.Metrics.Namespace = getEnv("METRICS_NAMESPACE", config.Metrics.Namespace)

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
