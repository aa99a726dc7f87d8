package facet

import (
	"fmt"
	"time"
)

// Config holds every tunable of the field core.
type Config struct {
	Database    DatabaseConfig    `json:"database"`
	Fields      FieldsConfig      `json:"fields"`
	Backup      BackupConfig      `json:"backup"`
	Filter      FilterConfig      `json:"filter"`
	Transaction TransactionConfig `json:"transaction"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`
	TableNames      TableNames    `json:"tableNames"`
}

// TableNames lets deployments prefix or rename the backing tables.
type TableNames struct {
	Fields      string `json:"fields"`
	Schemas     string `json:"schemas"`
	Collections string `json:"collections"`
	Tags        string `json:"tags"`
	Items       string `json:"items"`
	ItemTags    string `json:"itemTags"`
	FieldValues string `json:"fieldValues"`
	Backups     string `json:"backups"`
}

// DefaultTableNames returns the table names created by `tools init-db`.
func DefaultTableNames() TableNames {
	return TableNames{
		Fields:      "fields",
		Schemas:     "schemas",
		Collections: "collections",
		Tags:        "tags",
		Items:       "items",
		ItemTags:    "item_tags",
		FieldValues: "field_values",
		Backups:     "field_backups",
	}
}

// All returns the table names in creation order.
func (t TableNames) All() []string {
	return []string{t.Fields, t.Schemas, t.Collections, t.Tags, t.Items, t.ItemTags, t.FieldValues, t.Backups}
}

type FieldsConfig struct {
	// CascadeDelete lets DeleteField drop the field's stored values and
	// backup entries instead of failing with FIELD_IN_USE.
	CascadeDelete      bool `json:"cascadeDelete"`
	MaxFieldsPerSchema int  `json:"maxFieldsPerSchema"`
	MaxSelectOptions   int  `json:"maxSelectOptions"`
}

type BackupConfig struct {
	Retention time.Duration `json:"retention"`
}

// FilterConfig controls FilterItems.
type FilterConfig struct {
	MaxCriteria int `json:"maxCriteria"`
	// Parallelism caps the goroutines evaluating one request.
	Parallelism int `json:"parallelism"`
	// ParallelThreshold is the item count below which evaluation stays on the calling goroutine.
	ParallelThreshold int  `json:"parallelThreshold"`
	ChunkSize         int  `json:"chunkSize"`
	EnablePushdown    bool `json:"enablePushdown"`
}

// TransactionConfig contains transaction settings
type TransactionConfig struct {
	DefaultTimeout time.Duration `json:"defaultTimeout"`
	IsolationLevel string        `json:"isolationLevel"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	LogQueries bool   `json:"logQueries"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames:      DefaultTableNames(),
		},
		Fields: FieldsConfig{
			CascadeDelete:      false,
			MaxFieldsPerSchema: 100,
			MaxSelectOptions:   50,
		},
		Backup: BackupConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Filter: FilterConfig{
			MaxCriteria:       20,
			Parallelism:       4,
			ParallelThreshold: 512,
			ChunkSize:         256,
			EnablePushdown:    false,
		},
		Transaction: TransactionConfig{
			DefaultTimeout: 30 * time.Second,
			IsolationLevel: "READ_COMMITTED",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "facet",
		},
	}
}

var isolationLevels = map[string]struct{}{
	"READ_COMMITTED":  {},
	"REPEATABLE_READ": {},
	"SERIALIZABLE":    {},
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	seen := make(map[string]struct{})
	for _, name := range c.Database.TableNames.All() {
		if name == "" {
			return &ConfigError{Field: "database.tableNames", Message: "table names must not be empty"}
		}
		if _, dup := seen[name]; dup {
			return &ConfigError{Field: "database.tableNames", Message: fmt.Sprintf("table name %q is used twice", name)}
		}
		seen[name] = struct{}{}
	}

	if c.Fields.MaxFieldsPerSchema <= 0 {
		return &ConfigError{Field: "fields.maxFieldsPerSchema", Message: "must be greater than 0"}
	}

	if c.Fields.MaxSelectOptions <= 0 {
		return &ConfigError{Field: "fields.maxSelectOptions", Message: "must be greater than 0"}
	}

	if c.Backup.Retention <= 0 {
		return &ConfigError{Field: "backup.retention", Message: "must be greater than 0"}
	}

	if c.Filter.MaxCriteria <= 0 {
		return &ConfigError{Field: "filter.maxCriteria", Message: "must be greater than 0"}
	}

	if c.Filter.Parallelism <= 0 {
		return &ConfigError{Field: "filter.parallelism", Message: "must be greater than 0"}
	}

	if c.Filter.ChunkSize <= 0 {
		return &ConfigError{Field: "filter.chunkSize", Message: "must be greater than 0"}
	}

	if c.Transaction.IsolationLevel != "" {
		if _, ok := isolationLevels[c.Transaction.IsolationLevel]; !ok {
			return &ConfigError{Field: "transaction.isolationLevel", Message: "must be READ_COMMITTED, REPEATABLE_READ or SERIALIZABLE"}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
