package facet

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	if config.Database.MaxConnections != 25 {
		t.Errorf("Expected max connections to be 25, got %d", config.Database.MaxConnections)
	}
	if config.Database.TableNames.Backups != "field_backups" {
		t.Errorf("Expected backups table to be field_backups, got %s", config.Database.TableNames.Backups)
	}

	if config.Fields.CascadeDelete {
		t.Error("Expected cascade delete to be disabled by default")
	}
	if config.Fields.MaxFieldsPerSchema != 100 {
		t.Errorf("Expected max fields per schema to be 100, got %d", config.Fields.MaxFieldsPerSchema)
	}

	if config.Backup.Retention != 30*24*time.Hour {
		t.Errorf("Expected backup retention to be 30 days, got %v", config.Backup.Retention)
	}

	if config.Filter.EnablePushdown {
		t.Error("Expected filter pushdown to be disabled by default")
	}
	if config.Filter.Parallelism != 4 {
		t.Errorf("Expected filter parallelism to be 4, got %d", config.Filter.Parallelism)
	}
}

func TestConfigValidationDetailed(t *testing.T) {
	withConfig := func(mutate func(*Config)) *Config {
		c := DefaultConfig()
		mutate(c)
		return c
	}

	tests := []struct {
		name        string
		config      *Config
		expectError bool
		errorField  string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig(),
			expectError: false,
		},
		{
			name:        "invalid max connections",
			config:      withConfig(func(c *Config) { c.Database.MaxConnections = 0 }),
			expectError: true,
			errorField:  "database.maxConnections",
		},
		{
			name:        "empty table name",
			config:      withConfig(func(c *Config) { c.Database.TableNames.ItemTags = "" }),
			expectError: true,
			errorField:  "database.tableNames",
		},
		{
			name:        "duplicate table name",
			config:      withConfig(func(c *Config) { c.Database.TableNames.Backups = c.Database.TableNames.FieldValues }),
			expectError: true,
			errorField:  "database.tableNames",
		},
		{
			name:        "invalid max fields per schema",
			config:      withConfig(func(c *Config) { c.Fields.MaxFieldsPerSchema = 0 }),
			expectError: true,
			errorField:  "fields.maxFieldsPerSchema",
		},
		{
			name:        "invalid max select options",
			config:      withConfig(func(c *Config) { c.Fields.MaxSelectOptions = -1 }),
			expectError: true,
			errorField:  "fields.maxSelectOptions",
		},
		{
			name:        "invalid retention",
			config:      withConfig(func(c *Config) { c.Backup.Retention = 0 }),
			expectError: true,
			errorField:  "backup.retention",
		},
		{
			name:        "invalid max criteria",
			config:      withConfig(func(c *Config) { c.Filter.MaxCriteria = 0 }),
			expectError: true,
			errorField:  "filter.maxCriteria",
		},
		{
			name:        "invalid parallelism",
			config:      withConfig(func(c *Config) { c.Filter.Parallelism = 0 }),
			expectError: true,
			errorField:  "filter.parallelism",
		},
		{
			name:        "invalid chunk size",
			config:      withConfig(func(c *Config) { c.Filter.ChunkSize = 0 }),
			expectError: true,
			errorField:  "filter.chunkSize",
		},
		{
			name:        "unknown isolation level",
			config:      withConfig(func(c *Config) { c.Transaction.IsolationLevel = "DIRTY" }),
			expectError: true,
			errorField:  "transaction.isolationLevel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				if err == nil {
					t.Error("Expected validation error but got none")
				} else if configErr, ok := err.(*ConfigError); ok {
					if configErr.Field != tt.errorField {
						t.Errorf("Expected error field %s, got %s", tt.errorField, configErr.Field)
					}
				} else {
					t.Errorf("Expected ConfigError, got %T", err)
				}
			} else {
				if err != nil {
					t.Errorf("Expected no validation error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "test.field",
		Message: "test message",
	}

	expected := "config validation error for field 'test.field': test message"
	if err.Error() != expected {
		t.Errorf("Expected error message %s, got %s", expected, err.Error())
	}
}
