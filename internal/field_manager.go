package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal/filter"
	"go.uber.org/zap"
)

// fieldManager implements facet.FieldManager on top of a Store.
type fieldManager struct {
	store     Store
	config    *facet.Config
	evaluator *filter.Evaluator
	now       func() time.Time
}

// NewFieldManager creates a new FieldManager instance.
func NewFieldManager(store Store, config *facet.Config) facet.FieldManager {
	return newFieldManager(store, config)
}

func newFieldManager(store Store, config *facet.Config) *fieldManager {
	if config == nil {
		config = facet.DefaultConfig()
	}
	return &fieldManager{
		store:     store,
		config:    config,
		evaluator: filter.NewEvaluator(config.Filter),
		now:       time.Now,
	}
}

func (m *fieldManager) nowMillis() int64 {
	return m.now().UnixMilli()
}

// write runs fn in a read-write unit of work bounded by the configured
// transaction timeout.
func (m *fieldManager) write(ctx context.Context, op string, fn func(tx Tx) error) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return classifyStoreError(op, m.store.WithTx(ctx, fn))
}

func (m *fieldManager) read(ctx context.Context, op string, fn func(tx Tx) error) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return classifyStoreError(op, m.store.ReadOnly(ctx, fn))
}

func (m *fieldManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.Transaction.DefaultTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.config.Transaction.DefaultTimeout)
}

// classifyStoreError passes domain errors through and reports everything
// else as a failed transaction.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := facet.AsFacetError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return facet.NewTransactionError(op+" interrupted", err)
	}
	return facet.NewTransactionError(op+" failed", err)
}

func (m *fieldManager) CreateField(ctx context.Context, owner uuid.UUID, req *facet.CreateFieldRequest) (*facet.Field, error) {
	if req == nil {
		return nil, facet.NewInvalidConfigError("request", "request cannot be nil")
	}

	field := &facet.Field{
		ID:        uuid.Must(uuid.NewV7()),
		OwnerID:   owner,
		Name:      req.Name,
		Type:      req.Type,
		Config:    req.Config,
		CreatedAt: m.nowMillis(),
	}
	if err := field.Validate(); err != nil {
		return nil, err
	}
	if field.Config.Select != nil && len(field.Config.Select.Options) > m.config.Fields.MaxSelectOptions {
		return nil, facet.NewInvalidConfigError("config.select.options",
			fmt.Sprintf("at most %d options are allowed", m.config.Fields.MaxSelectOptions))
	}

	err := m.write(ctx, "create field", func(tx Tx) error {
		if req.SchemaID == nil {
			return tx.InsertField(ctx, field)
		}

		schema, err := loadSchema(ctx, tx, owner, *req.SchemaID)
		if err != nil {
			return err
		}
		current, err := schemaFields(ctx, tx, schema)
		if err != nil {
			return err
		}
		proposed := append(current, *field)
		if err := m.checkSchemaSize(len(proposed)); err != nil {
			return err
		}
		if err := checkSchemaEdit(ctx, tx, owner, schema.ID, proposed); err != nil {
			return err
		}

		if err := tx.InsertField(ctx, field); err != nil {
			return fmt.Errorf("insert field: %w", err)
		}
		fieldIDs := append(append([]uuid.UUID{}, schema.FieldIDs...), field.ID)
		if err := tx.UpdateSchemaFields(ctx, schema.ID, fieldIDs, m.nowMillis()); err != nil {
			return fmt.Errorf("append field to schema: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("created field", "fieldID", field.ID, "name", field.Name, "type", field.Type, "schemaID", req.SchemaID)
	return field, nil
}

func (m *fieldManager) GetField(ctx context.Context, owner, fieldID uuid.UUID) (*facet.Field, error) {
	var field *facet.Field
	err := m.read(ctx, "get field", func(tx Tx) error {
		var err error
		field, err = loadField(ctx, tx, owner, fieldID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

func (m *fieldManager) ListFields(ctx context.Context, owner uuid.UUID) ([]facet.Field, error) {
	var fields []facet.Field
	err := m.read(ctx, "list fields", func(tx Tx) error {
		var err error
		fields, err = tx.ListFields(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// DeleteField removes a field definition. Values and backup entries that
// still reference the field block the deletion unless cascading is enabled.
func (m *fieldManager) DeleteField(ctx context.Context, owner, fieldID uuid.UUID) error {
	var valueCount, backupCount int64
	err := m.write(ctx, "delete field", func(tx Tx) error {
		if _, err := loadField(ctx, tx, owner, fieldID); err != nil {
			return err
		}

		var err error
		valueCount, err = tx.CountFieldValuesByField(ctx, fieldID)
		if err != nil {
			return fmt.Errorf("count field values: %w", err)
		}
		backupCount, err = tx.CountBackupsWithField(ctx, fieldID)
		if err != nil {
			return fmt.Errorf("count backups: %w", err)
		}

		if valueCount > 0 || backupCount > 0 {
			if !m.config.Fields.CascadeDelete {
				return facet.NewFieldInUseError(fieldID, valueCount, backupCount)
			}
			if _, err := tx.DeleteFieldValuesByField(ctx, fieldID); err != nil {
				return fmt.Errorf("delete field values: %w", err)
			}
			if err := tx.StripFieldFromBackups(ctx, fieldID); err != nil {
				return fmt.Errorf("strip field from backups: %w", err)
			}
		}

		schemas, err := tx.ListSchemasWithField(ctx, fieldID)
		if err != nil {
			return fmt.Errorf("list schemas with field: %w", err)
		}
		now := m.nowMillis()
		for _, schema := range schemas {
			if err := tx.UpdateSchemaFields(ctx, schema.ID, without(schema.FieldIDs, fieldID), now); err != nil {
				return fmt.Errorf("detach field from schema %s: %w", schema.ID, err)
			}
		}

		return tx.DeleteField(ctx, fieldID)
	})
	if err != nil {
		return err
	}

	zap.S().Infow("deleted field", "fieldID", fieldID, "values", valueCount, "backups", backupCount, "cascade", m.config.Fields.CascadeDelete)
	return nil
}

func (m *fieldManager) checkSchemaSize(n int) error {
	if n > m.config.Fields.MaxFieldsPerSchema {
		return facet.NewInvalidConfigError("fieldIds",
			fmt.Sprintf("a schema holds at most %d fields", m.config.Fields.MaxFieldsPerSchema))
	}
	return nil
}
