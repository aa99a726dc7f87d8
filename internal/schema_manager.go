package internal

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"go.uber.org/zap"
)

func (m *fieldManager) CreateSchema(ctx context.Context, owner uuid.UUID, name string, fieldIDs []uuid.UUID) (*facet.Schema, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, facet.NewInvalidConfigError("name", "schema name cannot be empty")
	}
	if err := m.checkFieldList(fieldIDs); err != nil {
		return nil, err
	}

	now := m.nowMillis()
	schema := &facet.Schema{
		ID:        uuid.Must(uuid.NewV7()),
		OwnerID:   owner,
		Name:      name,
		FieldIDs:  slices.Clone(fieldIDs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if schema.FieldIDs == nil {
		schema.FieldIDs = []uuid.UUID{}
	}

	err := m.write(ctx, "create schema", func(tx Tx) error {
		fields, err := loadOwnedFields(ctx, tx, owner, fieldIDs)
		if err != nil {
			return err
		}
		// A new schema has no role yet; only its own names can clash.
		if err := findNameConflict(fields); err != nil {
			return err
		}
		return tx.InsertSchema(ctx, schema)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("created schema", "schemaID", schema.ID, "name", schema.Name, "fields", len(schema.FieldIDs))
	return schema, nil
}

func (m *fieldManager) GetSchema(ctx context.Context, owner, schemaID uuid.UUID) (*facet.Schema, error) {
	var schema *facet.Schema
	err := m.read(ctx, "get schema", func(tx Tx) error {
		var err error
		schema, err = loadSchema(ctx, tx, owner, schemaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func (m *fieldManager) ListSchemas(ctx context.Context, owner uuid.UUID) ([]facet.Schema, error) {
	var schemas []facet.Schema
	err := m.read(ctx, "list schemas", func(tx Tx) error {
		var err error
		schemas, err = tx.ListSchemas(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return schemas, nil
}

func (m *fieldManager) AddSchemaField(ctx context.Context, owner, schemaID, fieldID uuid.UUID) (*facet.Schema, error) {
	var schema *facet.Schema
	err := m.write(ctx, "add schema field", func(tx Tx) error {
		var err error
		schema, err = loadSchema(ctx, tx, owner, schemaID)
		if err != nil {
			return err
		}
		if schema.Contains(fieldID) {
			return facet.NewAlreadyPresentError(schemaID, fieldID)
		}
		added, err := loadOwnedFields(ctx, tx, owner, []uuid.UUID{fieldID})
		if err != nil {
			return err
		}
		if err := m.checkSchemaSize(len(schema.FieldIDs) + 1); err != nil {
			return err
		}

		current, err := schemaFields(ctx, tx, schema)
		if err != nil {
			return err
		}
		if err := checkSchemaEdit(ctx, tx, owner, schemaID, append(current, added...)); err != nil {
			return err
		}

		schema.FieldIDs = append(schema.FieldIDs, fieldID)
		schema.UpdatedAt = m.nowMillis()
		return tx.UpdateSchemaFields(ctx, schemaID, schema.FieldIDs, schema.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("added field to schema", "schemaID", schemaID, "fieldID", fieldID)
	return schema, nil
}

// RemoveSchemaField is idempotent: removing a field the schema does not list
// returns the schema unchanged.
func (m *fieldManager) RemoveSchemaField(ctx context.Context, owner, schemaID, fieldID uuid.UUID) (*facet.Schema, error) {
	var schema *facet.Schema
	err := m.write(ctx, "remove schema field", func(tx Tx) error {
		var err error
		schema, err = loadSchema(ctx, tx, owner, schemaID)
		if err != nil {
			return err
		}
		if !schema.Contains(fieldID) {
			return nil
		}
		schema.FieldIDs = without(schema.FieldIDs, fieldID)
		schema.UpdatedAt = m.nowMillis()
		return tx.UpdateSchemaFields(ctx, schemaID, schema.FieldIDs, schema.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func (m *fieldManager) SetSchemaFields(ctx context.Context, owner, schemaID uuid.UUID, fieldIDs []uuid.UUID) (*facet.Schema, error) {
	if err := m.checkFieldList(fieldIDs); err != nil {
		return nil, err
	}

	var schema *facet.Schema
	err := m.write(ctx, "set schema fields", func(tx Tx) error {
		var err error
		schema, err = loadSchema(ctx, tx, owner, schemaID)
		if err != nil {
			return err
		}
		fields, err := loadOwnedFields(ctx, tx, owner, fieldIDs)
		if err != nil {
			return err
		}
		if err := checkSchemaEdit(ctx, tx, owner, schemaID, fields); err != nil {
			return err
		}

		schema.FieldIDs = slices.Clone(fieldIDs)
		if schema.FieldIDs == nil {
			schema.FieldIDs = []uuid.UUID{}
		}
		schema.UpdatedAt = m.nowMillis()
		return tx.UpdateSchemaFields(ctx, schemaID, schema.FieldIDs, schema.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("replaced schema fields", "schemaID", schemaID, "fields", len(fieldIDs))
	return schema, nil
}

func (m *fieldManager) checkFieldList(fieldIDs []uuid.UUID) error {
	if dup, ok := firstDuplicate(fieldIDs); ok {
		return facet.NewDuplicateFieldError(dup)
	}
	return m.checkSchemaSize(len(fieldIDs))
}

func (m *fieldManager) CreateCollection(ctx context.Context, owner uuid.UUID, name string, defaultSchemaID *uuid.UUID) (*facet.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, facet.NewInvalidConfigError("name", "collection name cannot be empty")
	}

	collection := &facet.Collection{
		ID:              uuid.Must(uuid.NewV7()),
		OwnerID:         owner,
		Name:            name,
		DefaultSchemaID: defaultSchemaID,
		CreatedAt:       m.nowMillis(),
	}

	err := m.write(ctx, "create collection", func(tx Tx) error {
		if defaultSchemaID != nil {
			if err := checkPairing(ctx, tx, owner, *defaultSchemaID, true); err != nil {
				return err
			}
		}
		return tx.InsertCollection(ctx, collection)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("created collection", "collectionID", collection.ID, "defaultSchemaID", defaultSchemaID)
	return collection, nil
}

func (m *fieldManager) GetCollection(ctx context.Context, owner, collectionID uuid.UUID) (*facet.Collection, error) {
	var collection *facet.Collection
	err := m.read(ctx, "get collection", func(tx Tx) error {
		var err error
		collection, err = loadCollection(ctx, tx, owner, collectionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// SetCollectionDefaultSchema replaces or clears the default schema. Values of
// fields that drop out of the effective sets are kept.
func (m *fieldManager) SetCollectionDefaultSchema(ctx context.Context, owner, collectionID uuid.UUID, schemaID *uuid.UUID) (*facet.Collection, error) {
	var collection *facet.Collection
	err := m.write(ctx, "set collection default schema", func(tx Tx) error {
		var err error
		collection, err = loadCollection(ctx, tx, owner, collectionID)
		if err != nil {
			return err
		}
		if schemaID != nil {
			if err := checkPairing(ctx, tx, owner, *schemaID, true); err != nil {
				return err
			}
		}
		if err := tx.UpdateCollectionDefaultSchema(ctx, collectionID, schemaID); err != nil {
			return fmt.Errorf("update default schema: %w", err)
		}
		collection.DefaultSchemaID = schemaID
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Infow("changed collection default schema", "collectionID", collectionID, "schemaID", schemaID)
	return collection, nil
}
