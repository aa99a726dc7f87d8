package internal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

// The load helpers treat records of another owner exactly like missing ones.

func loadField(ctx context.Context, tx Tx, owner, id uuid.UUID) (*facet.Field, error) {
	field, err := tx.GetField(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get field: %w", err)
	}
	if field == nil || field.OwnerID != owner {
		return nil, facet.NewNotFoundError("field", id)
	}
	return field, nil
}

func loadSchema(ctx context.Context, tx Tx, owner, id uuid.UUID) (*facet.Schema, error) {
	schema, err := tx.GetSchema(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	if schema == nil || schema.OwnerID != owner {
		return nil, facet.NewNotFoundError("schema", id)
	}
	return schema, nil
}

func loadCollection(ctx context.Context, tx Tx, owner, id uuid.UUID) (*facet.Collection, error) {
	collection, err := tx.GetCollection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if collection == nil || collection.OwnerID != owner {
		return nil, facet.NewNotFoundError("collection", id)
	}
	return collection, nil
}

func loadTag(ctx context.Context, tx Tx, owner, id uuid.UUID) (*facet.Tag, error) {
	tag, err := tx.GetTag(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	if tag == nil || tag.OwnerID != owner {
		return nil, facet.NewNotFoundError("tag", id)
	}
	return tag, nil
}

func loadCategory(ctx context.Context, tx Tx, owner, id uuid.UUID) (*facet.Tag, error) {
	tag, err := loadTag(ctx, tx, owner, id)
	if err != nil {
		return nil, err
	}
	if !tag.IsCategory {
		return nil, facet.NewNotACategoryError(id)
	}
	return tag, nil
}

func loadItem(ctx context.Context, tx Tx, owner, id uuid.UUID) (*facet.Item, error) {
	item, err := tx.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil || item.OwnerID != owner {
		return nil, facet.NewNotFoundError("item", id)
	}
	return item, nil
}

// loadOwnedFields resolves ids in order. Ids that do not exist or belong to
// another owner are reported as unknown fields.
func loadOwnedFields(ctx context.Context, tx Tx, owner uuid.UUID, ids []uuid.UUID) ([]facet.Field, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID, err := tx.GetFieldsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get fields: %w", err)
	}
	fields := make([]facet.Field, 0, len(ids))
	for _, id := range ids {
		f, ok := byID[id]
		if !ok || f.OwnerID != owner {
			return nil, facet.NewUnknownFieldError(id)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// schemaFields returns the schema's fields in schema order.
func schemaFields(ctx context.Context, tx Tx, schema *facet.Schema) ([]facet.Field, error) {
	if schema == nil || len(schema.FieldIDs) == 0 {
		return nil, nil
	}
	byID, err := tx.GetFieldsByIDs(ctx, schema.FieldIDs)
	if err != nil {
		return nil, fmt.Errorf("get schema fields: %w", err)
	}
	fields := make([]facet.Field, 0, len(schema.FieldIDs))
	for _, id := range schema.FieldIDs {
		if f, ok := byID[id]; ok {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// schemaFieldsByID is schemaFields for an optional schema reference. A
// missing schema yields no fields.
func schemaFieldsByID(ctx context.Context, tx Tx, schemaID *uuid.UUID) ([]facet.Field, error) {
	if schemaID == nil {
		return nil, nil
	}
	schema, err := tx.GetSchema(ctx, *schemaID)
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	return schemaFields(ctx, tx, schema)
}

func fieldIDsOf(fields []facet.Field) []uuid.UUID {
	ids := make([]uuid.UUID, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	return ids
}
