package internal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

// mergeFields returns the default fields in order followed by the category
// fields not already present. The default schema wins on shared ids.
func mergeFields(defaults, category []facet.Field) []facet.Field {
	merged := make([]facet.Field, 0, len(defaults)+len(category))
	seen := NewSet[uuid.UUID]()
	for _, set := range [][]facet.Field{defaults, category} {
		for _, f := range set {
			if seen.Add(f.ID) {
				merged = append(merged, f)
			}
		}
	}
	return merged
}

// categoryOnlyFields is category minus defaults, in category order.
func categoryOnlyFields(defaults, category []facet.Field) []facet.Field {
	shared := NewSetFrom(fieldIDsOf(defaults)...)
	var only []facet.Field
	for _, f := range category {
		if !shared.Contains(f.ID) {
			only = append(only, f)
		}
	}
	return only
}

func defaultFields(ctx context.Context, tx Tx, item *facet.Item) ([]facet.Field, error) {
	collection, err := tx.GetCollection(ctx, item.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if collection == nil {
		return nil, nil
	}
	return schemaFieldsByID(ctx, tx, collection.DefaultSchemaID)
}

func categoryFields(ctx context.Context, tx Tx, categoryID *uuid.UUID) ([]facet.Field, error) {
	if categoryID == nil {
		return nil, nil
	}
	tag, err := tx.GetTag(ctx, *categoryID)
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	if tag == nil {
		return nil, nil
	}
	return schemaFieldsByID(ctx, tx, tag.SchemaID)
}

func effectiveFields(ctx context.Context, tx Tx, item *facet.Item) ([]facet.Field, error) {
	defaults, err := defaultFields(ctx, tx, item)
	if err != nil {
		return nil, err
	}
	category, err := categoryFields(ctx, tx, item.CategoryID)
	if err != nil {
		return nil, err
	}
	return mergeFields(defaults, category), nil
}

func (m *fieldManager) GetEffectiveFields(ctx context.Context, owner, itemID uuid.UUID) ([]facet.Field, error) {
	var fields []facet.Field
	err := m.read(ctx, "get effective fields", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		fields, err = effectiveFields(ctx, tx, item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}
