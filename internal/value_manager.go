package internal

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"go.uber.org/zap"
)

func (m *fieldManager) SetFieldValue(ctx context.Context, owner, itemID, fieldID uuid.UUID, value any) (*facet.FieldValue, error) {
	var written facet.FieldValue
	err := m.write(ctx, "set field value", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		field, err := effectiveField(ctx, tx, item, fieldID)
		if err != nil {
			return err
		}
		written, err = field.NewValue(itemID, value)
		if err != nil {
			return err
		}
		written.UpdatedAt = m.nowMillis()
		return tx.UpsertFieldValues(ctx, []facet.FieldValue{written})
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("set field value", "itemID", itemID, "fieldID", fieldID)
	return &written, nil
}

// SetFieldValues writes a document keyed by field name. The whole document is
// validated before anything is written; a null value clears the field.
func (m *fieldManager) SetFieldValues(ctx context.Context, owner, itemID uuid.UUID, values map[string]any) ([]facet.FieldValue, error) {
	var written []facet.FieldValue
	err := m.write(ctx, "set field values", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		fields, err := effectiveFields(ctx, tx, item)
		if err != nil {
			return err
		}

		doc, err := facet.CanonicalizeValuesDocument(fields, values)
		if err != nil {
			return err
		}
		if err := facet.ValidateValuesDocument(fields, doc); err != nil {
			return err
		}

		now := m.nowMillis()
		var cleared []uuid.UUID
		for i := range fields {
			raw, ok := doc[fields[i].Name]
			if !ok {
				continue
			}
			if raw == nil {
				cleared = append(cleared, fields[i].ID)
				continue
			}
			v, err := fields[i].NewValue(itemID, raw)
			if err != nil {
				return err
			}
			v.UpdatedAt = now
			written = append(written, v)
		}

		for _, id := range cleared {
			if err := tx.DeleteFieldValue(ctx, itemID, id); err != nil {
				return fmt.Errorf("clear field value: %w", err)
			}
		}
		if len(written) == 0 {
			return nil
		}
		return tx.UpsertFieldValues(ctx, written)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("set field values", "itemID", itemID, "written", len(written), "requested", len(values))
	return written, nil
}

func (m *fieldManager) ClearFieldValue(ctx context.Context, owner, itemID, fieldID uuid.UUID) error {
	return m.write(ctx, "clear field value", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		if _, err := effectiveField(ctx, tx, item, fieldID); err != nil {
			return err
		}
		return tx.DeleteFieldValue(ctx, itemID, fieldID)
	})
}

// GetFieldValues returns the values of the item's effective fields in
// effective field order. Values of unreachable fields stay stored but are not
// returned.
func (m *fieldManager) GetFieldValues(ctx context.Context, owner, itemID uuid.UUID) ([]facet.FieldValue, error) {
	var values []facet.FieldValue
	err := m.read(ctx, "get field values", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		fields, err := effectiveFields(ctx, tx, item)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			values = []facet.FieldValue{}
			return nil
		}

		values, err = tx.GetFieldValues(ctx, itemID, fieldIDsOf(fields))
		if err != nil {
			return fmt.Errorf("get field values: %w", err)
		}
		position := make(map[uuid.UUID]int, len(fields))
		for i, f := range fields {
			position[f.ID] = i
		}
		sort.SliceStable(values, func(i, j int) bool {
			return position[values[i].FieldID] < position[values[j].FieldID]
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func effectiveField(ctx context.Context, tx Tx, item *facet.Item, fieldID uuid.UUID) (*facet.Field, error) {
	fields, err := effectiveFields(ctx, tx, item)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].ID == fieldID {
			return &fields[i], nil
		}
	}
	return nil, facet.NewUnknownFieldError(fieldID)
}
