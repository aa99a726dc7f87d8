package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"go.uber.org/zap"
)

// Backup snapshots the values of the fields categoryID contributes on top of
// the collection default schema. The values themselves are left in place.
func (m *fieldManager) Backup(ctx context.Context, owner, itemID, categoryID uuid.UUID) (*facet.BackupHandle, error) {
	var handle *facet.BackupHandle
	err := m.write(ctx, "backup", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		if _, err := loadCategory(ctx, tx, owner, categoryID); err != nil {
			return err
		}
		handle, err = m.backupTx(ctx, tx, item, categoryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (m *fieldManager) backupTx(ctx context.Context, tx Tx, item *facet.Item, categoryID uuid.UUID) (*facet.BackupHandle, error) {
	handle := &facet.BackupHandle{ItemID: item.ID, CategoryID: categoryID}

	category, err := categoryFields(ctx, tx, &categoryID)
	if err != nil {
		return nil, err
	}
	defaults, err := defaultFields(ctx, tx, item)
	if err != nil {
		return nil, err
	}
	only := categoryOnlyFields(defaults, category)
	if len(only) == 0 {
		EmitBackup(ctx, false, 0)
		zap.S().Debugw("nothing to back up", "itemID", item.ID, "categoryID", categoryID)
		return handle, nil
	}

	values, err := tx.GetFieldValues(ctx, item.ID, fieldIDsOf(only))
	if err != nil {
		return nil, fmt.Errorf("read category values: %w", err)
	}
	if values == nil {
		values = []facet.FieldValue{}
	}

	backup := &facet.Backup{
		ItemID:     item.ID,
		CategoryID: categoryID,
		Values:     values,
		CreatedAt:  m.nowMillis(),
	}
	if err := tx.SaveBackup(ctx, backup); err != nil {
		return nil, facet.NewTransactionError("persist backup", err).
			WithDetail("itemId", item.ID).
			WithDetail("categoryId", categoryID)
	}

	handle.Created = true
	handle.FieldCount = len(values)
	handle.CreatedAt = backup.CreatedAt

	EmitBackup(ctx, true, len(values))
	zap.S().Infow("backed up category fields", "itemID", item.ID, "categoryID", categoryID, "values", len(values), "fields", len(only))
	return handle, nil
}

// Restore writes the stored snapshot back while categoryID is the active
// category. The backup is kept, so restoring twice yields the same values.
func (m *fieldManager) Restore(ctx context.Context, owner, itemID, categoryID uuid.UUID) (int, error) {
	var restored int
	err := m.write(ctx, "restore", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		if item.CategoryID == nil || *item.CategoryID != categoryID {
			return facet.NewCategoryNotActiveError(itemID, categoryID)
		}
		tag, err := loadCategory(ctx, tx, owner, categoryID)
		if err != nil {
			return err
		}

		backup, err := tx.GetBackup(ctx, itemID, categoryID)
		if err != nil {
			return fmt.Errorf("get backup: %w", err)
		}
		if backup == nil {
			return facet.NewNoBackupFoundError(itemID, categoryID)
		}
		if tag.SchemaID == nil {
			return facet.NewNoSchemaError(categoryID)
		}

		restored, err = m.restoreTx(ctx, tx, backup)
		return err
	})
	if err != nil {
		return 0, err
	}

	EmitRestore(ctx, restored)
	zap.S().Infow("restored category fields", "itemID", itemID, "categoryID", categoryID, "restored", restored)
	return restored, nil
}

// restoreTx skips values whose field is gone or no longer accepts them.
func (m *fieldManager) restoreTx(ctx context.Context, tx Tx, backup *facet.Backup) (int, error) {
	ids := make([]uuid.UUID, len(backup.Values))
	for i, v := range backup.Values {
		ids[i] = v.FieldID
	}
	fields, err := tx.GetFieldsByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("get backup fields: %w", err)
	}

	now := m.nowMillis()
	values := make([]facet.FieldValue, 0, len(backup.Values))
	for _, v := range backup.Values {
		f, ok := fields[v.FieldID]
		if !ok {
			continue
		}
		if err := f.CheckValue(v); err != nil {
			zap.S().Warnw("skipping backed up value", "itemID", backup.ItemID, "fieldID", v.FieldID, "error", err)
			continue
		}
		v.UpdatedAt = now
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, nil
	}
	if err := tx.UpsertFieldValues(ctx, values); err != nil {
		return 0, fmt.Errorf("write restored values: %w", err)
	}
	return len(values), nil
}

func (m *fieldManager) ListBackups(ctx context.Context, owner, itemID uuid.UUID) ([]facet.BackupSummary, error) {
	var summaries []facet.BackupSummary
	err := m.read(ctx, "list backups", func(tx Tx) error {
		if _, err := loadItem(ctx, tx, owner, itemID); err != nil {
			return err
		}
		backups, err := tx.ListBackups(ctx, itemID)
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		summaries = make([]facet.BackupSummary, 0, len(backups))
		for _, b := range backups {
			summary := facet.BackupSummary{
				ItemID:     b.ItemID,
				CategoryID: b.CategoryID,
				FieldCount: len(b.Values),
				CreatedAt:  b.CreatedAt,
			}
			// The category may have been deleted since.
			tag, err := tx.GetTag(ctx, b.CategoryID)
			if err != nil {
				return fmt.Errorf("get tag: %w", err)
			}
			if tag != nil {
				summary.CategoryName = tag.Name
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// PruneBackups drops every backup created before olderThan, across owners.
func (m *fieldManager) PruneBackups(ctx context.Context, olderThan time.Time) (int64, error) {
	var pruned int64
	err := m.write(ctx, "prune backups", func(tx Tx) error {
		var err error
		pruned, err = tx.PruneBackups(ctx, olderThan.UnixMilli())
		return err
	})
	if err != nil {
		return 0, err
	}

	zap.S().Infow("pruned backups", "olderThan", olderThan, "pruned", pruned)
	return pruned, nil
}
