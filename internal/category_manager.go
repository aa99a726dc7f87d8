package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"go.uber.org/zap"
)

func (m *fieldManager) CreateTag(ctx context.Context, owner uuid.UUID, req *facet.CreateTagRequest) (*facet.Tag, error) {
	if req == nil {
		return nil, facet.NewInvalidConfigError("request", "request cannot be nil")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, facet.NewInvalidConfigError("name", "tag name cannot be empty")
	}
	if !req.IsCategory && req.SchemaID != nil {
		return nil, facet.NewInvalidConfigError("schemaId", "labels cannot carry a schema")
	}

	tag := &facet.Tag{
		ID:         uuid.Must(uuid.NewV7()),
		OwnerID:    owner,
		Name:       name,
		IsCategory: req.IsCategory,
		SchemaID:   req.SchemaID,
		CreatedAt:  m.nowMillis(),
	}

	err := m.write(ctx, "create tag", func(tx Tx) error {
		tags, err := tx.ListTags(ctx, owner)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		for _, t := range tags {
			if t.IsCategory == tag.IsCategory && facet.NormalizeName(t.Name) == facet.NormalizeName(name) {
				return facet.NewTagNameConflictError(name, tag.IsCategory)
			}
		}
		if tag.SchemaID != nil {
			if err := checkPairing(ctx, tx, owner, *tag.SchemaID, false); err != nil {
				return err
			}
		}
		return tx.InsertTag(ctx, tag)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("created tag", "tagID", tag.ID, "name", tag.Name, "isCategory", tag.IsCategory, "schemaID", tag.SchemaID)
	return tag, nil
}

func (m *fieldManager) GetTag(ctx context.Context, owner, tagID uuid.UUID) (*facet.Tag, error) {
	var tag *facet.Tag
	err := m.read(ctx, "get tag", func(tx Tx) error {
		var err error
		tag, err = loadTag(ctx, tx, owner, tagID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (m *fieldManager) ListTags(ctx context.Context, owner uuid.UUID) ([]facet.Tag, error) {
	var tags []facet.Tag
	err := m.read(ctx, "list tags", func(tx Tx) error {
		var err error
		tags, err = tx.ListTags(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// SetCategorySchema attaches, replaces or clears the schema of a category.
// Items holding the category see the new field set immediately; values of
// fields that drop out are kept.
func (m *fieldManager) SetCategorySchema(ctx context.Context, owner, tagID uuid.UUID, schemaID *uuid.UUID) (*facet.Tag, error) {
	var tag *facet.Tag
	err := m.write(ctx, "set category schema", func(tx Tx) error {
		var err error
		tag, err = loadCategory(ctx, tx, owner, tagID)
		if err != nil {
			return err
		}
		if schemaID != nil {
			if err := checkPairing(ctx, tx, owner, *schemaID, false); err != nil {
				return err
			}
		}
		if err := tx.UpdateTagSchema(ctx, tagID, schemaID); err != nil {
			return fmt.Errorf("update tag schema: %w", err)
		}
		tag.SchemaID = schemaID
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Infow("changed category schema", "tagID", tagID, "schemaID", schemaID)
	return tag, nil
}

// DeleteTag removes a tag. Every item holding a category is backed up and
// detached first, in the same transaction.
func (m *fieldManager) DeleteTag(ctx context.Context, owner, tagID uuid.UUID) error {
	var detached int
	err := m.write(ctx, "delete tag", func(tx Tx) error {
		tag, err := loadTag(ctx, tx, owner, tagID)
		if err != nil {
			return err
		}

		if tag.IsCategory {
			itemIDs, err := tx.ListItemsWithTag(ctx, tagID)
			if err != nil {
				return fmt.Errorf("list items with tag: %w", err)
			}
			for _, itemID := range itemIDs {
				item, err := loadItem(ctx, tx, owner, itemID)
				if err != nil {
					return err
				}
				if err := claimCategoryChange(ctx, tx, item); err != nil {
					return err
				}
				if _, err := m.detachCategoryTx(ctx, tx, item); err != nil {
					return err
				}
				EmitCategoryChange(ctx, transitionRemove.String())
				detached++
			}
		}

		if err := tx.DeleteTag(ctx, tagID); err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.S().Infow("deleted tag", "tagID", tagID, "detachedItems", detached)
	return nil
}

func (m *fieldManager) CreateItem(ctx context.Context, owner, collectionID uuid.UUID) (*facet.Item, error) {
	item := &facet.Item{
		ID:           uuid.Must(uuid.NewV7()),
		OwnerID:      owner,
		CollectionID: collectionID,
		Version:      1,
		CreatedAt:    m.nowMillis(),
	}
	err := m.write(ctx, "create item", func(tx Tx) error {
		if _, err := loadCollection(ctx, tx, owner, collectionID); err != nil {
			return err
		}
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("registered item", "itemID", item.ID, "collectionID", collectionID)
	return item, nil
}

func (m *fieldManager) GetItem(ctx context.Context, owner, itemID uuid.UUID) (*facet.Item, error) {
	var item *facet.Item
	err := m.read(ctx, "get item", func(tx Tx) error {
		var err error
		item, err = loadItem(ctx, tx, owner, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (m *fieldManager) AssignCategory(ctx context.Context, owner, itemID, tagID uuid.UUID, opts facet.AssignOptions) (*facet.CategoryChangeResult, error) {
	return m.changeCategory(ctx, owner, itemID, &tagID, opts.Replace, opts.ExpectedVersion)
}

func (m *fieldManager) RemoveCategory(ctx context.Context, owner, itemID uuid.UUID, expectedVersion *int64) (*facet.CategoryChangeResult, error) {
	return m.changeCategory(ctx, owner, itemID, nil, false, expectedVersion)
}

// SetItemCategory replaces the item's category with the requested one. An
// empty list removes it; more than one id is rejected since an item holds at
// most one category.
func (m *fieldManager) SetItemCategory(ctx context.Context, owner, itemID uuid.UUID, req *facet.SetCategoryRequest) (*facet.CategoryChangeResult, error) {
	if req == nil {
		return nil, facet.NewInvalidConfigError("request", "request cannot be nil")
	}
	switch len(req.CategoryIDs) {
	case 0:
		return m.changeCategory(ctx, owner, itemID, nil, false, req.ExpectedVersion)
	case 1:
		target := req.CategoryIDs[0]
		return m.changeCategory(ctx, owner, itemID, &target, true, req.ExpectedVersion)
	default:
		item, err := m.GetItem(ctx, owner, itemID)
		if err != nil {
			return nil, err
		}
		return nil, facet.NewCategoryAlreadySetError(itemID, item.CategoryID).
			WithDetail("requested", req.CategoryIDs)
	}
}

func (m *fieldManager) changeCategory(ctx context.Context, owner, itemID uuid.UUID, target *uuid.UUID, replace bool, expectedVersion *int64) (*facet.CategoryChangeResult, error) {
	var result *facet.CategoryChangeResult
	var plan transition
	err := m.write(ctx, "change category", func(tx Tx) error {
		item, err := loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != item.Version {
			return facet.NewConcurrentModificationError(itemID).
				WithDetail("expectedVersion", *expectedVersion).
				WithDetail("currentVersion", item.Version)
		}
		if target != nil {
			if _, err := loadCategory(ctx, tx, owner, *target); err != nil {
				return err
			}
		}

		plan, err = planCategoryChange(categoryStateOf(item), target, replace)
		if err != nil {
			return err
		}

		result = &facet.CategoryChangeResult{}
		if plan != transitionNone {
			if err := claimCategoryChange(ctx, tx, item); err != nil {
				return err
			}
		}
		if plan == transitionRemove || plan == transitionReplace {
			handle, err := m.detachCategoryTx(ctx, tx, item)
			if err != nil {
				return err
			}
			result.Backup = handle
			result.BackupCreated = handle.Created
		}
		if plan == transitionAssign || plan == transitionReplace {
			if err := tx.InsertItemTag(ctx, item.ID, *target, true); err != nil {
				return fmt.Errorf("attach category: %w", err)
			}
			categoryID := *target
			item.CategoryID = &categoryID
		}

		result.Item = item
		result.EffectiveFields, err = effectiveFields(ctx, tx, item)
		return err
	})
	if err != nil {
		return nil, err
	}

	if plan != transitionNone {
		EmitCategoryChange(ctx, plan.String())
		zap.S().Infow("changed item category", "itemID", itemID, "transition", plan.String(),
			"categoryID", result.Item.CategoryID, "backupCreated", result.BackupCreated, "version", result.Item.Version)
	}
	return result, nil
}

// detachCategoryTx backs up the active category and removes it from the item.
func (m *fieldManager) detachCategoryTx(ctx context.Context, tx Tx, item *facet.Item) (*facet.BackupHandle, error) {
	categoryID := *item.CategoryID
	handle, err := m.backupTx(ctx, tx, item, categoryID)
	if err != nil {
		return nil, err
	}
	if err := tx.DeleteItemTag(ctx, item.ID, categoryID); err != nil {
		return nil, fmt.Errorf("detach category: %w", err)
	}
	item.CategoryID = nil
	return handle, nil
}

// claimCategoryChange bumps the item version from the value it was loaded
// with. It runs before any tag or backup write so that a concurrent writer
// waits on the item row and then fails here instead of on the category index.
func claimCategoryChange(ctx context.Context, tx Tx, item *facet.Item) error {
	ok, err := tx.BumpItemVersion(ctx, item.ID, item.Version)
	if err != nil {
		return fmt.Errorf("bump item version: %w", err)
	}
	if !ok {
		return facet.NewConcurrentModificationError(item.ID)
	}
	item.Version++
	return nil
}

func (m *fieldManager) AddLabel(ctx context.Context, owner, itemID, tagID uuid.UUID) (*facet.Item, error) {
	var item *facet.Item
	err := m.write(ctx, "add label", func(tx Tx) error {
		var err error
		item, err = loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		tag, err := loadTag(ctx, tx, owner, tagID)
		if err != nil {
			return err
		}
		if tag.IsCategory {
			return facet.NewInvalidConfigError("tagId", "category tags are assigned as the item category, not as labels")
		}
		if item.HasTag(tagID) {
			return nil
		}
		if err := tx.InsertItemTag(ctx, itemID, tagID, false); err != nil {
			return fmt.Errorf("attach label: %w", err)
		}
		item.LabelIDs = append(item.LabelIDs, tagID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (m *fieldManager) RemoveLabel(ctx context.Context, owner, itemID, tagID uuid.UUID) (*facet.Item, error) {
	var item *facet.Item
	err := m.write(ctx, "remove label", func(tx Tx) error {
		var err error
		item, err = loadItem(ctx, tx, owner, itemID)
		if err != nil {
			return err
		}
		tag, err := loadTag(ctx, tx, owner, tagID)
		if err != nil {
			return err
		}
		if tag.IsCategory {
			return facet.NewInvalidConfigError("tagId", "category tags are removed with RemoveCategory")
		}
		if !item.HasTag(tagID) {
			return nil
		}
		if err := tx.DeleteItemTag(ctx, itemID, tagID); err != nil {
			return fmt.Errorf("detach label: %w", err)
		}
		item.LabelIDs = without(item.LabelIDs, tagID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
