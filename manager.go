package facet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FieldManager provides field, schema, category and filter operations. Every
// call is scoped to the owner passed in; records of other owners behave as if
// they did not exist.
type FieldManager interface {
	// Field definitions
	CreateField(ctx context.Context, owner uuid.UUID, req *CreateFieldRequest) (*Field, error)
	GetField(ctx context.Context, owner, fieldID uuid.UUID) (*Field, error)
	ListFields(ctx context.Context, owner uuid.UUID) ([]Field, error)
	DeleteField(ctx context.Context, owner, fieldID uuid.UUID) error

	// Schemas and collections
	CreateSchema(ctx context.Context, owner uuid.UUID, name string, fieldIDs []uuid.UUID) (*Schema, error)
	GetSchema(ctx context.Context, owner, schemaID uuid.UUID) (*Schema, error)
	ListSchemas(ctx context.Context, owner uuid.UUID) ([]Schema, error)
	AddSchemaField(ctx context.Context, owner, schemaID, fieldID uuid.UUID) (*Schema, error)
	RemoveSchemaField(ctx context.Context, owner, schemaID, fieldID uuid.UUID) (*Schema, error)
	SetSchemaFields(ctx context.Context, owner, schemaID uuid.UUID, fieldIDs []uuid.UUID) (*Schema, error)
	CreateCollection(ctx context.Context, owner uuid.UUID, name string, defaultSchemaID *uuid.UUID) (*Collection, error)
	GetCollection(ctx context.Context, owner, collectionID uuid.UUID) (*Collection, error)
	SetCollectionDefaultSchema(ctx context.Context, owner, collectionID uuid.UUID, schemaID *uuid.UUID) (*Collection, error)

	// Tags and items
	CreateTag(ctx context.Context, owner uuid.UUID, req *CreateTagRequest) (*Tag, error)
	GetTag(ctx context.Context, owner, tagID uuid.UUID) (*Tag, error)
	ListTags(ctx context.Context, owner uuid.UUID) ([]Tag, error)
	SetCategorySchema(ctx context.Context, owner, tagID uuid.UUID, schemaID *uuid.UUID) (*Tag, error)
	DeleteTag(ctx context.Context, owner, tagID uuid.UUID) error
	CreateItem(ctx context.Context, owner, collectionID uuid.UUID) (*Item, error)
	GetItem(ctx context.Context, owner, itemID uuid.UUID) (*Item, error)

	// Category state
	AssignCategory(ctx context.Context, owner, itemID, tagID uuid.UUID, opts AssignOptions) (*CategoryChangeResult, error)
	RemoveCategory(ctx context.Context, owner, itemID uuid.UUID, expectedVersion *int64) (*CategoryChangeResult, error)
	SetItemCategory(ctx context.Context, owner, itemID uuid.UUID, req *SetCategoryRequest) (*CategoryChangeResult, error)
	AddLabel(ctx context.Context, owner, itemID, tagID uuid.UUID) (*Item, error)
	RemoveLabel(ctx context.Context, owner, itemID, tagID uuid.UUID) (*Item, error)

	// Backups
	Backup(ctx context.Context, owner, itemID, categoryID uuid.UUID) (*BackupHandle, error)
	Restore(ctx context.Context, owner, itemID, categoryID uuid.UUID) (int, error)
	ListBackups(ctx context.Context, owner, itemID uuid.UUID) ([]BackupSummary, error)
	PruneBackups(ctx context.Context, olderThan time.Time) (int64, error)

	// Values
	GetEffectiveFields(ctx context.Context, owner, itemID uuid.UUID) ([]Field, error)
	SetFieldValue(ctx context.Context, owner, itemID, fieldID uuid.UUID, value any) (*FieldValue, error)
	SetFieldValues(ctx context.Context, owner, itemID uuid.UUID, values map[string]any) ([]FieldValue, error)
	ClearFieldValue(ctx context.Context, owner, itemID, fieldID uuid.UUID) error
	GetFieldValues(ctx context.Context, owner, itemID uuid.UUID) ([]FieldValue, error)

	// Filtering
	FilterItems(ctx context.Context, owner uuid.UUID, req *FilterRequest) (*FilterResult, error)
}
