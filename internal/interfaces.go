package internal

import (
	"context"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal/filter"
)

// Store runs units of work against the backing storage. A write unit either
// applies completely or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	ReadOnly(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of storage operations available inside a unit of work.
// Lookups by id return (nil, nil) when the record does not exist.
type Tx interface {
	FieldStore
	SchemaStore
	CollectionStore
	TagStore
	ItemStore
	ValueStore
	BackupStore
}

type FieldStore interface {
	InsertField(ctx context.Context, field *facet.Field) error
	GetField(ctx context.Context, id uuid.UUID) (*facet.Field, error)
	GetFieldsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]facet.Field, error)
	ListFields(ctx context.Context, ownerID uuid.UUID) ([]facet.Field, error)
	DeleteField(ctx context.Context, id uuid.UUID) error
}

type SchemaStore interface {
	InsertSchema(ctx context.Context, schema *facet.Schema) error
	GetSchema(ctx context.Context, id uuid.UUID) (*facet.Schema, error)
	ListSchemas(ctx context.Context, ownerID uuid.UUID) ([]facet.Schema, error)
	ListSchemasWithField(ctx context.Context, fieldID uuid.UUID) ([]facet.Schema, error)
	UpdateSchemaFields(ctx context.Context, id uuid.UUID, fieldIDs []uuid.UUID, updatedAt int64) error
}

type CollectionStore interface {
	InsertCollection(ctx context.Context, collection *facet.Collection) error
	GetCollection(ctx context.Context, id uuid.UUID) (*facet.Collection, error)
	ListCollections(ctx context.Context, ownerID uuid.UUID) ([]facet.Collection, error)
	UpdateCollectionDefaultSchema(ctx context.Context, id uuid.UUID, schemaID *uuid.UUID) error
}

type TagStore interface {
	InsertTag(ctx context.Context, tag *facet.Tag) error
	GetTag(ctx context.Context, id uuid.UUID) (*facet.Tag, error)
	ListTags(ctx context.Context, ownerID uuid.UUID) ([]facet.Tag, error)
	UpdateTagSchema(ctx context.Context, id uuid.UUID, schemaID *uuid.UUID) error
	// DeleteTag removes the tag together with its item associations.
	DeleteTag(ctx context.Context, id uuid.UUID) error
	ListItemsWithTag(ctx context.Context, tagID uuid.UUID) ([]uuid.UUID, error)
}

type ItemStore interface {
	InsertItem(ctx context.Context, item *facet.Item) error
	// GetItem loads the item with its category and labels.
	GetItem(ctx context.Context, id uuid.UUID) (*facet.Item, error)
	// ListCollectionItems returns the items of a collection in listing order.
	ListCollectionItems(ctx context.Context, collectionID uuid.UUID) ([]facet.Item, error)
	InsertItemTag(ctx context.Context, itemID, tagID uuid.UUID, isCategory bool) error
	DeleteItemTag(ctx context.Context, itemID, tagID uuid.UUID) error
	// BumpItemVersion increments the version if it still equals expected and
	// reports whether it did.
	BumpItemVersion(ctx context.Context, itemID uuid.UUID, expected int64) (bool, error)
}

type ValueStore interface {
	UpsertFieldValues(ctx context.Context, values []facet.FieldValue) error
	// GetFieldValues returns the item's values for fieldIDs, or all of them when fieldIDs is nil.
	GetFieldValues(ctx context.Context, itemID uuid.UUID, fieldIDs []uuid.UUID) ([]facet.FieldValue, error)
	ListFieldValues(ctx context.Context, itemIDs, fieldIDs []uuid.UUID) ([]facet.FieldValue, error)
	DeleteFieldValue(ctx context.Context, itemID, fieldID uuid.UUID) error
	DeleteFieldValuesByField(ctx context.Context, fieldID uuid.UUID) (int64, error)
	CountFieldValuesByField(ctx context.Context, fieldID uuid.UUID) (int64, error)
}

type BackupStore interface {
	// SaveBackup stores b, replacing any backup of the same item and category.
	SaveBackup(ctx context.Context, b *facet.Backup) error
	GetBackup(ctx context.Context, itemID, categoryID uuid.UUID) (*facet.Backup, error)
	ListBackups(ctx context.Context, itemID uuid.UUID) ([]facet.Backup, error)
	CountBackupsWithField(ctx context.Context, fieldID uuid.UUID) (int64, error)
	StripFieldFromBackups(ctx context.Context, fieldID uuid.UUID) error
	PruneBackups(ctx context.Context, createdBefore int64) (int64, error)
}

// ItemFilterer is implemented by transactions that can evaluate a compiled
// predicate inside the database.
type ItemFilterer interface {
	FilterItemIDs(ctx context.Context, p *filter.Predicate, scope filter.Scope) ([]uuid.UUID, error)
}
