package facet

import (
	"time"

	"github.com/google/uuid"
)

// FieldType identifies the kind of value a custom field holds.
type FieldType string

const (
	FieldTypeRating  FieldType = "rating"
	FieldTypeSelect  FieldType = "select"
	FieldTypeText    FieldType = "text"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeNumber  FieldType = "number"
)

// RatingConfig bounds a rating field to the integers 1..Max.
type RatingConfig struct {
	Max int `json:"max"`
}

// SelectConfig lists the options a select field accepts.
type SelectConfig struct {
	Options []string `json:"options"`
}

// FieldConfig is the per-type configuration of a field. At most one member is
// set and only for the type that owns it.
type FieldConfig struct {
	Rating *RatingConfig `json:"rating,omitempty"`
	Select *SelectConfig `json:"select,omitempty"`
}

// IsZero reports whether no per-type configuration is present.
func (c FieldConfig) IsZero() bool {
	return c.Rating == nil && c.Select == nil
}

// Field is a user-defined, typed field definition.
type Field struct {
	ID        uuid.UUID   `json:"id"`
	OwnerID   uuid.UUID   `json:"ownerId"`
	Name      string      `json:"name"`
	Type      FieldType   `json:"type"`
	Config    FieldConfig `json:"config"`
	CreatedAt int64       `json:"createdAt"`
}

// Schema is a named, ordered set of field ids. Order is for display only.
type Schema struct {
	ID        uuid.UUID   `json:"id"`
	OwnerID   uuid.UUID   `json:"ownerId"`
	Name      string      `json:"name"`
	FieldIDs  []uuid.UUID `json:"fieldIds"`
	CreatedAt int64       `json:"createdAt"`
	UpdatedAt int64       `json:"updatedAt"`
}

// Contains reports whether fieldID is part of the schema.
func (s *Schema) Contains(fieldID uuid.UUID) bool {
	for _, id := range s.FieldIDs {
		if id == fieldID {
			return true
		}
	}
	return false
}

type Collection struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         uuid.UUID  `json:"ownerId"`
	Name            string     `json:"name"`
	DefaultSchemaID *uuid.UUID `json:"defaultSchemaId,omitempty"`
	CreatedAt       int64      `json:"createdAt"`
}

// Tag is either a category (exclusive per item, may own a schema) or a label.
type Tag struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    uuid.UUID  `json:"ownerId"`
	Name       string     `json:"name"`
	IsCategory bool       `json:"isCategory"`
	SchemaID   *uuid.UUID `json:"schemaId,omitempty"`
	CreatedAt  int64      `json:"createdAt"`
}

// Item is a bookmarked item as seen by the field core. CategoryID and LabelIDs
// are derived from the item-tag relation when the item is loaded.
type Item struct {
	ID           uuid.UUID   `json:"id"`
	OwnerID      uuid.UUID   `json:"ownerId"`
	CollectionID uuid.UUID   `json:"collectionId"`
	CategoryID   *uuid.UUID  `json:"categoryId,omitempty"`
	LabelIDs     []uuid.UUID `json:"labelIds,omitempty"`
	Version      int64       `json:"version"`
	CreatedAt    int64       `json:"createdAt"`
}

// HasTag reports whether the item carries tagID as its category or as a label.
func (i *Item) HasTag(tagID uuid.UUID) bool {
	if i.CategoryID != nil && *i.CategoryID == tagID {
		return true
	}
	for _, id := range i.LabelIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

// FieldValue is the value of one field on one item. Exactly one slot is set.
type FieldValue struct {
	ItemID    uuid.UUID `json:"itemId"`
	FieldID   uuid.UUID `json:"fieldId"`
	Text      *string   `json:"text,omitempty"`
	Numeric   *float64  `json:"numeric,omitempty"`
	Bool      *bool     `json:"bool,omitempty"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Backup is a snapshot of the category-only field values of an item, taken
// when the category stopped being active.
type Backup struct {
	ItemID     uuid.UUID    `json:"itemId"`
	CategoryID uuid.UUID    `json:"categoryId"`
	Values     []FieldValue `json:"values"`
	CreatedAt  int64        `json:"createdAt"`
}

// BackupHandle describes the outcome of a backup. Created is false when there
// was nothing to capture.
type BackupHandle struct {
	ItemID     uuid.UUID `json:"itemId"`
	CategoryID uuid.UUID `json:"categoryId"`
	Created    bool      `json:"created"`
	FieldCount int       `json:"fieldCount"`
	CreatedAt  int64     `json:"createdAt,omitempty"`
}

type BackupSummary struct {
	ItemID       uuid.UUID `json:"itemId"`
	CategoryID   uuid.UUID `json:"categoryId"`
	CategoryName string    `json:"categoryName,omitempty"`
	FieldCount   int       `json:"fieldCount"`
	CreatedAt    int64     `json:"createdAt"`
}

// CreateFieldRequest describes a new field. When SchemaID is set the field is
// appended to that schema in the same transaction.
type CreateFieldRequest struct {
	Name     string      `json:"name"`
	Type     FieldType   `json:"type"`
	Config   FieldConfig `json:"config"`
	SchemaID *uuid.UUID  `json:"schemaId,omitempty"`
}

type CreateTagRequest struct {
	Name       string     `json:"name"`
	IsCategory bool       `json:"isCategory"`
	SchemaID   *uuid.UUID `json:"schemaId,omitempty"`
}

// AssignOptions controls AssignCategory.
type AssignOptions struct {
	// Replace allows swapping an existing category. The old category is
	// backed up before the new one is attached.
	Replace bool `json:"replace"`
	// ExpectedVersion rejects the change when the item was modified since it was read.
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// SetCategoryRequest is the replace-style category update: zero ids remove the
// category, one id sets it, more than one is rejected.
type SetCategoryRequest struct {
	CategoryIDs     []uuid.UUID `json:"categoryIds"`
	ExpectedVersion *int64      `json:"expectedVersion,omitempty"`
}

// CategoryChangeResult reports what a category change did.
type CategoryChangeResult struct {
	Item            *Item         `json:"item"`
	BackupCreated   bool          `json:"backupCreated"`
	Backup          *BackupHandle `json:"backup,omitempty"`
	EffectiveFields []Field       `json:"effectiveFields"`
}

// FilterRequest selects items of a collection. Criteria are ANDed; TagIDs are
// ORed with each other and ANDed with the criteria.
type FilterRequest struct {
	CollectionID uuid.UUID   `json:"collectionId"`
	Criteria     []Criterion `json:"criteria"`
	TagIDs       []uuid.UUID `json:"tagIds,omitempty"`
}

type FilterResult struct {
	ItemIDs       []uuid.UUID   `json:"itemIds"`
	Total         int           `json:"total"`
	Pushdown      bool          `json:"pushdown"`
	ExecutionTime time.Duration `json:"executionTime"`
}

// NowMillis returns the current time as unix milliseconds, the timestamp unit
// used by every persisted record.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
