package internal

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/facet"
)

// SchemaStatements returns the DDL creating every table and index used by the
// Postgres store, in dependency order. Statements are idempotent.
func SchemaStatements(names facet.TableNames) []string {
	t := resolveTables(names)
	categoryIndex := sanitizeIdentifier(indexName(names.ItemTags, "one_category"))
	valuesByField := sanitizeIdentifier(indexName(names.FieldValues, "field"))
	itemsByCollection := sanitizeIdentifier(indexName(names.Items, "collection"))
	backupsByAge := sanitizeIdentifier(indexName(names.Backups, "created_at"))

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	config JSONB NOT NULL DEFAULT '{}',
	created_at BIGINT NOT NULL
)`, t.fields),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	field_ids UUID[] NOT NULL DEFAULT '{}',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`, t.schemas),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	default_schema_id UUID REFERENCES %s (id),
	created_at BIGINT NOT NULL
)`, t.collections, t.schemas),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	is_category BOOLEAN NOT NULL,
	schema_id UUID REFERENCES %s (id),
	created_at BIGINT NOT NULL
)`, t.tags, t.schemas),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	collection_id UUID NOT NULL REFERENCES %s (id),
	version BIGINT NOT NULL DEFAULT 1,
	created_at BIGINT NOT NULL
)`, t.items, t.collections),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (collection_id, created_at, id)`, itemsByCollection, t.items),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	item_id UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	tag_id UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	is_category BOOLEAN NOT NULL,
	PRIMARY KEY (item_id, tag_id)
)`, t.itemTags, t.items, t.tags),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (item_id) WHERE is_category`, categoryIndex, t.itemTags),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	item_id UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	field_id UUID NOT NULL REFERENCES %s (id),
	value_text TEXT,
	value_numeric DOUBLE PRECISION,
	value_bool BOOLEAN,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (item_id, field_id)
)`, t.fieldValues, t.items, t.fields),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (field_id)`, valuesByField, t.fieldValues),
		// No foreign key on category_id: backups outlive deleted categories.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	item_id UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	category_id UUID NOT NULL,
	field_values JSONB NOT NULL DEFAULT '[]',
	created_at BIGINT NOT NULL,
	PRIMARY KEY (item_id, category_id)
)`, t.backups, t.items),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at)`, backupsByAge, t.backups),
	}
}

// indexName derives an index name from a possibly schema-qualified table name.
// Postgres creates indexes in the table's schema, so only the bare name is used.
func indexName(table, suffix string) string {
	bare := strings.Trim(table[strings.LastIndex(table, ".")+1:], ` "`)
	return fmt.Sprintf("idx_%s_%s", bare, suffix)
}
