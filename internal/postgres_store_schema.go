package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/facet"
)

const fieldColumns = "id, owner_id, name, type, config, created_at"

func scanField(row pgx.Row) (*facet.Field, error) {
	var f facet.Field
	var config []byte
	if err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Type, &config, &f.CreatedAt); err != nil {
		return nil, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &f.Config); err != nil {
			return nil, fmt.Errorf("decode config of field %s: %w", f.ID, err)
		}
	}
	return &f, nil
}

func collectFields(rows pgx.Rows) ([]facet.Field, error) {
	defer rows.Close()
	var out []facet.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// InsertField writes the field, replacing any stored definition with the same id.
func (t *postgresTx) InsertField(ctx context.Context, field *facet.Field) error {
	config, err := json.Marshal(field.Config)
	if err != nil {
		return fmt.Errorf("encode field config: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, config = EXCLUDED.config`,
		t.tables.fields, fieldColumns,
	)
	if _, err := t.q.Exec(ctx, query, field.ID, field.OwnerID, field.Name, string(field.Type), config, field.CreatedAt); err != nil {
		return fmt.Errorf("insert field: %w", err)
	}
	return nil
}

func (t *postgresTx) GetField(ctx context.Context, id uuid.UUID) (*facet.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", fieldColumns, t.tables.fields)
	f, err := scanField(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get field: %w", err)
	}
	return f, nil
}

func (t *postgresTx) GetFieldsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]facet.Field, error) {
	out := make(map[uuid.UUID]facet.Field, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ANY($1)", fieldColumns, t.tables.fields)
	rows, err := t.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get fields: %w", err)
	}
	fields, err := collectFields(rows)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		out[f.ID] = f
	}
	return out, nil
}

func (t *postgresTx) ListFields(ctx context.Context, ownerID uuid.UUID) ([]facet.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at, name", fieldColumns, t.tables.fields)
	rows, err := t.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return collectFields(rows)
}

func (t *postgresTx) DeleteField(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.tables.fields)
	if _, err := t.q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	return nil
}

// Schemas

const schemaColumns = "id, owner_id, name, field_ids, created_at, updated_at"

func scanSchema(row pgx.Row) (*facet.Schema, error) {
	var s facet.Schema
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.FieldIDs, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if s.FieldIDs == nil {
		s.FieldIDs = []uuid.UUID{}
	}
	return &s, nil
}

func collectSchemas(rows pgx.Rows) ([]facet.Schema, error) {
	defer rows.Close()
	var out []facet.Schema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (t *postgresTx) InsertSchema(ctx context.Context, schema *facet.Schema) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)", t.tables.schemas, schemaColumns)
	if _, err := t.q.Exec(ctx, query, schema.ID, schema.OwnerID, schema.Name, schema.FieldIDs, schema.CreatedAt, schema.UpdatedAt); err != nil {
		return fmt.Errorf("insert schema: %w", err)
	}
	return nil
}

func (t *postgresTx) GetSchema(ctx context.Context, id uuid.UUID) (*facet.Schema, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", schemaColumns, t.tables.schemas)
	s, err := scanSchema(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	return s, nil
}

func (t *postgresTx) ListSchemas(ctx context.Context, ownerID uuid.UUID) ([]facet.Schema, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at, name", schemaColumns, t.tables.schemas)
	rows, err := t.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	return collectSchemas(rows)
}

func (t *postgresTx) ListSchemasWithField(ctx context.Context, fieldID uuid.UUID) ([]facet.Schema, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE $1 = ANY(field_ids) ORDER BY created_at, name", schemaColumns, t.tables.schemas)
	rows, err := t.q.Query(ctx, query, fieldID)
	if err != nil {
		return nil, fmt.Errorf("list schemas with field: %w", err)
	}
	return collectSchemas(rows)
}

func (t *postgresTx) UpdateSchemaFields(ctx context.Context, id uuid.UUID, fieldIDs []uuid.UUID, updatedAt int64) error {
	if fieldIDs == nil {
		fieldIDs = []uuid.UUID{}
	}
	query := fmt.Sprintf("UPDATE %s SET field_ids = $2, updated_at = $3 WHERE id = $1", t.tables.schemas)
	tag, err := t.q.Exec(ctx, query, id, fieldIDs, updatedAt)
	if err != nil {
		return fmt.Errorf("update schema fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return facet.NewNotFoundError("schema", id)
	}
	return nil
}

// Collections

const collectionColumns = "id, owner_id, name, default_schema_id, created_at"

func scanCollection(row pgx.Row) (*facet.Collection, error) {
	var c facet.Collection
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.DefaultSchemaID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *postgresTx) InsertCollection(ctx context.Context, collection *facet.Collection) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5)", t.tables.collections, collectionColumns)
	if _, err := t.q.Exec(ctx, query, collection.ID, collection.OwnerID, collection.Name, collection.DefaultSchemaID, collection.CreatedAt); err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (t *postgresTx) GetCollection(ctx context.Context, id uuid.UUID) (*facet.Collection, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", collectionColumns, t.tables.collections)
	c, err := scanCollection(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

func (t *postgresTx) ListCollections(ctx context.Context, ownerID uuid.UUID) ([]facet.Collection, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at, id", collectionColumns, t.tables.collections)
	rows, err := t.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	var out []facet.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (t *postgresTx) UpdateCollectionDefaultSchema(ctx context.Context, id uuid.UUID, schemaID *uuid.UUID) error {
	query := fmt.Sprintf("UPDATE %s SET default_schema_id = $2 WHERE id = $1", t.tables.collections)
	tag, err := t.q.Exec(ctx, query, id, schemaID)
	if err != nil {
		return fmt.Errorf("update default schema: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return facet.NewNotFoundError("collection", id)
	}
	return nil
}

// Tags

const tagColumns = "id, owner_id, name, is_category, schema_id, created_at"

func scanTag(row pgx.Row) (*facet.Tag, error) {
	var tag facet.Tag
	if err := row.Scan(&tag.ID, &tag.OwnerID, &tag.Name, &tag.IsCategory, &tag.SchemaID, &tag.CreatedAt); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (t *postgresTx) InsertTag(ctx context.Context, tag *facet.Tag) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)", t.tables.tags, tagColumns)
	if _, err := t.q.Exec(ctx, query, tag.ID, tag.OwnerID, tag.Name, tag.IsCategory, tag.SchemaID, tag.CreatedAt); err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

func (t *postgresTx) GetTag(ctx context.Context, id uuid.UUID) (*facet.Tag, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", tagColumns, t.tables.tags)
	tag, err := scanTag(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return tag, nil
}

func (t *postgresTx) ListTags(ctx context.Context, ownerID uuid.UUID) ([]facet.Tag, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at, name", tagColumns, t.tables.tags)
	rows, err := t.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	var out []facet.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, *tag)
	}
	return out, rows.Err()
}

func (t *postgresTx) UpdateTagSchema(ctx context.Context, id uuid.UUID, schemaID *uuid.UUID) error {
	query := fmt.Sprintf("UPDATE %s SET schema_id = $2 WHERE id = $1", t.tables.tags)
	tag, err := t.q.Exec(ctx, query, id, schemaID)
	if err != nil {
		return fmt.Errorf("update tag schema: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return facet.NewNotFoundError("tag", id)
	}
	return nil
}

func (t *postgresTx) DeleteTag(ctx context.Context, id uuid.UUID) error {
	if _, err := t.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE tag_id = $1", t.tables.itemTags), id); err != nil {
		return fmt.Errorf("delete tag associations: %w", err)
	}
	if _, err := t.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.tables.tags), id); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

func (t *postgresTx) ListItemsWithTag(ctx context.Context, tagID uuid.UUID) ([]uuid.UUID, error) {
	query := fmt.Sprintf(
		"SELECT i.id FROM %s it JOIN %s i ON i.id = it.item_id WHERE it.tag_id = $1 ORDER BY i.created_at, i.id",
		t.tables.itemTags, t.tables.items,
	)
	rows, err := t.q.Query(ctx, query, tagID)
	if err != nil {
		return nil, fmt.Errorf("list items with tag: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
