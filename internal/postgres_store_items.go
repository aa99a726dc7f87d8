package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/facet"
)

const itemColumns = "id, owner_id, collection_id, version, created_at"

func scanItem(row pgx.Row) (*facet.Item, error) {
	var item facet.Item
	if err := row.Scan(&item.ID, &item.OwnerID, &item.CollectionID, &item.Version, &item.CreatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *postgresTx) InsertItem(ctx context.Context, item *facet.Item) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5)", t.tables.items, itemColumns)
	if _, err := t.q.Exec(ctx, query, item.ID, item.OwnerID, item.CollectionID, item.Version, item.CreatedAt); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (t *postgresTx) GetItem(ctx context.Context, id uuid.UUID) (*facet.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", itemColumns, t.tables.items)
	item, err := scanItem(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	items := []facet.Item{*item}
	if err := t.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (t *postgresTx) ListCollectionItems(ctx context.Context, collectionID uuid.UUID) ([]facet.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE collection_id = $1 ORDER BY created_at, id", itemColumns, t.tables.items)
	rows, err := t.q.Query(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}
	var items []facet.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}
	if err := t.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// attachTags fills CategoryID and LabelIDs from the item-tag relation.
func (t *postgresTx) attachTags(ctx context.Context, items []facet.Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
	}

	query := fmt.Sprintf("SELECT item_id, tag_id, is_category FROM %s WHERE item_id = ANY($1) ORDER BY item_id, tag_id", t.tables.itemTags)
	rows, err := t.q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("load item tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, tagID uuid.UUID
		var isCategory bool
		if err := rows.Scan(&itemID, &tagID, &isCategory); err != nil {
			return fmt.Errorf("scan item tag: %w", err)
		}
		item := &items[index[itemID]]
		if isCategory {
			item.CategoryID = &tagID
		} else {
			item.LabelIDs = append(item.LabelIDs, tagID)
		}
	}
	return rows.Err()
}

// InsertItemTag attaches a tag. A second category is rejected by the partial
// unique index on (item_id) WHERE is_category.
func (t *postgresTx) InsertItemTag(ctx context.Context, itemID, tagID uuid.UUID, isCategory bool) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (item_id, tag_id, is_category) VALUES ($1, $2, $3) ON CONFLICT (item_id, tag_id) DO NOTHING",
		t.tables.itemTags,
	)
	if _, err := t.q.Exec(ctx, query, itemID, tagID, isCategory); err != nil {
		if isCategory && isUniqueViolation(err) {
			return facet.NewCategoryAlreadySetError(itemID, nil).WithCause(err)
		}
		return fmt.Errorf("insert item tag: %w", err)
	}
	return nil
}

func (t *postgresTx) DeleteItemTag(ctx context.Context, itemID, tagID uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE item_id = $1 AND tag_id = $2", t.tables.itemTags)
	if _, err := t.q.Exec(ctx, query, itemID, tagID); err != nil {
		return fmt.Errorf("delete item tag: %w", err)
	}
	return nil
}

func (t *postgresTx) BumpItemVersion(ctx context.Context, itemID uuid.UUID, expected int64) (bool, error) {
	query := fmt.Sprintf("UPDATE %s SET version = version + 1 WHERE id = $1 AND version = $2", t.tables.items)
	tag, err := t.q.Exec(ctx, query, itemID, expected)
	if err != nil {
		return false, fmt.Errorf("bump item version: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Values

const valueColumns = "item_id, field_id, value_text, value_numeric, value_bool, updated_at"

// buildValuesUpsert renders one multi-row upsert for values.
func buildValuesUpsert(table string, values []facet.FieldValue) (string, []any) {
	placeholders := make([]string, 0, len(values))
	args := make([]any, 0, len(values)*6)
	for i, v := range values {
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, v.ItemID, v.FieldID, v.Text, v.Numeric, v.Bool, v.UpdatedAt)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES %s
			ON CONFLICT (item_id, field_id) DO UPDATE SET
				value_text = EXCLUDED.value_text,
				value_numeric = EXCLUDED.value_numeric,
				value_bool = EXCLUDED.value_bool,
				updated_at = EXCLUDED.updated_at`,
		table, valueColumns, strings.Join(placeholders, ", "),
	)
	return query, args
}

func (t *postgresTx) UpsertFieldValues(ctx context.Context, values []facet.FieldValue) error {
	if len(values) == 0 {
		return nil
	}
	query, args := buildValuesUpsert(t.tables.fieldValues, values)
	if _, err := t.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert field values: %w", err)
	}
	return nil
}

func (t *postgresTx) GetFieldValues(ctx context.Context, itemID uuid.UUID, fieldIDs []uuid.UUID) ([]facet.FieldValue, error) {
	return t.ListFieldValues(ctx, []uuid.UUID{itemID}, fieldIDs)
}

// ListFieldValues returns the values of itemIDs, restricted to fieldIDs unless it is nil.
func (t *postgresTx) ListFieldValues(ctx context.Context, itemIDs, fieldIDs []uuid.UUID) ([]facet.FieldValue, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE item_id = ANY($1)", valueColumns, t.tables.fieldValues)
	args := []any{itemIDs}
	if fieldIDs != nil {
		query += " AND field_id = ANY($2)"
		args = append(args, fieldIDs)
	}
	query += " ORDER BY item_id, field_id"

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list field values: %w", err)
	}
	defer rows.Close()
	var out []facet.FieldValue
	for rows.Next() {
		var v facet.FieldValue
		if err := rows.Scan(&v.ItemID, &v.FieldID, &v.Text, &v.Numeric, &v.Bool, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan field value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *postgresTx) DeleteFieldValue(ctx context.Context, itemID, fieldID uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE item_id = $1 AND field_id = $2", t.tables.fieldValues)
	if _, err := t.q.Exec(ctx, query, itemID, fieldID); err != nil {
		return fmt.Errorf("delete field value: %w", err)
	}
	return nil
}

func (t *postgresTx) DeleteFieldValuesByField(ctx context.Context, fieldID uuid.UUID) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE field_id = $1", t.tables.fieldValues)
	tag, err := t.q.Exec(ctx, query, fieldID)
	if err != nil {
		return 0, fmt.Errorf("delete field values: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *postgresTx) CountFieldValuesByField(ctx context.Context, fieldID uuid.UUID) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE field_id = $1", t.tables.fieldValues)
	var n int64
	if err := t.q.QueryRow(ctx, query, fieldID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count field values: %w", err)
	}
	return n, nil
}

// Backups

const backupColumns = "item_id, category_id, field_values, created_at"

func scanBackup(row pgx.Row) (*facet.Backup, error) {
	var b facet.Backup
	var values []byte
	if err := row.Scan(&b.ItemID, &b.CategoryID, &values, &b.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(values, &b.Values); err != nil {
		return nil, fmt.Errorf("decode backup values: %w", err)
	}
	return &b, nil
}

// fieldContainment is the jsonb containment operand matching backups holding fieldID.
func fieldContainment(fieldID uuid.UUID) string {
	return fmt.Sprintf(`[{"fieldId": %q}]`, fieldID.String())
}

func (t *postgresTx) SaveBackup(ctx context.Context, b *facet.Backup) error {
	values := b.Values
	if values == nil {
		values = []facet.FieldValue{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode backup values: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4)
			ON CONFLICT (item_id, category_id) DO UPDATE SET field_values = EXCLUDED.field_values, created_at = EXCLUDED.created_at`,
		t.tables.backups, backupColumns,
	)
	if _, err := t.q.Exec(ctx, query, b.ItemID, b.CategoryID, encoded, b.CreatedAt); err != nil {
		return fmt.Errorf("save backup: %w", err)
	}
	return nil
}

func (t *postgresTx) GetBackup(ctx context.Context, itemID, categoryID uuid.UUID) (*facet.Backup, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE item_id = $1 AND category_id = $2", backupColumns, t.tables.backups)
	b, err := scanBackup(t.q.QueryRow(ctx, query, itemID, categoryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup: %w", err)
	}
	return b, nil
}

func (t *postgresTx) ListBackups(ctx context.Context, itemID uuid.UUID) ([]facet.Backup, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE item_id = $1 ORDER BY created_at DESC, category_id", backupColumns, t.tables.backups)
	rows, err := t.q.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()
	var out []facet.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (t *postgresTx) CountBackupsWithField(ctx context.Context, fieldID uuid.UUID) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE field_values @> $1::jsonb", t.tables.backups)
	var n int64
	if err := t.q.QueryRow(ctx, query, fieldContainment(fieldID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count backups with field: %w", err)
	}
	return n, nil
}

func (t *postgresTx) StripFieldFromBackups(ctx context.Context, fieldID uuid.UUID) error {
	query := fmt.Sprintf(
		`UPDATE %s SET field_values = COALESCE(
			(SELECT jsonb_agg(v) FROM jsonb_array_elements(field_values) v WHERE v->>'fieldId' <> $1),
			'[]'::jsonb)
			WHERE field_values @> $2::jsonb`,
		t.tables.backups,
	)
	if _, err := t.q.Exec(ctx, query, fieldID.String(), fieldContainment(fieldID)); err != nil {
		return fmt.Errorf("strip field from backups: %w", err)
	}
	return nil
}

func (t *postgresTx) PruneBackups(ctx context.Context, createdBefore int64) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE created_at < $1", t.tables.backups)
	tag, err := t.q.Exec(ctx, query, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("prune backups: %w", err)
	}
	return tag.RowsAffected(), nil
}
