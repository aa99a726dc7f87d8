package internal

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal/filter"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.MatchExpectationsInOrder(true)
	return mock
}

func newMockTx(t *testing.T) (pgxmock.PgxPoolIface, *postgresTx) {
	mock := newMockPool(t)
	return mock, &postgresTx{q: mock, tables: resolveTables(facet.DefaultTableNames())}
}

func TestPostgresStore_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	store := NewPostgresStore(mock, facet.DefaultConfig())
	fieldID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	owner := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`^INSERT INTO "fields"`).
		WithArgs(fieldID, owner, "Rating", "rating", []byte(`{"rating":{"max":5}}`), int64(100)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertField(ctx, &facet.Field{
			ID:        fieldID,
			OwnerID:   owner,
			Name:      "Rating",
			Type:      facet.FieldTypeRating,
			Config:    facet.FieldConfig{Rating: &facet.RatingConfig{Max: 5}},
			CreatedAt: 100,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	store := NewPostgresStore(mock, facet.DefaultConfig())
	boom := errors.New("boom")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(tx Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginFailure(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock, nil)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted}).WillReturnError(errors.New("connection refused"))

	err := store.WithTx(context.Background(), func(tx Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
}

func TestPostgresStore_ReadOnlyMissingRecord(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	config := facet.DefaultConfig()
	config.Logging.LogQueries = true
	store := NewPostgresStore(mock, config)
	id := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(`^SELECT id, owner_id, name, type, config, created_at FROM "fields" WHERE id = \$1$`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "name", "type", "config", "created_at"}))
	mock.ExpectRollback()

	err := store.ReadOnly(ctx, func(tx Tx) error {
		f, err := tx.GetField(ctx, id)
		assert.Nil(t, f)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_GetFieldDecodesConfig(t *testing.T) {
	mock, tx := newMockTx(t)
	id, owner := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM "fields" WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "name", "type", "config", "created_at"}).
			AddRow(id.String(), owner.String(), "Status", facet.FieldTypeSelect, []byte(`{"select":{"options":["Todo","Done"]}}`), int64(7)))

	f, err := tx.GetField(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, f.Config.Select)
	assert.Equal(t, []string{"Todo", "Done"}, f.Config.Select.Options)
	assert.Equal(t, facet.FieldTypeSelect, f.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_GetItemLoadsTags(t *testing.T) {
	mock, tx := newMockTx(t)
	id, owner, collection := uuid.New(), uuid.New(), uuid.New()
	category, label := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM "items" WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "collection_id", "version", "created_at"}).
			AddRow(id.String(), owner.String(), collection.String(), int64(3), int64(100)))
	mock.ExpectQuery(`^SELECT item_id, tag_id, is_category FROM "item_tags" WHERE item_id = ANY\(\$1\)`).
		WithArgs([]uuid.UUID{id}).
		WillReturnRows(pgxmock.NewRows([]string{"item_id", "tag_id", "is_category"}).
			AddRow(id.String(), category.String(), true).
			AddRow(id.String(), label.String(), false))

	item, err := tx.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, &category, item.CategoryID)
	assert.Equal(t, []uuid.UUID{label}, item.LabelIDs)
	assert.Equal(t, int64(3), item.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_InsertItemTagSecondCategory(t *testing.T) {
	mock, tx := newMockTx(t)
	item, tag := uuid.New(), uuid.New()

	mock.ExpectExec(`^INSERT INTO "item_tags"`).
		WithArgs(item, tag, true).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_item_tags_one_category"})
	mock.ExpectExec(`^INSERT INTO "item_tags"`).
		WithArgs(item, tag, false).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := tx.InsertItemTag(context.Background(), item, tag, true)
	requireCode(t, err, facet.ErrCodeCategoryAlreadySet)

	err = tx.InsertItemTag(context.Background(), item, tag, false)
	require.Error(t, err)
	assert.False(t, facet.HasCode(err, facet.ErrCodeCategoryAlreadySet))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_BumpItemVersion(t *testing.T) {
	mock, tx := newMockTx(t)
	item := uuid.New()
	query := "^" + regexp.QuoteMeta(`UPDATE "items" SET version = version + 1 WHERE id = $1 AND version = $2`) + "$"

	mock.ExpectExec(query).WithArgs(item, int64(4)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(query).WithArgs(item, int64(4)).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	bumped, err := tx.BumpItemVersion(context.Background(), item, 4)
	require.NoError(t, err)
	assert.True(t, bumped)

	bumped, err = tx.BumpItemVersion(context.Background(), item, 4)
	require.NoError(t, err)
	assert.False(t, bumped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_UpdateMissingRows(t *testing.T) {
	mock, tx := newMockTx(t)
	id := uuid.New()

	mock.ExpectExec(`^UPDATE "schemas" SET field_ids`).
		WithArgs(id, []uuid.UUID{}, int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`^UPDATE "tags" SET schema_id`).
		WithArgs(id, (*uuid.UUID)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := tx.UpdateSchemaFields(context.Background(), id, nil, 5)
	requireCode(t, err, facet.ErrCodeNotFound)

	err = tx.UpdateTagSchema(context.Background(), id, nil)
	requireCode(t, err, facet.ErrCodeNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildValuesUpsert(t *testing.T) {
	item, rating, notes := uuid.New(), uuid.New(), uuid.New()
	five, text := 5.0, "chapter 3"

	query, args := buildValuesUpsert(`"field_values"`, []facet.FieldValue{
		{ItemID: item, FieldID: rating, Numeric: &five, UpdatedAt: 10},
		{ItemID: item, FieldID: notes, Text: &text, UpdatedAt: 11},
	})

	assert.True(t, strings.HasPrefix(query, `INSERT INTO "field_values" (item_id, field_id, value_text, value_numeric, value_bool, updated_at) VALUES ($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)`))
	assert.Contains(t, query, "ON CONFLICT (item_id, field_id) DO UPDATE")
	require.Len(t, args, 12)
	assert.Equal(t, &five, args[3])
	assert.Equal(t, &text, args[8])
	assert.Equal(t, int64(11), args[11])
}

func TestPostgresTx_Backups(t *testing.T) {
	mock, tx := newMockTx(t)
	ctx := context.Background()
	item, category, field := uuid.New(), uuid.New(), uuid.New()
	containment := `[{"fieldId": "` + field.String() + `"}]`

	mock.ExpectExec(`^INSERT INTO "field_backups"`).
		WithArgs(item, category, []byte(`[]`), int64(50)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM "field_backups" WHERE field_values @> \$1::jsonb$`).
		WithArgs(containment).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectExec(`^UPDATE "field_backups" SET field_values`).
		WithArgs(field.String(), containment).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`^DELETE FROM "field_backups" WHERE created_at < \$1$`).
		WithArgs(int64(1000)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, tx.SaveBackup(ctx, &facet.Backup{ItemID: item, CategoryID: category, CreatedAt: 50}))

	n, err := tx.CountBackupsWithField(ctx, field)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, tx.StripFieldFromBackups(ctx, field))

	pruned, err := tx.PruneBackups(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_GetBackupDecodesValues(t *testing.T) {
	mock, tx := newMockTx(t)
	item, category, field := uuid.New(), uuid.New(), uuid.New()
	stored := `[{"itemId":"` + item.String() + `","fieldId":"` + field.String() + `","numeric":4,"updatedAt":9}]`

	mock.ExpectQuery(`FROM "field_backups" WHERE item_id = \$1 AND category_id = \$2`).
		WithArgs(item, category).
		WillReturnRows(pgxmock.NewRows([]string{"item_id", "category_id", "field_values", "created_at"}).
			AddRow(item.String(), category.String(), []byte(stored), int64(60)))

	b, err := tx.GetBackup(context.Background(), item, category)
	require.NoError(t, err)
	require.Len(t, b.Values, 1)
	assert.Equal(t, field, b.Values[0].FieldID)
	assert.Equal(t, 4.0, *b.Values[0].Numeric)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_FilterItemIDs(t *testing.T) {
	mock, tx := newMockTx(t)
	rating := facet.Field{ID: uuid.New(), Name: "Rating", Type: facet.FieldTypeRating, Config: facet.FieldConfig{Rating: &facet.RatingConfig{Max: 5}}}
	predicate, err := filter.Compile(map[uuid.UUID]facet.Field{rating.ID: rating}, []facet.Criterion{
		{FieldID: rating.ID, Operator: facet.OpGte, Operand: 4},
	})
	require.NoError(t, err)
	scope := filter.Scope{CollectionID: uuid.New(), Reach: map[uuid.UUID]filter.Reach{rating.ID: {Always: true}}}
	query, args, err := predicate.ToSQL(tx.tables.filterTables(), scope)
	require.NoError(t, err)

	first, second := uuid.New(), uuid.New()
	mock.ExpectQuery("^" + regexp.QuoteMeta(query) + "$").
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(first.String()).AddRow(second.String()))

	ids, err := tx.FilterItemIDs(context.Background(), predicate, scope)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FieldManagerRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	config := facet.DefaultConfig()
	m := newFieldManager(NewPostgresStore(mock, config), config)
	owner := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`^INSERT INTO "fields"`).
		WithArgs(pgxmock.AnyArg(), owner, "Read", "boolean", []byte(`{}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	f, err := m.CreateField(ctx, owner, &facet.CreateFieldRequest{Name: "Read", Type: facet.FieldTypeBoolean})
	require.NoError(t, err)
	assert.Equal(t, owner, f.OwnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaStatements(t *testing.T) {
	stmts := SchemaStatements(facet.DefaultTableNames())
	require.Len(t, stmts, 12)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "fields"`)
	assert.Contains(t, stmts, `CREATE UNIQUE INDEX IF NOT EXISTS "idx_item_tags_one_category" ON "item_tags" (item_id) WHERE is_category`)

	names := facet.DefaultTableNames()
	names.ItemTags = "app.item_tags"
	stmts = SchemaStatements(names)
	assert.Contains(t, stmts, `CREATE UNIQUE INDEX IF NOT EXISTS "idx_item_tags_one_category" ON "app"."item_tags" (item_id) WHERE is_category`)
}
