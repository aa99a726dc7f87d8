package internal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryManager_CreateTag(t *testing.T) {
	env := newTestEnv(t)
	schema := env.schema("Tutorial")

	tests := []struct {
		name     string
		req      *facet.CreateTagRequest
		wantCode string
	}{
		{name: "nil request", req: nil, wantCode: facet.ErrCodeInvalidConfig},
		{name: "empty name", req: &facet.CreateTagRequest{Name: "  "}, wantCode: facet.ErrCodeInvalidConfig},
		{name: "label with schema", req: &facet.CreateTagRequest{Name: "todo", SchemaID: &schema.ID}, wantCode: facet.ErrCodeInvalidConfig},
		{name: "category with unknown schema", req: &facet.CreateTagRequest{Name: "Video", IsCategory: true, SchemaID: &[]uuid.UUID{uuid.New()}[0]}, wantCode: facet.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.CreateTag(env.ctx, env.owner, tt.req)
			requireCode(t, err, tt.wantCode)
		})
	}

	tutorial := env.category("Tutorial", schema)
	assert.True(t, tutorial.IsCategory)
	assert.Equal(t, &schema.ID, tutorial.SchemaID)

	_, err := env.manager.CreateTag(env.ctx, env.owner, &facet.CreateTagRequest{Name: "tutorial", IsCategory: true})
	requireCode(t, err, facet.ErrCodeNameConflict)

	// Labels and categories have separate namespaces.
	env.label("Tutorial")

	// Another owner is unaffected.
	_, err = env.manager.CreateTag(env.ctx, uuid.New(), &facet.CreateTagRequest{Name: "Tutorial", IsCategory: true})
	require.NoError(t, err)

	tags, err := env.manager.ListTags(env.ctx, env.owner)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

// Scenario: default schema {Rating}, Tutorial schema {Difficulty}; assigning
// Tutorial makes both fields effective, default first.
func TestCategoryManager_AssignCategoryEffectiveFields(t *testing.T) {
	env := newTestEnv(t)
	rating := env.ratingField("Rating", 5)
	difficulty := env.selectField("Difficulty", "Easy", "Medium", "Hard")
	collection := env.collection(env.schema("Defaults", rating))
	tutorial := env.category("Tutorial", env.schema("Tutorial", difficulty))
	item := env.item(collection)

	before, err := env.manager.GetEffectiveFields(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rating"}, fieldNames(before))

	result := env.assign(item, tutorial)
	assert.False(t, result.BackupCreated)
	assert.Nil(t, result.Backup)
	assert.Equal(t, &tutorial.ID, result.Item.CategoryID)
	assert.Equal(t, int64(2), result.Item.Version)
	assert.Equal(t, []string{"Rating", "Difficulty"}, fieldNames(result.EffectiveFields))

	after, err := env.manager.GetEffectiveFields(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, result.EffectiveFields, after)
}

func TestCategoryManager_EffectiveFieldsDeduplicate(t *testing.T) {
	env := newTestEnv(t)
	rating := env.ratingField("Rating", 5)
	pages := env.field("Pages", facet.FieldTypeNumber, facet.FieldConfig{})
	collection := env.collection(env.schema("Defaults", rating))
	review := env.category("Review", env.schema("Review", pages, rating))
	item := env.item(collection)

	result := env.assign(item, review)
	assert.Equal(t, []uuid.UUID{rating.ID, pages.ID}, fieldIDsOf(result.EffectiveFields))
}

func TestCategoryManager_AssignCategoryTransitions(t *testing.T) {
	env := newTestEnv(t)
	collection := env.collection(nil)
	tutorial := env.category("Tutorial", nil)
	article := env.category("Article", nil)
	todo := env.label("todo")
	item := env.item(collection)

	_, err := env.manager.AssignCategory(env.ctx, env.owner, item.ID, todo.ID, facet.AssignOptions{})
	requireCode(t, err, facet.ErrCodeNotACategory)

	_, err = env.manager.AssignCategory(env.ctx, env.owner, item.ID, uuid.New(), facet.AssignOptions{})
	requireCode(t, err, facet.ErrCodeNotFound)

	env.assign(item, tutorial)

	// Same category again is a no-op.
	same := env.assign(item, tutorial)
	assert.Equal(t, int64(2), same.Item.Version)

	_, err = env.manager.AssignCategory(env.ctx, env.owner, item.ID, article.ID, facet.AssignOptions{})
	requireCode(t, err, facet.ErrCodeCategoryAlreadySet)

	replaced, err := env.manager.AssignCategory(env.ctx, env.owner, item.ID, article.ID, facet.AssignOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, &article.ID, replaced.Item.CategoryID)
	assert.Equal(t, int64(3), replaced.Item.Version)
	require.NotNil(t, replaced.Backup)
	assert.False(t, replaced.Backup.Created)

	removed, err := env.manager.RemoveCategory(env.ctx, env.owner, item.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, removed.Item.CategoryID)
	assert.Equal(t, int64(4), removed.Item.Version)

	noop, err := env.manager.RemoveCategory(env.ctx, env.owner, item.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), noop.Item.Version)
	assert.Nil(t, noop.Backup)
}

// Scenario: two categories in one request are rejected without any change.
func TestCategoryManager_SetItemCategoryRejectsTwoCategories(t *testing.T) {
	env := newTestEnv(t)
	tutorial := env.category("Tutorial", nil)
	article := env.category("Article", nil)
	item := env.item(env.collection(nil))

	_, err := env.manager.SetItemCategory(env.ctx, env.owner, item.ID, &facet.SetCategoryRequest{
		CategoryIDs: []uuid.UUID{tutorial.ID, article.ID},
	})
	requireCode(t, err, facet.ErrCodeCategoryAlreadySet)

	got, err := env.manager.GetItem(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
	assert.Equal(t, item.Version, got.Version)

	_, err = env.manager.SetItemCategory(env.ctx, env.owner, uuid.New(), &facet.SetCategoryRequest{
		CategoryIDs: []uuid.UUID{tutorial.ID, article.ID},
	})
	requireCode(t, err, facet.ErrCodeNotFound)
}

func TestCategoryManager_SetItemCategory(t *testing.T) {
	env := newTestEnv(t)
	difficulty := env.selectField("Difficulty", "Easy", "Hard")
	tutorial := env.category("Tutorial", env.schema("Tutorial", difficulty))
	article := env.category("Article", nil)
	item := env.item(env.collection(nil))

	result, err := env.manager.SetItemCategory(env.ctx, env.owner, item.ID, &facet.SetCategoryRequest{CategoryIDs: []uuid.UUID{tutorial.ID}})
	require.NoError(t, err)
	assert.Equal(t, &tutorial.ID, result.Item.CategoryID)
	env.setValue(item, difficulty, "Easy")

	// One id replaces whatever is set, backing up the old category.
	result, err = env.manager.SetItemCategory(env.ctx, env.owner, item.ID, &facet.SetCategoryRequest{CategoryIDs: []uuid.UUID{article.ID}})
	require.NoError(t, err)
	assert.Equal(t, &article.ID, result.Item.CategoryID)
	assert.True(t, result.BackupCreated)
	assert.Equal(t, 1, result.Backup.FieldCount)
	assert.Empty(t, result.EffectiveFields)

	result, err = env.manager.SetItemCategory(env.ctx, env.owner, item.ID, &facet.SetCategoryRequest{})
	require.NoError(t, err)
	assert.Nil(t, result.Item.CategoryID)

	_, err = env.manager.SetItemCategory(env.ctx, env.owner, item.ID, nil)
	requireCode(t, err, facet.ErrCodeInvalidConfig)
}

func TestCategoryManager_ExpectedVersion(t *testing.T) {
	env := newTestEnv(t)
	tutorial := env.category("Tutorial", nil)
	item := env.item(env.collection(nil))

	stale := item.Version - 1
	_, err := env.manager.AssignCategory(env.ctx, env.owner, item.ID, tutorial.ID, facet.AssignOptions{ExpectedVersion: &stale})
	requireCode(t, err, facet.ErrCodeConcurrentModification)
	assert.True(t, facet.IsConflict(err))

	current := item.Version
	result, err := env.manager.AssignCategory(env.ctx, env.owner, item.ID, tutorial.ID, facet.AssignOptions{ExpectedVersion: &current})
	require.NoError(t, err)

	_, err = env.manager.RemoveCategory(env.ctx, env.owner, item.ID, &current)
	requireCode(t, err, facet.ErrCodeConcurrentModification)

	_, err = env.manager.RemoveCategory(env.ctx, env.owner, item.ID, &result.Item.Version)
	require.NoError(t, err)
}

func TestCategoryManager_LostVersionRace(t *testing.T) {
	env := newTestEnv(t)
	tutorial := env.category("Tutorial", nil)
	item := env.item(env.collection(nil))

	racing := env.withStore(&faultyStore{MemoryStore: env.store, staleVersion: true})
	_, err := racing.AssignCategory(env.ctx, env.owner, item.ID, tutorial.ID, facet.AssignOptions{})
	requireCode(t, err, facet.ErrCodeConcurrentModification)

	got, err := env.manager.GetItem(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
}

// The loser of a concurrent replace must see the version conflict, not the
// category index violation raised once the winner's category row is visible.
func TestCategoryManager_LostReplaceRaceReportsVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	tutorial := env.category("Tutorial", nil)
	article := env.category("Article", nil)
	item := env.item(env.collection(nil))
	env.assign(item, tutorial)

	racing := env.withStore(&faultyStore{MemoryStore: env.store, staleVersion: true, categoryTaken: true})
	_, err := racing.AssignCategory(env.ctx, env.owner, item.ID, article.ID, facet.AssignOptions{Replace: true})
	requireCode(t, err, facet.ErrCodeConcurrentModification)

	_, err = racing.SetItemCategory(env.ctx, env.owner, item.ID, &facet.SetCategoryRequest{CategoryIDs: []uuid.UUID{article.ID}})
	requireCode(t, err, facet.ErrCodeConcurrentModification)

	got, err := env.manager.GetItem(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, &tutorial.ID, got.CategoryID)
}

func TestCategoryManager_Labels(t *testing.T) {
	env := newTestEnv(t)
	tutorial := env.category("Tutorial", nil)
	todo := env.label("todo")
	later := env.label("later")
	item := env.item(env.collection(nil))
	env.assign(item, tutorial)

	got, err := env.manager.AddLabel(env.ctx, env.owner, item.ID, todo.ID)
	require.NoError(t, err)
	got, err = env.manager.AddLabel(env.ctx, env.owner, item.ID, later.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{todo.ID, later.ID}, got.LabelIDs)

	// Adding twice is idempotent and labels do not touch the version.
	got, err = env.manager.AddLabel(env.ctx, env.owner, item.ID, todo.ID)
	require.NoError(t, err)
	assert.Len(t, got.LabelIDs, 2)
	assert.Equal(t, int64(2), got.Version)

	_, err = env.manager.AddLabel(env.ctx, env.owner, item.ID, tutorial.ID)
	requireCode(t, err, facet.ErrCodeInvalidConfig)
	_, err = env.manager.RemoveLabel(env.ctx, env.owner, item.ID, tutorial.ID)
	requireCode(t, err, facet.ErrCodeInvalidConfig)

	got, err = env.manager.RemoveLabel(env.ctx, env.owner, item.ID, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{later.ID}, got.LabelIDs)
	assert.Equal(t, &tutorial.ID, got.CategoryID)

	got, err = env.manager.RemoveLabel(env.ctx, env.owner, item.ID, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{later.ID}, got.LabelIDs)
}

func TestCategoryManager_SetCategorySchema(t *testing.T) {
	env := newTestEnv(t)
	rating := env.ratingField("Rating", 5)
	stars := env.ratingField("Rating", 10)
	difficulty := env.selectField("Difficulty", "Easy", "Hard")
	collection := env.collection(env.schema("Defaults", rating))
	tutorial := env.category("Tutorial", nil)
	todo := env.label("todo")
	item := env.item(collection)
	env.assign(item, tutorial)

	withDifficulty := env.schema("Tutorial", difficulty)
	updated, err := env.manager.SetCategorySchema(env.ctx, env.owner, tutorial.ID, &withDifficulty.ID)
	require.NoError(t, err)
	assert.Equal(t, &withDifficulty.ID, updated.SchemaID)

	fields, err := env.manager.GetEffectiveFields(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rating", "Difficulty"}, fieldNames(fields))

	clashing := env.schema("Clashing", stars)
	_, err = env.manager.SetCategorySchema(env.ctx, env.owner, tutorial.ID, &clashing.ID)
	requireCode(t, err, facet.ErrCodeNameConflict)

	_, err = env.manager.SetCategorySchema(env.ctx, env.owner, todo.ID, &withDifficulty.ID)
	requireCode(t, err, facet.ErrCodeNotACategory)

	cleared, err := env.manager.SetCategorySchema(env.ctx, env.owner, tutorial.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.SchemaID)
}

func TestCategoryManager_DeleteCategoryBacksUpHolders(t *testing.T) {
	env := newTestEnv(t)
	rec := recordTelemetry(t)
	difficulty := env.selectField("Difficulty", "Easy", "Hard")
	tutorial := env.category("Tutorial", env.schema("Tutorial", difficulty))
	collection := env.collection(nil)
	first := env.item(collection)
	second := env.item(collection)
	env.assign(first, tutorial)
	env.assign(second, tutorial)
	env.setValue(first, difficulty, "Hard")

	require.NoError(t, env.manager.DeleteTag(env.ctx, env.owner, tutorial.ID))

	_, err := env.manager.GetTag(env.ctx, env.owner, tutorial.ID)
	requireCode(t, err, facet.ErrCodeNotFound)

	for _, item := range []*facet.Item{first, second} {
		got, err := env.manager.GetItem(env.ctx, env.owner, item.ID)
		require.NoError(t, err)
		assert.Nil(t, got.CategoryID)
		assert.Equal(t, int64(3), got.Version)
	}

	backups, err := env.manager.ListBackups(env.ctx, env.owner, first.ID)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, 1, backups[0].FieldCount)
	assert.Empty(t, backups[0].CategoryName)

	assert.Len(t, rec.named(MetricCategoryChanges), 4)
}

func TestCategoryManager_DeleteCategoryAbortsOnBackupFailure(t *testing.T) {
	env := newTestEnv(t)
	difficulty := env.selectField("Difficulty", "Easy", "Hard")
	tutorial := env.category("Tutorial", env.schema("Tutorial", difficulty))
	item := env.item(env.collection(nil))
	env.assign(item, tutorial)

	failing := env.withStore(&faultyStore{MemoryStore: env.store, saveBackupErr: errDiskFull})
	err := failing.DeleteTag(env.ctx, env.owner, tutorial.ID)
	requireCode(t, err, facet.ErrCodeTransactionFailed)
	assert.ErrorIs(t, err, errDiskFull)

	got, err := env.manager.GetItem(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, &tutorial.ID, got.CategoryID)
	_, err = env.manager.GetTag(env.ctx, env.owner, tutorial.ID)
	require.NoError(t, err)
}

func TestCategoryManager_DeleteLabel(t *testing.T) {
	env := newTestEnv(t)
	todo := env.label("todo")
	item := env.item(env.collection(nil))
	_, err := env.manager.AddLabel(env.ctx, env.owner, item.ID, todo.ID)
	require.NoError(t, err)

	require.NoError(t, env.manager.DeleteTag(env.ctx, env.owner, todo.ID))

	got, err := env.manager.GetItem(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LabelIDs)
	assert.Equal(t, item.Version, got.Version)
}

func TestCategoryManager_ItemsAreOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	collection := env.collection(nil)
	item := env.item(collection)

	_, err := env.manager.CreateItem(env.ctx, uuid.New(), collection.ID)
	requireCode(t, err, facet.ErrCodeNotFound)

	_, err = env.manager.GetItem(env.ctx, uuid.New(), item.ID)
	requireCode(t, err, facet.ErrCodeNotFound)

	got, err := env.manager.GetItem(env.ctx, env.owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, collection.ID, got.CollectionID)
}
