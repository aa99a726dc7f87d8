package internal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	t       *testing.T
	ctx     context.Context
	store   *MemoryStore
	manager *fieldManager
	owner   uuid.UUID
}

// newTestEnv builds a manager over a fresh memory store. The clock advances
// one millisecond per reading so timestamps are distinct and ordered.
func newTestEnv(t *testing.T, configure ...func(*facet.Config)) *testEnv {
	t.Helper()
	config := facet.DefaultConfig()
	for _, fn := range configure {
		fn(config)
	}

	store := NewMemoryStore()
	manager := newFieldManager(store, config)
	manager.now = steppingClock()

	return &testEnv{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		manager: manager,
		owner:   uuid.New(),
	}
}

func steppingClock() func() time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}
}

// withStore returns a manager sharing config and clock but running on store.
func (e *testEnv) withStore(store Store) *fieldManager {
	m := newFieldManager(store, e.manager.config)
	m.now = e.manager.now
	return m
}

func (e *testEnv) field(name string, typ facet.FieldType, config facet.FieldConfig) *facet.Field {
	e.t.Helper()
	f, err := e.manager.CreateField(e.ctx, e.owner, &facet.CreateFieldRequest{Name: name, Type: typ, Config: config})
	require.NoError(e.t, err)
	return f
}

func (e *testEnv) ratingField(name string, max int) *facet.Field {
	return e.field(name, facet.FieldTypeRating, facet.FieldConfig{Rating: &facet.RatingConfig{Max: max}})
}

func (e *testEnv) selectField(name string, options ...string) *facet.Field {
	return e.field(name, facet.FieldTypeSelect, facet.FieldConfig{Select: &facet.SelectConfig{Options: options}})
}

func (e *testEnv) schema(name string, fields ...*facet.Field) *facet.Schema {
	e.t.Helper()
	ids := make([]uuid.UUID, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	s, err := e.manager.CreateSchema(e.ctx, e.owner, name, ids)
	require.NoError(e.t, err)
	return s
}

func (e *testEnv) collection(defaultSchema *facet.Schema) *facet.Collection {
	e.t.Helper()
	var schemaID *uuid.UUID
	if defaultSchema != nil {
		schemaID = &defaultSchema.ID
	}
	c, err := e.manager.CreateCollection(e.ctx, e.owner, "Reading list", schemaID)
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) category(name string, schema *facet.Schema) *facet.Tag {
	e.t.Helper()
	req := &facet.CreateTagRequest{Name: name, IsCategory: true}
	if schema != nil {
		req.SchemaID = &schema.ID
	}
	tag, err := e.manager.CreateTag(e.ctx, e.owner, req)
	require.NoError(e.t, err)
	return tag
}

func (e *testEnv) label(name string) *facet.Tag {
	e.t.Helper()
	tag, err := e.manager.CreateTag(e.ctx, e.owner, &facet.CreateTagRequest{Name: name})
	require.NoError(e.t, err)
	return tag
}

func (e *testEnv) item(c *facet.Collection) *facet.Item {
	e.t.Helper()
	item, err := e.manager.CreateItem(e.ctx, e.owner, c.ID)
	require.NoError(e.t, err)
	return item
}

func (e *testEnv) assign(item *facet.Item, category *facet.Tag) *facet.CategoryChangeResult {
	e.t.Helper()
	result, err := e.manager.AssignCategory(e.ctx, e.owner, item.ID, category.ID, facet.AssignOptions{})
	require.NoError(e.t, err)
	return result
}

func (e *testEnv) setValue(item *facet.Item, f *facet.Field, value any) {
	e.t.Helper()
	_, err := e.manager.SetFieldValue(e.ctx, e.owner, item.ID, f.ID, value)
	require.NoError(e.t, err)
}

// storedValue reads a value directly from the store, reachable or not.
func (e *testEnv) storedValue(item *facet.Item, f *facet.Field) *facet.FieldValue {
	e.t.Helper()
	var out *facet.FieldValue
	err := e.store.ReadOnly(e.ctx, func(tx Tx) error {
		values, err := tx.GetFieldValues(e.ctx, item.ID, []uuid.UUID{f.ID})
		if len(values) == 1 {
			out = &values[0]
		}
		return err
	})
	require.NoError(e.t, err)
	return out
}

func (e *testEnv) deleteStoredValue(item *facet.Item, f *facet.Field) {
	e.t.Helper()
	err := e.store.WithTx(e.ctx, func(tx Tx) error {
		return tx.DeleteFieldValue(e.ctx, item.ID, f.ID)
	})
	require.NoError(e.t, err)
}

func fieldNames(fields []facet.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, facet.CodeOf(err), "unexpected error: %v", err)
}

// faultyStore injects failures into selected Tx operations of the wrapped store.
type faultyStore struct {
	*MemoryStore
	saveBackupErr error
	staleVersion  bool
	categoryTaken bool
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.MemoryStore.WithTx(ctx, func(tx Tx) error {
		return fn(&faultyTx{Tx: tx, store: s})
	})
}

type faultyTx struct {
	Tx
	store *faultyStore
}

func (t *faultyTx) SaveBackup(ctx context.Context, b *facet.Backup) error {
	if t.store.saveBackupErr != nil {
		return t.store.saveBackupErr
	}
	return t.Tx.SaveBackup(ctx, b)
}

// InsertItemTag fails category inserts as the unique category index does once
// another writer's category row is committed.
func (t *faultyTx) InsertItemTag(ctx context.Context, itemID, tagID uuid.UUID, isCategory bool) error {
	if t.store.categoryTaken && isCategory {
		return facet.NewCategoryAlreadySetError(itemID, nil)
	}
	return t.Tx.InsertItemTag(ctx, itemID, tagID, isCategory)
}

// BumpItemVersion behaves as if another writer bumped the version first.
func (t *faultyTx) BumpItemVersion(ctx context.Context, itemID uuid.UUID, expected int64) (bool, error) {
	if t.store.staleVersion {
		return false, nil
	}
	return t.Tx.BumpItemVersion(ctx, itemID, expected)
}

var errDiskFull = errors.New("disk full")
