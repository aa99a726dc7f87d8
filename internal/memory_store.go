package internal

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

var errReadOnlyTx = errors.New("write attempted in read-only transaction")

type valueKey struct {
	itemID  uuid.UUID
	fieldID uuid.UUID
}

type backupKey struct {
	itemID     uuid.UUID
	categoryID uuid.UUID
}

type memoryItem struct {
	item facet.Item
	seq  int64
}

type memoryItemTag struct {
	tagID      uuid.UUID
	isCategory bool
}

type memoryState struct {
	fields      map[uuid.UUID]facet.Field
	schemas     map[uuid.UUID]facet.Schema
	collections map[uuid.UUID]facet.Collection
	tags        map[uuid.UUID]facet.Tag
	items       map[uuid.UUID]memoryItem
	itemTags    map[uuid.UUID][]memoryItemTag
	values      map[valueKey]facet.FieldValue
	backups     map[backupKey]facet.Backup
	nextSeq     int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		fields:      make(map[uuid.UUID]facet.Field),
		schemas:     make(map[uuid.UUID]facet.Schema),
		collections: make(map[uuid.UUID]facet.Collection),
		tags:        make(map[uuid.UUID]facet.Tag),
		items:       make(map[uuid.UUID]memoryItem),
		itemTags:    make(map[uuid.UUID][]memoryItemTag),
		values:      make(map[valueKey]facet.FieldValue),
		backups:     make(map[backupKey]facet.Backup),
	}
}

// clone copies every map and slice so the copy can be mutated without
// affecting readers of the original.
func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.fields {
		c.fields[k] = copyField(v)
	}
	for k, v := range s.schemas {
		v.FieldIDs = slices.Clone(v.FieldIDs)
		c.schemas[k] = v
	}
	for k, v := range s.collections {
		c.collections[k] = v
	}
	for k, v := range s.tags {
		c.tags[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.itemTags {
		c.itemTags[k] = slices.Clone(v)
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	for k, v := range s.backups {
		v.Values = slices.Clone(v.Values)
		c.backups[k] = v
	}
	c.nextSeq = s.nextSeq
	return c
}

func copyField(f facet.Field) facet.Field {
	if f.Config.Rating != nil {
		r := *f.Config.Rating
		f.Config.Rating = &r
	}
	if f.Config.Select != nil {
		f.Config.Select = &facet.SelectConfig{Options: slices.Clone(f.Config.Select.Options)}
	}
	return f
}

// MemoryStore keeps all records in process memory. Writers are serialized and
// work on a private copy that replaces the shared state on success, so a
// failed unit of work leaves no trace.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// WithTx copies the whole state for every write, which costs O(records) per
// transaction. The store is meant for tests and development, not large data sets.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) ReadOnly(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{state: s.state, readOnly: true})
}

type memoryTx struct {
	state    *memoryState
	readOnly bool
}

func (t *memoryTx) writable() error {
	if t.readOnly {
		return errReadOnlyTx
	}
	return nil
}

// Fields

func (t *memoryTx) InsertField(ctx context.Context, field *facet.Field) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.fields[field.ID] = copyField(*field)
	return nil
}

func (t *memoryTx) GetField(ctx context.Context, id uuid.UUID) (*facet.Field, error) {
	f, ok := t.state.fields[id]
	if !ok {
		return nil, nil
	}
	f = copyField(f)
	return &f, nil
}

func (t *memoryTx) GetFieldsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]facet.Field, error) {
	out := make(map[uuid.UUID]facet.Field, len(ids))
	for _, id := range ids {
		if f, ok := t.state.fields[id]; ok {
			out[id] = copyField(f)
		}
	}
	return out, nil
}

func (t *memoryTx) ListFields(ctx context.Context, ownerID uuid.UUID) ([]facet.Field, error) {
	var out []facet.Field
	for _, f := range t.state.fields {
		if f.OwnerID == ownerID {
			out = append(out, copyField(f))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (t *memoryTx) DeleteField(ctx context.Context, id uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.state.fields, id)
	return nil
}

// Schemas

func (t *memoryTx) InsertSchema(ctx context.Context, schema *facet.Schema) error {
	if err := t.writable(); err != nil {
		return err
	}
	s := *schema
	s.FieldIDs = slices.Clone(schema.FieldIDs)
	t.state.schemas[s.ID] = s
	return nil
}

func (t *memoryTx) GetSchema(ctx context.Context, id uuid.UUID) (*facet.Schema, error) {
	s, ok := t.state.schemas[id]
	if !ok {
		return nil, nil
	}
	s.FieldIDs = slices.Clone(s.FieldIDs)
	return &s, nil
}

func (t *memoryTx) ListSchemas(ctx context.Context, ownerID uuid.UUID) ([]facet.Schema, error) {
	var out []facet.Schema
	for _, s := range t.state.schemas {
		if s.OwnerID == ownerID {
			s.FieldIDs = slices.Clone(s.FieldIDs)
			out = append(out, s)
		}
	}
	sortSchemas(out)
	return out, nil
}

func (t *memoryTx) ListSchemasWithField(ctx context.Context, fieldID uuid.UUID) ([]facet.Schema, error) {
	var out []facet.Schema
	for _, s := range t.state.schemas {
		if s.Contains(fieldID) {
			s.FieldIDs = slices.Clone(s.FieldIDs)
			out = append(out, s)
		}
	}
	sortSchemas(out)
	return out, nil
}

func sortSchemas(schemas []facet.Schema) {
	sort.Slice(schemas, func(i, j int) bool {
		if schemas[i].CreatedAt != schemas[j].CreatedAt {
			return schemas[i].CreatedAt < schemas[j].CreatedAt
		}
		return schemas[i].Name < schemas[j].Name
	})
}

func (t *memoryTx) UpdateSchemaFields(ctx context.Context, id uuid.UUID, fieldIDs []uuid.UUID, updatedAt int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	s, ok := t.state.schemas[id]
	if !ok {
		return facet.NewNotFoundError("schema", id)
	}
	s.FieldIDs = slices.Clone(fieldIDs)
	s.UpdatedAt = updatedAt
	t.state.schemas[id] = s
	return nil
}

// Collections

func (t *memoryTx) InsertCollection(ctx context.Context, collection *facet.Collection) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.collections[collection.ID] = *collection
	return nil
}

func (t *memoryTx) GetCollection(ctx context.Context, id uuid.UUID) (*facet.Collection, error) {
	c, ok := t.state.collections[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memoryTx) ListCollections(ctx context.Context, ownerID uuid.UUID) ([]facet.Collection, error) {
	var out []facet.Collection
	for _, c := range t.state.collections {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (t *memoryTx) UpdateCollectionDefaultSchema(ctx context.Context, id uuid.UUID, schemaID *uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	c, ok := t.state.collections[id]
	if !ok {
		return facet.NewNotFoundError("collection", id)
	}
	c.DefaultSchemaID = schemaID
	t.state.collections[id] = c
	return nil
}

// Tags

func (t *memoryTx) InsertTag(ctx context.Context, tag *facet.Tag) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.tags[tag.ID] = *tag
	return nil
}

func (t *memoryTx) GetTag(ctx context.Context, id uuid.UUID) (*facet.Tag, error) {
	tag, ok := t.state.tags[id]
	if !ok {
		return nil, nil
	}
	return &tag, nil
}

func (t *memoryTx) ListTags(ctx context.Context, ownerID uuid.UUID) ([]facet.Tag, error) {
	var out []facet.Tag
	for _, tag := range t.state.tags {
		if tag.OwnerID == ownerID {
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (t *memoryTx) UpdateTagSchema(ctx context.Context, id uuid.UUID, schemaID *uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	tag, ok := t.state.tags[id]
	if !ok {
		return facet.NewNotFoundError("tag", id)
	}
	tag.SchemaID = schemaID
	t.state.tags[id] = tag
	return nil
}

func (t *memoryTx) DeleteTag(ctx context.Context, id uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.state.tags, id)
	for itemID, tags := range t.state.itemTags {
		t.state.itemTags[itemID] = slices.DeleteFunc(tags, func(it memoryItemTag) bool { return it.tagID == id })
	}
	return nil
}

func (t *memoryTx) ListItemsWithTag(ctx context.Context, tagID uuid.UUID) ([]uuid.UUID, error) {
	var items []memoryItem
	for itemID, tags := range t.state.itemTags {
		for _, it := range tags {
			if it.tagID == tagID {
				items = append(items, t.state.items[itemID])
				break
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]uuid.UUID, len(items))
	for i, it := range items {
		out[i] = it.item.ID
	}
	return out, nil
}

// Items

func (t *memoryTx) InsertItem(ctx context.Context, item *facet.Item) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.nextSeq++
	stored := *item
	stored.CategoryID = nil
	stored.LabelIDs = nil
	t.state.items[item.ID] = memoryItem{item: stored, seq: t.state.nextSeq}
	return nil
}

func (t *memoryTx) hydrate(mi memoryItem) facet.Item {
	item := mi.item
	for _, it := range t.state.itemTags[item.ID] {
		if it.isCategory {
			id := it.tagID
			item.CategoryID = &id
		} else {
			item.LabelIDs = append(item.LabelIDs, it.tagID)
		}
	}
	return item
}

func (t *memoryTx) GetItem(ctx context.Context, id uuid.UUID) (*facet.Item, error) {
	mi, ok := t.state.items[id]
	if !ok {
		return nil, nil
	}
	item := t.hydrate(mi)
	return &item, nil
}

func (t *memoryTx) ListCollectionItems(ctx context.Context, collectionID uuid.UUID) ([]facet.Item, error) {
	var matched []memoryItem
	for _, mi := range t.state.items {
		if mi.item.CollectionID == collectionID {
			matched = append(matched, mi)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]facet.Item, len(matched))
	for i, mi := range matched {
		out[i] = t.hydrate(mi)
	}
	return out, nil
}

func (t *memoryTx) InsertItemTag(ctx context.Context, itemID, tagID uuid.UUID, isCategory bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, it := range t.state.itemTags[itemID] {
		if it.tagID == tagID {
			return nil
		}
		if isCategory && it.isCategory {
			current := it.tagID
			return facet.NewCategoryAlreadySetError(itemID, &current)
		}
	}
	t.state.itemTags[itemID] = append(t.state.itemTags[itemID], memoryItemTag{tagID: tagID, isCategory: isCategory})
	return nil
}

func (t *memoryTx) DeleteItemTag(ctx context.Context, itemID, tagID uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.itemTags[itemID] = slices.DeleteFunc(t.state.itemTags[itemID], func(it memoryItemTag) bool { return it.tagID == tagID })
	return nil
}

func (t *memoryTx) BumpItemVersion(ctx context.Context, itemID uuid.UUID, expected int64) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	mi, ok := t.state.items[itemID]
	if !ok || mi.item.Version != expected {
		return false, nil
	}
	mi.item.Version++
	t.state.items[itemID] = mi
	return true, nil
}

// Values

func (t *memoryTx) UpsertFieldValues(ctx context.Context, values []facet.FieldValue) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, v := range values {
		t.state.values[valueKey{itemID: v.ItemID, fieldID: v.FieldID}] = v
	}
	return nil
}

func (t *memoryTx) GetFieldValues(ctx context.Context, itemID uuid.UUID, fieldIDs []uuid.UUID) ([]facet.FieldValue, error) {
	return t.ListFieldValues(ctx, []uuid.UUID{itemID}, fieldIDs)
}

func (t *memoryTx) ListFieldValues(ctx context.Context, itemIDs, fieldIDs []uuid.UUID) ([]facet.FieldValue, error) {
	items := NewSetFrom(itemIDs...)
	var fields *Set[uuid.UUID]
	if fieldIDs != nil {
		fields = NewSetFrom(fieldIDs...)
	}
	var out []facet.FieldValue
	for k, v := range t.state.values {
		if !items.Contains(k.itemID) {
			continue
		}
		if fields != nil && !fields.Contains(k.fieldID) {
			continue
		}
		out = append(out, v)
	}
	sortValues(out)
	return out, nil
}

func sortValues(values []facet.FieldValue) {
	sort.Slice(values, func(i, j int) bool {
		if values[i].ItemID != values[j].ItemID {
			return values[i].ItemID.String() < values[j].ItemID.String()
		}
		return values[i].FieldID.String() < values[j].FieldID.String()
	})
}

func (t *memoryTx) DeleteFieldValue(ctx context.Context, itemID, fieldID uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.state.values, valueKey{itemID: itemID, fieldID: fieldID})
	return nil
}

func (t *memoryTx) DeleteFieldValuesByField(ctx context.Context, fieldID uuid.UUID) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var n int64
	for k := range t.state.values {
		if k.fieldID == fieldID {
			delete(t.state.values, k)
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) CountFieldValuesByField(ctx context.Context, fieldID uuid.UUID) (int64, error) {
	var n int64
	for k := range t.state.values {
		if k.fieldID == fieldID {
			n++
		}
	}
	return n, nil
}

// Backups

func (t *memoryTx) SaveBackup(ctx context.Context, b *facet.Backup) error {
	if err := t.writable(); err != nil {
		return err
	}
	stored := *b
	stored.Values = slices.Clone(b.Values)
	t.state.backups[backupKey{itemID: b.ItemID, categoryID: b.CategoryID}] = stored
	return nil
}

func (t *memoryTx) GetBackup(ctx context.Context, itemID, categoryID uuid.UUID) (*facet.Backup, error) {
	b, ok := t.state.backups[backupKey{itemID: itemID, categoryID: categoryID}]
	if !ok {
		return nil, nil
	}
	b.Values = slices.Clone(b.Values)
	return &b, nil
}

func (t *memoryTx) ListBackups(ctx context.Context, itemID uuid.UUID) ([]facet.Backup, error) {
	var out []facet.Backup
	for k, b := range t.state.backups {
		if k.itemID == itemID {
			b.Values = slices.Clone(b.Values)
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].CategoryID.String() < out[j].CategoryID.String()
	})
	return out, nil
}

func (t *memoryTx) CountBackupsWithField(ctx context.Context, fieldID uuid.UUID) (int64, error) {
	var n int64
	for _, b := range t.state.backups {
		for _, v := range b.Values {
			if v.FieldID == fieldID {
				n++
				break
			}
		}
	}
	return n, nil
}

func (t *memoryTx) StripFieldFromBackups(ctx context.Context, fieldID uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	for k, b := range t.state.backups {
		b.Values = slices.DeleteFunc(b.Values, func(v facet.FieldValue) bool { return v.FieldID == fieldID })
		t.state.backups[k] = b
	}
	return nil
}

func (t *memoryTx) PruneBackups(ctx context.Context, createdBefore int64) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var n int64
	for k, b := range t.state.backups {
		if b.CreatedAt < createdBefore {
			delete(t.state.backups, k)
			n++
		}
	}
	return n, nil
}
